package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/crmbilling/internal/activity/domain"
	"github.com/smallbiznis/crmbilling/internal/activity/masking"
	"github.com/smallbiznis/crmbilling/internal/clock"
	"github.com/smallbiznis/crmbilling/internal/events"
	obscontext "github.com/smallbiznis/crmbilling/internal/observability/context"
	"github.com/smallbiznis/crmbilling/pkg/db/option"
	"github.com/smallbiznis/crmbilling/pkg/db/pagination"
	"github.com/smallbiznis/crmbilling/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  activitydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  activitydomain.Repository
	store repository.Repository[activitydomain.SystemLog]
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("activity.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		store: repository.ProvideStore[activitydomain.SystemLog](p.DB),
	}
}

func (s *Service) Record(ctx context.Context, level activitydomain.Level, category activitydomain.Category, message string, companyID snowflake.ID, metadata map[string]any) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return activitydomain.ErrInvalidMessage
	}
	if _, ok := parseLevel(string(level)); !ok {
		return activitydomain.ErrInvalidLevel
	}
	if category == "" {
		category = activitydomain.CategorySystem
	}

	payload := masking.Metadata(metadata)
	if payload == nil {
		payload = map[string]any{}
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorType != "" {
		if _, ok := payload["actor_type"]; !ok {
			payload["actor_type"] = actorType
		}
		if _, ok := payload["actor_id"]; !ok && actorID != "" {
			payload["actor_id"] = actorID
		}
	}

	entry := activitydomain.SystemLog{
		ID:        s.genID.Generate(),
		Level:     level,
		Category:  category,
		Message:   message,
		Metadata:  datatypes.JSONMap(payload),
		CreatedAt: s.clock.Now().UTC(),
	}
	if companyID != 0 {
		entry.CompanyID = &companyID
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write system log",
			zap.String("category", string(category)),
			zap.String("message", message),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Handle records every dispatched billing event as a system log entry.
func (s *Service) Handle(ctx context.Context, event events.Event) error {
	metadata := make(map[string]any, len(event.Data)+4)
	for k, v := range event.Data {
		metadata[k] = v
	}
	metadata["event_id"] = event.ID
	metadata["event_type"] = string(event.Type)
	if event.InvoiceID != 0 {
		metadata["invoice_id"] = event.InvoiceID.String()
	}
	if event.ActorID != "" {
		metadata["actor_id"] = event.ActorID
	}
	return s.Record(ctx, levelFor(event.Type), categoryFor(event.Type), describe(event), event.CompanyID, metadata)
}

func (s *Service) List(ctx context.Context, req activitydomain.ListRequest) (activitydomain.ListResponse, error) {
	filter := &activitydomain.SystemLog{}
	if raw := strings.TrimSpace(req.CompanyID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return activitydomain.ListResponse{}, activitydomain.ErrInvalidCompany
		}
		filter.CompanyID = &id
	}
	if raw := strings.TrimSpace(req.Level); raw != "" {
		level, ok := parseLevel(raw)
		if !ok {
			return activitydomain.ListResponse{}, activitydomain.ErrInvalidLevel
		}
		filter.Level = level
	}
	if raw := strings.TrimSpace(req.Category); raw != "" {
		category, ok := parseCategory(raw)
		if !ok {
			return activitydomain.ListResponse{}, activitydomain.ErrInvalidCategory
		}
		filter.Category = category
	}

	items, err := s.store.Find(ctx, filter, option.ApplyPagination(req.Pagination))
	if err != nil {
		return activitydomain.ListResponse{}, err
	}
	page, info := pagination.BuildCursorPageInfo(items, req.Pagination.Size(), func(l *activitydomain.SystemLog) string {
		return l.ID.String()
	})

	logs := make([]activitydomain.SystemLog, 0, len(page))
	for _, item := range page {
		if item != nil {
			logs = append(logs, *item)
		}
	}
	return activitydomain.ListResponse{PageInfo: info, Logs: logs}, nil
}

func parseLevel(raw string) (activitydomain.Level, bool) {
	switch l := activitydomain.Level(strings.ToLower(raw)); l {
	case activitydomain.LevelInfo, activitydomain.LevelWarning, activitydomain.LevelError:
		return l, true
	}
	return "", false
}

func parseCategory(raw string) (activitydomain.Category, bool) {
	switch c := activitydomain.Category(strings.ToLower(raw)); c {
	case activitydomain.CategorySubscription, activitydomain.CategoryInvoice, activitydomain.CategoryPayment,
		activitydomain.CategoryScheduler, activitydomain.CategorySystem:
		return c, true
	}
	return "", false
}

func levelFor(t events.Type) activitydomain.Level {
	switch t {
	case events.TypeSubscriptionRejected, events.TypeSubscriptionExpired,
		events.TypeSubscriptionCancelled, events.TypeInvoiceOverdue:
		return activitydomain.LevelWarning
	}
	return activitydomain.LevelInfo
}

func categoryFor(t events.Type) activitydomain.Category {
	prefix, _, _ := strings.Cut(string(t), ".")
	if c, ok := parseCategory(prefix); ok {
		return c
	}
	return activitydomain.CategorySystem
}

func describe(e events.Event) string {
	number := e.String("invoice_number")
	switch e.Type {
	case events.TypeSubscriptionRequested:
		return "Subscription requested"
	case events.TypeSubscriptionTrialStarted:
		return "Trial started"
	case events.TypePaymentReceived:
		return fmt.Sprintf("Payment received for invoice %s", number)
	case events.TypeSubscriptionApproved:
		return "Subscription approved"
	case events.TypeSubscriptionRejected:
		return fmt.Sprintf("Payment for invoice %s rejected: %s", number, e.String("reason"))
	case events.TypeSubscriptionExpired:
		return "Subscription expired"
	case events.TypeSubscriptionCancelled:
		return "Subscription cancelled"
	case events.TypeUpgradeRequested:
		return fmt.Sprintf("Upgrade requested with invoice %s", number)
	case events.TypeSubscriptionUpgraded:
		return "Subscription upgraded"
	case events.TypeInvoiceReminder:
		return fmt.Sprintf("Reminder %s sent for invoice %s", e.String("reminder_type"), number)
	case events.TypeInvoiceOverdue:
		return fmt.Sprintf("Invoice %s is overdue", number)
	case events.TypePaymentRecorded:
		return fmt.Sprintf("Payment of %s recorded", e.String("amount"))
	}
	if number != "" {
		_, action, _ := strings.Cut(string(e.Type), ".")
		return fmt.Sprintf("Invoice %s %s", number, action)
	}
	return string(e.Type)
}
