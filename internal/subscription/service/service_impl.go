package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crmbilling/internal/clock"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	"github.com/smallbiznis/crmbilling/internal/events"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	"github.com/smallbiznis/crmbilling/internal/observability/logger"
	"github.com/smallbiznis/crmbilling/internal/observability/metrics"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/crmbilling/internal/subscription/domain"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	CompanyRepo companydomain.Repository
	PlanRepo    plandomain.Repository
	InvoiceRepo invoicedomain.Repository
	Ledger      invoicedomain.Ledger
	Settings    taxdomain.SettingsProvider
	Publisher   events.Publisher
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock       clock.Clock
	companyRepo companydomain.Repository
	planRepo    plandomain.Repository
	invoiceRepo invoicedomain.Repository
	ledger      invoicedomain.Ledger
	settings    taxdomain.SettingsProvider
	publisher   events.Publisher
	metrics     *metrics.Metrics
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		clock:       p.Clock,
		companyRepo: p.CompanyRepo,
		planRepo:    p.PlanRepo,
		invoiceRepo: p.InvoiceRepo,
		ledger:      p.Ledger,
		settings:    p.Settings,
		publisher:   p.Publisher,
		metrics:     p.Metrics,
	}
}

func (s *Service) RequestSubscription(ctx context.Context, req subscriptiondomain.RequestSubscriptionRequest) (*subscriptiondomain.RequestSubscriptionResponse, error) {
	companyID, err := parseID(req.CompanyID, subscriptiondomain.ErrInvalidCompany)
	if err != nil {
		return nil, err
	}
	pkg, err := s.loadBillablePackage(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	duration, err := resolveDuration(req.DurationType, pkg)
	if err != nil {
		return nil, err
	}
	price, ok := pkg.PriceFor(duration)
	if !ok {
		return nil, plandomain.ErrPriceNotConfigured
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	start := now
	end := duration.EndDate(start)

	var (
		company    *companydomain.Company
		invoice    *invoicedomain.Invoice
		transition subscriptiondomain.Transition
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockCompany(ctx, tx, companyID)
		if err != nil {
			return err
		}
		transition, err = subscriptiondomain.Apply(c, subscriptiondomain.EventRequest, subscriptiondomain.TransitionInput{
			Now:       now,
			Package:   pkg,
			StartDate: &start,
			EndDate:   &end,
		})
		if err != nil {
			return err
		}
		inv, err := s.ledger.Issue(ctx, tx, invoicedomain.IssueInput{
			CompanyID:    c.ID,
			PackageID:    pkg.ID,
			Kind:         invoicedomain.KindSubscription,
			DurationType: duration,
			Amount:       price,
			PeriodStart:  start,
			PeriodEnd:    end,
			DueDate:      now.AddDate(0, 0, settings.PaymentTermsDays),
			Settings:     settings,
			Currency:     pkg.Currency,
		})
		if err != nil {
			return err
		}
		c.SubscriptionInvoiceID = &inv.ID
		if err := s.companyRepo.UpdateSubscription(ctx, tx, c); err != nil {
			return err
		}
		company, invoice = c, inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(ctx, company, transition)
	s.publish(ctx,
		s.transitionEvent(events.TypeSubscriptionRequested, company, transition).
			WithInvoice(invoice.ID).
			With("package_id", pkg.ID.String()).
			With("duration_type", string(duration)),
		invoiceEvent(events.TypeInvoiceCreated, invoice, now),
	)
	return &subscriptiondomain.RequestSubscriptionResponse{
		Invoice: invoicedomain.ToResponse(invoice),
		Company: companydomain.ToResponse(company),
	}, nil
}

func (s *Service) StartTrial(ctx context.Context, req subscriptiondomain.StartTrialRequest) (*companydomain.Response, error) {
	companyID, err := parseID(req.CompanyID, subscriptiondomain.ErrInvalidCompany)
	if err != nil {
		return nil, err
	}
	pkg, err := s.loadPackage(ctx, s.db, req.PackageID)
	if err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, plandomain.ErrInactive
	}

	now := s.clock.Now()
	var (
		company    *companydomain.Company
		transition subscriptiondomain.Transition
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockCompany(ctx, tx, companyID)
		if err != nil {
			return err
		}
		transition, err = subscriptiondomain.Apply(c, subscriptiondomain.EventStartTrial, subscriptiondomain.TransitionInput{
			Now:     now,
			Package: pkg,
		})
		if err != nil {
			return err
		}
		if err := s.companyRepo.UpdateSubscription(ctx, tx, c); err != nil {
			return err
		}
		company = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(ctx, company, transition)
	s.publish(ctx, s.transitionEvent(events.TypeSubscriptionTrialStarted, company, transition).
		With("package_id", pkg.ID.String()))
	resp := companydomain.ToResponse(company)
	return &resp, nil
}

func (s *Service) MarkPaymentReceived(ctx context.Context, req subscriptiondomain.PaymentReceivedRequest) (*subscriptiondomain.PaymentReceivedResponse, error) {
	invoiceID, err := parseID(req.InvoiceID, subscriptiondomain.ErrInvalidInvoice)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Method) == "" {
		return nil, invoicedomain.ErrInvalidPaymentMethod
	}
	// Company rows are locked before invoice rows on every path.
	peek, err := s.invoiceRepo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if peek == nil {
		return nil, invoicedomain.ErrNotFound
	}

	var (
		company    *companydomain.Company
		invoice    *invoicedomain.Invoice
		transition *subscriptiondomain.Transition
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockCompany(ctx, tx, peek.CompanyID)
		if err != nil {
			return err
		}
		inv, err := s.ledger.LoadForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Kind != invoicedomain.KindUpgrade {
			t, err := subscriptiondomain.Apply(c, subscriptiondomain.EventPaymentReceived, subscriptiondomain.TransitionInput{
				Now:     s.clock.Now(),
				Invoice: inv,
			})
			if err != nil {
				return err
			}
			transition = &t
		} else if err := subscriptiondomain.CheckInvoice(c, inv); err != nil {
			return err
		}
		if err := s.ledger.MarkPaymentReceived(ctx, tx, inv, invoicedomain.PaymentReceipt{
			Method:     req.Method,
			Reference:  req.Reference,
			Notes:      req.Notes,
			VerifiedBy: req.VerifiedBy,
		}); err != nil {
			return err
		}
		if transition != nil {
			if err := s.companyRepo.UpdateSubscription(ctx, tx, c); err != nil {
				return err
			}
		}
		company, invoice = c, inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := invoiceEvent(events.TypePaymentReceived, invoice, s.clock.Now()).
		With("payment_method", invoice.PaymentMethod).
		With("payment_reference", invoice.PaymentReference)
	if transition != nil {
		s.recordTransition(ctx, company, *transition)
		event = event.With("from", string(transition.From)).With("to", string(transition.To))
	}
	if req.VerifiedBy != "" {
		event.ActorID = req.VerifiedBy
	}
	s.publish(ctx, event)
	return &subscriptiondomain.PaymentReceivedResponse{
		Invoice: invoicedomain.ToResponse(invoice),
		Company: companydomain.ToResponse(company),
	}, nil
}

func (s *Service) Approve(ctx context.Context, req subscriptiondomain.ApproveRequest) (*subscriptiondomain.ApproveResponse, error) {
	companyID, err := parseID(req.CompanyID, subscriptiondomain.ErrInvalidCompany)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(req.InvoiceID, subscriptiondomain.ErrInvalidInvoice)
	if err != nil {
		return nil, err
	}
	if req.StartDate != nil && req.StartDate.IsZero() {
		return nil, subscriptiondomain.ErrInvalidStartDate
	}

	now := s.clock.Now()
	var (
		company    *companydomain.Company
		invoice    *invoicedomain.Invoice
		pkg        *plandomain.Package
		transition subscriptiondomain.Transition
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockCompany(ctx, tx, companyID)
		if err != nil {
			return err
		}
		inv, err := s.ledger.LoadForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		event := subscriptiondomain.EventApprove
		if inv.Kind == invoicedomain.KindUpgrade {
			event = subscriptiondomain.EventUpgrade
		}
		if !subscriptiondomain.Allowed(c.SubscriptionStatus, event) {
			return subscriptiondomain.ErrInvalidTransition
		}
		if err := subscriptiondomain.CheckInvoice(c, inv); err != nil {
			return err
		}
		if inv.Status != invoicedomain.StatusPaymentReceived {
			return invoicedomain.ErrNotVerified
		}

		p, err := s.planRepo.FindByID(ctx, tx, inv.PackageID)
		if err != nil {
			return err
		}
		if p == nil {
			return plandomain.ErrNotFound
		}
		duration := inv.DurationType
		if _, ok := plandomain.ParseDurationType(string(duration)); !ok {
			duration = p.DurationType
		}
		start := now
		if req.StartDate != nil {
			start = req.StartDate.UTC()
		}
		end := duration.EndDate(start)
		if !end.After(now) {
			return subscriptiondomain.ErrInvalidStartDate
		}

		transition, err = subscriptiondomain.Apply(c, event, subscriptiondomain.TransitionInput{
			Now:       now,
			Package:   p,
			Invoice:   inv,
			StartDate: &start,
			EndDate:   &end,
		})
		if err != nil {
			return err
		}
		if err := s.ledger.MarkPaid(ctx, tx, inv); err != nil {
			return err
		}
		if err := s.companyRepo.UpdateSubscription(ctx, tx, c); err != nil {
			return err
		}
		company, invoice, pkg = c, inv, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := events.TypeSubscriptionApproved
	if transition.Event == subscriptiondomain.EventUpgrade {
		eventType = events.TypeSubscriptionUpgraded
	}
	s.recordTransition(ctx, company, transition)
	approved := s.transitionEvent(eventType, company, transition).
		WithInvoice(invoice.ID).
		With("package_id", pkg.ID.String()).
		With("package_name", pkg.Name).
		With("end_date", company.SubscriptionEndDate.Format(time.RFC3339))
	approved.ActorID = req.ActorID
	s.publish(ctx, approved, invoiceEvent(events.TypeInvoicePaid, invoice, now))

	return &subscriptiondomain.ApproveResponse{
		Company:    companydomain.ToResponse(company),
		Package:    plandomain.ToResponse(pkg),
		Invoice:    invoicedomain.ToResponse(invoice),
		NewEndDate: *company.SubscriptionEndDate,
	}, nil
}

func (s *Service) Reject(ctx context.Context, req subscriptiondomain.RejectRequest) (*subscriptiondomain.RejectResponse, error) {
	companyID, err := parseID(req.CompanyID, subscriptiondomain.ErrInvalidCompany)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(req.InvoiceID, subscriptiondomain.ErrInvalidInvoice)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, subscriptiondomain.ErrInvalidReason
	}

	now := s.clock.Now()
	var (
		company    *companydomain.Company
		invoice    *invoicedomain.Invoice
		transition *subscriptiondomain.Transition
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockCompany(ctx, tx, companyID)
		if err != nil {
			return err
		}
		inv, err := s.ledger.LoadForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Kind != invoicedomain.KindUpgrade {
			t, err := subscriptiondomain.Apply(c, subscriptiondomain.EventReject, subscriptiondomain.TransitionInput{
				Now:     now,
				Invoice: inv,
			})
			if err != nil {
				return err
			}
			transition = &t
		} else if err := subscriptiondomain.CheckInvoice(c, inv); err != nil {
			return err
		}
		if inv.Status != invoicedomain.StatusPaymentReceived {
			return invoicedomain.ErrNotVerified
		}
		if err := s.ledger.MarkRejected(ctx, tx, inv, req.Reason, req.Note); err != nil {
			return err
		}
		if transition != nil {
			if err := s.companyRepo.UpdateSubscription(ctx, tx, c); err != nil {
				return err
			}
		}
		company, invoice = c, inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := invoiceEvent(events.TypeSubscriptionRejected, invoice, now).
		With("reason", invoice.RejectionReason).
		With("note", invoice.RejectionNote)
	if transition != nil {
		s.recordTransition(ctx, company, *transition)
		event = event.With("from", string(transition.From)).With("to", string(transition.To))
	}
	event.ActorID = req.ActorID
	s.publish(ctx, event)
	return &subscriptiondomain.RejectResponse{
		Company: companydomain.ToResponse(company),
		Invoice: invoicedomain.ToResponse(invoice),
	}, nil
}

func (s *Service) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) (*companydomain.Response, error) {
	companyID, err := parseID(req.CompanyID, subscriptiondomain.ErrInvalidCompany)
	if err != nil {
		return nil, err
	}

	var (
		company    *companydomain.Company
		transition subscriptiondomain.Transition
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockCompany(ctx, tx, companyID)
		if err != nil {
			return err
		}
		transition, err = subscriptiondomain.Apply(c, subscriptiondomain.EventCancel, subscriptiondomain.TransitionInput{
			Now: s.clock.Now(),
		})
		if err != nil {
			return err
		}
		if err := s.companyRepo.UpdateSubscription(ctx, tx, c); err != nil {
			return err
		}
		company = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(ctx, company, transition)
	event := s.transitionEvent(events.TypeSubscriptionCancelled, company, transition).
		With("reason", strings.TrimSpace(req.Reason))
	event.ActorID = req.ActorID
	s.publish(ctx, event)
	resp := companydomain.ToResponse(company)
	return &resp, nil
}

func (s *Service) Expire(ctx context.Context, companyID snowflake.ID) (bool, error) {
	now := s.clock.Now()
	var (
		company    *companydomain.Company
		transition subscriptiondomain.Transition
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockCompany(ctx, tx, companyID)
		if err != nil {
			return err
		}
		if !c.IsActive || c.SubscriptionEndDate == nil || !c.SubscriptionEndDate.Before(now) ||
			!subscriptiondomain.Allowed(c.SubscriptionStatus, subscriptiondomain.EventExpire) {
			return nil
		}
		transition, err = subscriptiondomain.Apply(c, subscriptiondomain.EventExpire, subscriptiondomain.TransitionInput{Now: now})
		if err != nil {
			return err
		}
		if err := s.companyRepo.UpdateSubscription(ctx, tx, c); err != nil {
			return err
		}
		company = c
		return nil
	})
	if err != nil {
		return false, err
	}
	if company == nil {
		return false, nil
	}

	s.recordTransition(ctx, company, transition)
	s.publish(ctx, s.transitionEvent(events.TypeSubscriptionExpired, company, transition).
		With("end_date", company.SubscriptionEndDate.Format(time.RFC3339)))
	return true, nil
}

func (s *Service) lockCompany(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*companydomain.Company, error) {
	c, err := s.companyRepo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, companydomain.ErrNotFound
	}
	return c, nil
}

func (s *Service) loadPackage(ctx context.Context, db *gorm.DB, raw string) (*plandomain.Package, error) {
	id, err := parseID(raw, subscriptiondomain.ErrInvalidPackage)
	if err != nil {
		return nil, err
	}
	pkg, err := s.planRepo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, plandomain.ErrNotFound
	}
	return pkg, nil
}

// loadBillablePackage returns an active, paid package.
func (s *Service) loadBillablePackage(ctx context.Context, raw string) (*plandomain.Package, error) {
	pkg, err := s.loadPackage(ctx, s.db, raw)
	if err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, plandomain.ErrInactive
	}
	if pkg.IsTrial {
		return nil, subscriptiondomain.ErrTrialPackage
	}
	return pkg, nil
}

func (s *Service) recordTransition(ctx context.Context, c *companydomain.Company, t subscriptiondomain.Transition) {
	if s.metrics != nil {
		s.metrics.RecordSubscriptionTransition(ctx, string(t.From), string(t.To), string(t.Event))
	}
	logger.WithCompany(s.log, c.ID.String()).Info("subscription transition",
		zap.String("event", string(t.Event)),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.Bool("is_active", c.IsActive),
	)
}

func (s *Service) transitionEvent(t events.Type, c *companydomain.Company, tr subscriptiondomain.Transition) events.Event {
	return events.New(t, c.ID, s.clock.Now()).
		With("from", string(tr.From)).
		With("to", string(tr.To)).
		With("is_active", c.IsActive)
}

func invoiceEvent(t events.Type, inv *invoicedomain.Invoice, at time.Time) events.Event {
	return events.New(t, inv.CompanyID, at).
		WithInvoice(inv.ID).
		With("invoice_number", inv.InvoiceNumber).
		With("total_amount", inv.TotalAmount.StringFixed(2)).
		With("status", string(inv.Status))
}

func (s *Service) publish(ctx context.Context, evs ...events.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, evs...)
}

func resolveDuration(raw string, pkg *plandomain.Package) (plandomain.DurationType, error) {
	if strings.TrimSpace(raw) == "" {
		return pkg.DurationType, nil
	}
	d, ok := plandomain.ParseDurationType(raw)
	if !ok {
		return "", subscriptiondomain.ErrInvalidDuration
	}
	return d, nil
}

func parseID(raw string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
