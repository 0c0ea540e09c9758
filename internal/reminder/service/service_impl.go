package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crmbilling/internal/clock"
	"github.com/smallbiznis/crmbilling/internal/config"
	"github.com/smallbiznis/crmbilling/internal/events"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	"github.com/smallbiznis/crmbilling/internal/observability/metrics"
	reminderdomain "github.com/smallbiznis/crmbilling/internal/reminder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepJob = "reminder_sweep"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        reminderdomain.Repository
	InvoiceRepo invoicedomain.Repository
	Ledger      invoicedomain.Ledger
	Config      *config.ReminderConfigHolder
	Publisher   events.Publisher
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        reminderdomain.Repository
	invoiceRepo invoicedomain.Repository
	ledger      invoicedomain.Ledger
	config      *config.ReminderConfigHolder
	publisher   events.Publisher
	metrics     *metrics.Metrics
}

func NewService(p Params) reminderdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("reminder.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		ledger:      p.Ledger,
		config:      p.Config,
		publisher:   p.Publisher,
		metrics:     p.Metrics,
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCapped
	outcomeSent
)

func (s *Service) Sweep(ctx context.Context) (reminderdomain.SweepResult, error) {
	cfg := s.config.Get()
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultReminderConfig().BatchSize
	}
	now := s.clock.Now()
	result := reminderdomain.SweepResult{ByType: map[reminderdomain.Type]int{}}

	var afterID snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		batch, err := s.invoiceRepo.ListByStatus(ctx, s.db, invoicedomain.StatusSent, afterID, batchSize)
		if err != nil {
			return result, err
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			inv := &batch[i]
			afterID = inv.ID
			for _, t := range reminderdomain.Ladder {
				rung := cfg.Rung(string(t))
				if !rung.Enabled || !reminderdomain.Due(t, inv, now) {
					continue
				}
				res, err := s.remind(ctx, inv, t, rung.MaxSends, now)
				if err != nil {
					result.Failed++
					metrics.Scheduler().IncRowFailure(sweepJob, err)
					s.log.Warn("reminder failed",
						zap.String("invoice_id", inv.ID.String()),
						zap.String("reminder_type", string(t)),
						zap.Error(err),
					)
					continue
				}
				switch res {
				case outcomeSent:
					result.Sent++
					result.ByType[t]++
					if t == reminderdomain.TypeOverdue7Days {
						result.Overdue++
					}
				case outcomeCapped:
					result.Skipped++
					metrics.Scheduler().IncSkipped(sweepJob, metrics.SchedulerSkipReasonCapped)
				default:
					result.Skipped++
				}
			}
		}
		if len(batch) < batchSize {
			break
		}
	}

	metrics.Scheduler().AddBatchProcessed(sweepJob, "reminder", result.Sent)
	s.log.Info("reminder sweep finished",
		zap.Int("sent_count", result.Sent),
		zap.Int("skipped_count", result.Skipped),
		zap.Int("failed_count", result.Failed),
		zap.Int("overdue_count", result.Overdue),
	)
	return result, nil
}

// remind records one reminder of type t for the invoice unless the cap is
// reached or the invoice moved on since it was listed.
func (s *Service) remind(ctx context.Context, listed *invoicedomain.Invoice, t reminderdomain.Type, maxSends int, now time.Time) (outcome, error) {
	count, err := s.repo.CountSent(ctx, s.db, listed.ID, t)
	if err != nil {
		return outcomeSkipped, err
	}
	if count >= int64(maxSends) {
		return outcomeCapped, nil
	}

	res := outcomeSkipped
	var inv *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.ledger.LoadForUpdate(ctx, tx, listed.ID)
		if err != nil {
			return err
		}
		if !reminderdomain.Due(t, locked, now) {
			return nil
		}
		count, err := s.repo.CountSent(ctx, tx, locked.ID, t)
		if err != nil {
			return err
		}
		if count >= int64(maxSends) {
			res = outcomeCapped
			return nil
		}

		if err := s.repo.Insert(ctx, tx, &reminderdomain.Reminder{
			ID:           s.genID.Generate(),
			InvoiceID:    locked.ID,
			CompanyID:    locked.CompanyID,
			ReminderType: t,
			SentAt:       now,
		}); err != nil {
			return err
		}
		if t == reminderdomain.TypeOverdue7Days {
			if err := s.ledger.SetStatus(ctx, tx, locked, invoicedomain.StatusOverdue); err != nil {
				return err
			}
		}
		res, inv = outcomeSent, locked
		return nil
	})
	if err != nil {
		return outcomeSkipped, err
	}
	if res != outcomeSent {
		return res, nil
	}

	if s.metrics != nil {
		s.metrics.RecordReminderSent(ctx, string(t))
	}
	s.log.Info("reminder recorded",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("company_id", inv.CompanyID.String()),
		zap.String("reminder_type", string(t)),
	)

	evs := []events.Event{s.reminderEvent(events.TypeInvoiceReminder, inv, t, now)}
	if t == reminderdomain.TypeOverdue7Days {
		evs = append(evs, s.reminderEvent(events.TypeInvoiceOverdue, inv, t, now))
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, evs...)
	}
	return res, nil
}

func (s *Service) reminderEvent(typ events.Type, inv *invoicedomain.Invoice, t reminderdomain.Type, now time.Time) events.Event {
	return events.New(typ, inv.CompanyID, now).
		WithInvoice(inv.ID).
		With("reminder_type", string(t)).
		With("invoice_number", inv.InvoiceNumber).
		With("due_date", inv.DueDate.Format("2006-01-02")).
		With("total_amount", inv.TotalAmount.StringFixed(2)).
		With("currency", inv.Currency)
}
