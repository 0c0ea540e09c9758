package service

import (
	"context"
	"time"

	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	"github.com/smallbiznis/crmbilling/internal/invoice/format"
	"github.com/smallbiznis/crmbilling/internal/observability/metrics"
	"github.com/smallbiznis/crmbilling/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNumberAttempts = 3

// numbering assigns year-scoped invoice numbers from the invoice_sequences
// counter. Each attempt runs in a savepoint so a duplicate number leaves the
// caller's transaction usable.
type numbering struct {
	log     *zap.Logger
	repo    invoicedomain.Repository
	metrics *metrics.Metrics
}

func (n *numbering) insert(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) error {
	prefix := format.Prefix(now)

	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		err := tx.Transaction(func(sp *gorm.DB) error {
			seq, err := n.repo.NextSequence(ctx, sp, prefix, now)
			if err != nil {
				return err
			}
			inv.InvoiceNumber = format.Number(now, seq)
			return n.repo.Insert(ctx, sp, inv)
		})
		if err == nil {
			return nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return err
		}

		n.metrics.RecordInvoiceNumberRetry(ctx)
		n.log.Warn("invoice number already taken",
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.Int("attempt", attempt),
		)
		if err := n.resync(ctx, tx, prefix, now); err != nil {
			return err
		}
	}

	inv.InvoiceNumber = ""
	return invoicedomain.ErrNumberUnavailable
}

// resync moves the counter past numbers that were issued outside it.
func (n *numbering) resync(ctx context.Context, tx *gorm.DB, prefix string, now time.Time) error {
	number, err := n.repo.HighestNumber(ctx, tx, prefix)
	if err != nil {
		return err
	}
	highest, ok := format.ParseSequence(prefix, number)
	if !ok {
		return nil
	}
	return n.repo.RaiseSequence(ctx, tx, prefix, highest, now)
}
