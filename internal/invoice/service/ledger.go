package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmbilling/internal/clock"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	"github.com/smallbiznis/crmbilling/internal/observability/metrics"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LedgerParams struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    invoicedomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Ledger struct {
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      invoicedomain.Repository
	metrics   *metrics.Metrics
	numbering *numbering
}

func NewLedger(p LedgerParams) invoicedomain.Ledger {
	log := p.Log.Named("invoice.ledger")
	return &Ledger{
		log:     log,
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
		numbering: &numbering{
			log:     log,
			repo:    p.Repo,
			metrics: p.Metrics,
		},
	}
}

func (l *Ledger) Issue(ctx context.Context, tx *gorm.DB, in invoicedomain.IssueInput) (*invoicedomain.Invoice, error) {
	if in.CompanyID == 0 {
		return nil, invoicedomain.ErrInvalidCompany
	}
	if in.PackageID == 0 {
		return nil, invoicedomain.ErrInvalidPackage
	}
	if in.CreditApplied.IsNegative() {
		return nil, invoicedomain.ErrInvalidAmount
	}
	if !in.PeriodEnd.After(in.PeriodStart) {
		return nil, invoicedomain.ErrInvalidPeriod
	}
	if in.DueDate.IsZero() {
		return nil, invoicedomain.ErrInvalidDueDate
	}

	breakdown, err := taxdomain.Compute(in.Amount, in.Settings.TaxRate)
	if err != nil {
		return nil, invoicedomain.ErrInvalidAmount
	}

	kind := in.Kind
	if kind == "" {
		kind = invoicedomain.KindSubscription
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = in.Settings.Currency
	}
	now := l.clock.Now()
	inv := &invoicedomain.Invoice{
		ID:                 l.genID.Generate(),
		CompanyID:          in.CompanyID,
		PackageID:          in.PackageID,
		Kind:               kind,
		DurationType:       in.DurationType,
		Amount:             breakdown.Amount,
		TaxRate:            breakdown.Rate,
		TaxAmount:          breakdown.TaxAmount,
		TotalAmount:        breakdown.Total,
		CreditApplied:      in.CreditApplied.Round(2),
		Currency:           currency,
		BillingPeriodStart: in.PeriodStart.UTC(),
		BillingPeriodEnd:   in.PeriodEnd.UTC(),
		DueDate:            invoicedomain.DueDay(in.DueDate),
		Status:             invoicedomain.StatusPending,
		Notes:              strings.TrimSpace(in.Notes),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := l.numbering.insert(ctx, tx, inv, now); err != nil {
		return nil, err
	}

	l.metrics.RecordInvoiceIssued(ctx, string(kind))
	l.log.Info("invoice issued",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("company_id", inv.CompanyID.String()),
		zap.String("kind", string(kind)),
		zap.String("total_amount", inv.TotalAmount.StringFixed(2)),
	)
	return inv, nil
}

func (l *Ledger) LoadForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := l.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrNotFound
	}
	return inv, nil
}

func (l *Ledger) MarkPaymentReceived(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, receipt invoicedomain.PaymentReceipt) error {
	switch inv.Status {
	case invoicedomain.StatusSent, invoicedomain.StatusOverdue:
	case invoicedomain.StatusPaid:
		return invoicedomain.ErrAlreadyPaid
	case invoicedomain.StatusRejected:
		return invoicedomain.ErrAlreadyRejected
	case invoicedomain.StatusPaymentReceived:
		return invoicedomain.ErrPaymentAlreadyReceived
	default:
		return invoicedomain.ErrNotSent
	}
	method := strings.TrimSpace(receipt.Method)
	if method == "" {
		return invoicedomain.ErrInvalidPaymentMethod
	}

	now := l.clock.Now()
	verifier := strings.TrimSpace(receipt.VerifiedBy)
	inv.Status = invoicedomain.StatusPaymentReceived
	inv.PaymentMethod = method
	inv.PaymentReference = strings.TrimSpace(receipt.Reference)
	inv.PaymentNotes = strings.TrimSpace(receipt.Notes)
	inv.VerifiedBy = &verifier
	inv.VerifiedAt = &now
	inv.UpdatedAt = now
	return l.repo.Update(ctx, tx, inv)
}

func (l *Ledger) MarkPaid(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) error {
	switch inv.Status {
	case invoicedomain.StatusPaid:
		return invoicedomain.ErrAlreadyPaid
	case invoicedomain.StatusRejected:
		return invoicedomain.ErrAlreadyRejected
	case invoicedomain.StatusVoid, invoicedomain.StatusCancelled:
		return invoicedomain.ErrNotEditable
	}

	now := l.clock.Now()
	inv.Status = invoicedomain.StatusPaid
	inv.PaidAt = &now
	inv.UpdatedAt = now
	return l.repo.Update(ctx, tx, inv)
}

func (l *Ledger) MarkRejected(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, reason, note string) error {
	switch inv.Status {
	case invoicedomain.StatusPaid:
		return invoicedomain.ErrAlreadyPaid
	case invoicedomain.StatusRejected:
		return invoicedomain.ErrAlreadyRejected
	case invoicedomain.StatusVoid, invoicedomain.StatusCancelled:
		return invoicedomain.ErrNotEditable
	}

	now := l.clock.Now()
	inv.Status = invoicedomain.StatusRejected
	inv.RejectionReason = strings.TrimSpace(reason)
	inv.RejectionNote = strings.TrimSpace(note)
	inv.UpdatedAt = now
	return l.repo.Update(ctx, tx, inv)
}

func (l *Ledger) SetStatus(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, status invoicedomain.Status) error {
	if inv.Status == status {
		return nil
	}
	now := l.clock.Now()
	inv.Status = status
	if status == invoicedomain.StatusPaid && inv.PaidAt == nil {
		inv.PaidAt = &now
	}
	inv.UpdatedAt = now
	return l.repo.Update(ctx, tx, inv)
}

func (l *Ledger) LatestPaid(ctx context.Context, tx *gorm.DB, companyID, packageID snowflake.ID) (*invoicedomain.Invoice, error) {
	return l.repo.LatestPaid(ctx, tx, companyID, packageID)
}

// recomputeTax reapplies the invoice's own rate after an amount edit.
func recomputeTax(inv *invoicedomain.Invoice, amount decimal.Decimal) error {
	breakdown, err := taxdomain.Compute(amount, inv.TaxRate)
	if err != nil {
		return invoicedomain.ErrInvalidAmount
	}
	inv.Amount = breakdown.Amount
	inv.TaxAmount = breakdown.TaxAmount
	inv.TotalAmount = breakdown.Total
	return nil
}
