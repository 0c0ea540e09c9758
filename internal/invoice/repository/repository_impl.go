package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

const invoiceColumns = `id, company_id, package_id, invoice_number, kind, duration_type, amount, tax_rate,
	tax_amount, total_amount, credit_applied, currency, billing_period_start, billing_period_end,
	due_date, status, payment_method, payment_reference, payment_notes, notes, verified_by,
	verified_at, rejection_reason, rejection_note, void_reason, sent_at, paid_at, voided_at,
	created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.CompanyID,
		inv.PackageID,
		inv.InvoiceNumber,
		inv.Kind,
		inv.DurationType,
		inv.Amount,
		inv.TaxRate,
		inv.TaxAmount,
		inv.TotalAmount,
		inv.CreditApplied,
		inv.Currency,
		inv.BillingPeriodStart,
		inv.BillingPeriodEnd,
		inv.DueDate,
		inv.Status,
		inv.PaymentMethod,
		inv.PaymentReference,
		inv.PaymentNotes,
		inv.Notes,
		inv.VerifiedBy,
		inv.VerifiedAt,
		inv.RejectionReason,
		inv.RejectionNote,
		inv.VoidReason,
		inv.SentAt,
		inv.PaidAt,
		inv.VoidedAt,
		inv.CreatedAt,
		inv.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`,
		id,
	).Scan(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET amount = ?, tax_amount = ?, total_amount = ?, billing_period_start = ?,
			billing_period_end = ?, due_date = ?, status = ?, payment_method = ?,
			payment_reference = ?, payment_notes = ?, notes = ?, verified_by = ?, verified_at = ?,
			rejection_reason = ?, rejection_note = ?, void_reason = ?, sent_at = ?, paid_at = ?,
			voided_at = ?, updated_at = ?
		 WHERE id = ?`,
		inv.Amount,
		inv.TaxAmount,
		inv.TotalAmount,
		inv.BillingPeriodStart,
		inv.BillingPeriodEnd,
		inv.DueDate,
		inv.Status,
		inv.PaymentMethod,
		inv.PaymentReference,
		inv.PaymentNotes,
		inv.Notes,
		inv.VerifiedBy,
		inv.VerifiedAt,
		inv.RejectionReason,
		inv.RejectionNote,
		inv.VoidReason,
		inv.SentAt,
		inv.PaidAt,
		inv.VoidedAt,
		inv.UpdatedAt,
		inv.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM invoices WHERE id = ?`, id).Error
}

func (r *repo) CountLinkedPayments(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM payments WHERE invoice_id = ?`,
		id,
	).Scan(&count).Error
	return count, err
}

func (r *repo) LatestPaid(ctx context.Context, db *gorm.DB, companyID, packageID snowflake.ID) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE company_id = ? AND package_id = ? AND status = ?
		 ORDER BY paid_at DESC, id DESC
		 LIMIT 1`,
		companyID,
		packageID,
		invoicedomain.StatusPaid,
	).Scan(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status invoicedomain.Status, afterID snowflake.ID, limit int) ([]invoicedomain.Invoice, error) {
	var items []invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE status = ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		status,
		afterID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, prefix string, now time.Time) (int64, error) {
	var next int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO invoice_sequences (prefix, last_value, updated_at)
		 VALUES (?, (
			SELECT COALESCE(MAX(CAST(SUBSTR(invoice_number, ?) AS INTEGER)), 0) + 1
			FROM invoices
			WHERE invoice_number LIKE ?
		 ), ?)
		 ON CONFLICT (prefix) DO UPDATE
		 SET last_value = invoice_sequences.last_value + 1, updated_at = excluded.updated_at
		 RETURNING last_value`,
		prefix,
		len(prefix)+1,
		prefix+"%",
		now,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *repo) HighestNumber(ctx context.Context, db *gorm.DB, prefix string) (string, error) {
	var numbers []string
	err := db.WithContext(ctx).Raw(
		`SELECT invoice_number
		 FROM invoices
		 WHERE invoice_number LIKE ?
		 ORDER BY LENGTH(invoice_number) DESC, invoice_number DESC
		 LIMIT 1`,
		prefix+"%",
	).Scan(&numbers).Error
	if err != nil || len(numbers) == 0 {
		return "", err
	}
	return numbers[0], nil
}

func (r *repo) RaiseSequence(ctx context.Context, db *gorm.DB, prefix string, value int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoice_sequences
		 SET last_value = ?, updated_at = ?
		 WHERE prefix = ? AND last_value < ?`,
		value,
		now,
		prefix,
		value,
	).Error
}
