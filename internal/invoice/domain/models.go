// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
)

// Status is the invoice's own lifecycle, independent of the tenant's subscription status.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPending         Status = "pending"
	StatusSent            Status = "sent"
	StatusPaymentReceived Status = "payment_received"
	StatusPaid            Status = "paid"
	StatusPartiallyPaid   Status = "partially_paid"
	StatusOverdue         Status = "overdue"
	StatusVoid            Status = "void"
	StatusCancelled       Status = "cancelled"
	StatusRejected        Status = "rejected"
)

// ParseStatus validates a status filter.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	switch s {
	case StatusDraft, StatusPending, StatusSent, StatusPaymentReceived, StatusPaid,
		StatusPartiallyPaid, StatusOverdue, StatusVoid, StatusCancelled, StatusRejected:
		return s, true
	default:
		return "", false
	}
}

// Closed reports whether the invoice no longer accepts edits.
func (s Status) Closed() bool {
	return s == StatusPaid || s == StatusVoid || s == StatusCancelled
}

// Kind separates period invoices from mid-cycle upgrade invoices.
type Kind string

const (
	KindSubscription Kind = "subscription"
	KindUpgrade      Kind = "upgrade"
)

// Invoice amounts are snapshots taken at creation.
type Invoice struct {
	ID                 snowflake.ID            `gorm:"primaryKey"`
	CompanyID          snowflake.ID            `gorm:"column:company_id;not null;index"`
	PackageID          snowflake.ID            `gorm:"column:package_id;not null;index"`
	InvoiceNumber      string                  `gorm:"column:invoice_number;type:text;not null;uniqueIndex"`
	Kind               Kind                    `gorm:"type:text;not null;default:'subscription'"`
	DurationType       plandomain.DurationType `gorm:"column:duration_type;type:text"`
	Amount             decimal.Decimal         `gorm:"type:numeric(12,2);not null"`
	TaxRate            decimal.Decimal         `gorm:"column:tax_rate;type:numeric(6,4);not null"`
	TaxAmount          decimal.Decimal         `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	TotalAmount        decimal.Decimal         `gorm:"column:total_amount;type:numeric(12,2);not null"`
	CreditApplied      decimal.Decimal         `gorm:"column:credit_applied;type:numeric(12,2);not null;default:0"`
	Currency           string                  `gorm:"type:text;not null"`
	BillingPeriodStart time.Time               `gorm:"column:billing_period_start;not null"`
	BillingPeriodEnd   time.Time               `gorm:"column:billing_period_end;not null"`
	DueDate            time.Time               `gorm:"column:due_date;not null;index"`
	Status             Status                  `gorm:"type:text;not null;index"`
	PaymentMethod      string                  `gorm:"column:payment_method;type:text"`
	PaymentReference   string                  `gorm:"column:payment_reference;type:text"`
	PaymentNotes       string                  `gorm:"column:payment_notes;type:text"`
	Notes              string                  `gorm:"type:text"`
	VerifiedBy         *string                 `gorm:"column:verified_by;type:text"`
	VerifiedAt         *time.Time              `gorm:"column:verified_at"`
	RejectionReason    string                  `gorm:"column:rejection_reason;type:text"`
	RejectionNote      string                  `gorm:"column:rejection_note;type:text"`
	VoidReason         string                  `gorm:"column:void_reason;type:text"`
	SentAt             *time.Time              `gorm:"column:sent_at"`
	PaidAt             *time.Time              `gorm:"column:paid_at"`
	VoidedAt           *time.Time              `gorm:"column:voided_at"`
	CreatedAt          time.Time               `gorm:"not null"`
	UpdatedAt          time.Time               `gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

// Sequence holds the last issued number per year prefix.
type Sequence struct {
	Prefix    string    `gorm:"primaryKey;type:text"`
	LastValue int64     `gorm:"column:last_value;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Sequence) TableName() string { return "invoice_sequences" }

// DueDay truncates t to its UTC calendar day.
func DueDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
