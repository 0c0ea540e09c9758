// Package domain holds recorded tenant payments and the allocation rules
// that link them to invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return s, true
	default:
		return "", false
	}
}

// Payment is money received from a tenant. A nil InvoiceID means unapplied;
// once set it never changes.
type Payment struct {
	ID                   snowflake.ID    `gorm:"primaryKey"`
	CompanyID            snowflake.ID    `gorm:"not null;index"`
	InvoiceID            *snowflake.ID   `gorm:"index"`
	Amount               decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Method               string          `gorm:"type:text;not null"`
	TransactionReference string          `gorm:"type:text"`
	PaymentDate          time.Time       `gorm:"not null"`
	Status               Status          `gorm:"type:text;not null"`
	Notes                string          `gorm:"type:text"`
	CreatedAt            time.Time       `gorm:"not null"`
	UpdatedAt            time.Time       `gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// Allocatable reports whether the payment may be linked to an invoice.
func (p Payment) Allocatable() bool {
	return p.InvoiceID == nil && p.Status == StatusCompleted && p.Amount.IsPositive()
}
