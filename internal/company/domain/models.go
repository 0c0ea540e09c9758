package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus is the tenant's position in the subscription lifecycle.
type SubscriptionStatus string

const (
	StatusNone            SubscriptionStatus = "none"
	StatusTrial           SubscriptionStatus = "trial"
	StatusPending         SubscriptionStatus = "pending"
	StatusPaymentReceived SubscriptionStatus = "payment_received"
	StatusApproved        SubscriptionStatus = "approved"
	StatusExpired         SubscriptionStatus = "expired"
	StatusCancelled       SubscriptionStatus = "cancelled"
	StatusRejected        SubscriptionStatus = "rejected"
)

// Entitled reports whether a tenant in this status may be active.
func (s SubscriptionStatus) Entitled() bool {
	return s == StatusTrial || s == StatusApproved
}

// Company is a tenant. Subscription fields change only through the subscription service.
type Company struct {
	ID                    snowflake.ID       `gorm:"primaryKey"`
	Name                  string             `gorm:"type:text;not null"`
	Email                 string             `gorm:"type:text;not null"`
	SubscriptionPackageID *snowflake.ID      `gorm:"column:subscription_package_id;index"`
	SubscriptionInvoiceID *snowflake.ID      `gorm:"column:subscription_invoice_id;index"`
	SubscriptionStatus    SubscriptionStatus `gorm:"column:subscription_status;type:text;not null;default:'none'"`
	SubscriptionStartDate *time.Time         `gorm:"column:subscription_start_date"`
	SubscriptionEndDate   *time.Time         `gorm:"column:subscription_end_date;index"`
	IsActive              bool               `gorm:"column:is_active;not null;default:false"`
	CreatedAt             time.Time          `gorm:"not null"`
	UpdatedAt             time.Time          `gorm:"not null"`
}

func (Company) TableName() string { return "companies" }

// IsCurrentInvoice reports whether id is the invoice issued by the latest
// request or upgrade.
func (c *Company) IsCurrentInvoice(id snowflake.ID) bool {
	return c.SubscriptionInvoiceID != nil && *c.SubscriptionInvoiceID == id
}

// SettlesOnApproval reports whether invoice id belongs to a request or
// upgrade that has not been decided yet. Such an invoice becomes paid only
// when the subscription is approved.
func (c *Company) SettlesOnApproval(id snowflake.ID) bool {
	if !c.IsCurrentInvoice(id) {
		return false
	}
	switch c.SubscriptionStatus {
	case StatusPending, StatusPaymentReceived, StatusTrial, StatusApproved:
		return true
	default:
		return false
	}
}
