// Package domain defines the subscription lifecycle of a tenant: the
// transition table, its request shapes, and the upgrade proration result.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
)

type Service interface {
	RequestSubscription(ctx context.Context, req RequestSubscriptionRequest) (*RequestSubscriptionResponse, error)
	StartTrial(ctx context.Context, req StartTrialRequest) (*companydomain.Response, error)
	MarkPaymentReceived(ctx context.Context, req PaymentReceivedRequest) (*PaymentReceivedResponse, error)
	Approve(ctx context.Context, req ApproveRequest) (*ApproveResponse, error)
	Reject(ctx context.Context, req RejectRequest) (*RejectResponse, error)
	Cancel(ctx context.Context, req CancelRequest) (*companydomain.Response, error)
	// Expire moves a lapsed trial or approved tenant to expired. It reports
	// false without error when the tenant is no longer eligible.
	Expire(ctx context.Context, companyID snowflake.ID) (bool, error)
	PreviewUpgrade(ctx context.Context, req UpgradeRequest) (*Proration, error)
	InitiateUpgrade(ctx context.Context, req UpgradeRequest) (*InitiateUpgradeResponse, error)
}

type RequestSubscriptionRequest struct {
	CompanyID    string `json:"-"`
	PackageID    string `json:"package_id"`
	DurationType string `json:"duration_type"`
}

type RequestSubscriptionResponse struct {
	Invoice invoicedomain.Response `json:"invoice"`
	Company companydomain.Response `json:"company"`
}

type StartTrialRequest struct {
	CompanyID string `json:"-"`
	PackageID string `json:"package_id"`
}

// PaymentReceivedRequest records an admin's verification of an offline payment.
type PaymentReceivedRequest struct {
	InvoiceID  string `json:"-"`
	Method     string `json:"payment_method"`
	Reference  string `json:"payment_reference"`
	Notes      string `json:"payment_notes,omitempty"`
	VerifiedBy string `json:"-"`
}

type PaymentReceivedResponse struct {
	Invoice invoicedomain.Response `json:"invoice"`
	Company companydomain.Response `json:"company"`
}

type ApproveRequest struct {
	CompanyID string     `json:"-"`
	InvoiceID string     `json:"invoice_id"`
	StartDate *time.Time `json:"start_date,omitempty"`
	ActorID   string     `json:"-"`
}

type ApproveResponse struct {
	Company    companydomain.Response `json:"company"`
	Package    plandomain.Response    `json:"package"`
	Invoice    invoicedomain.Response `json:"invoice"`
	NewEndDate time.Time              `json:"new_end_date"`
}

type RejectRequest struct {
	CompanyID string `json:"-"`
	InvoiceID string `json:"invoice_id"`
	Reason    string `json:"reason"`
	Note      string `json:"note,omitempty"`
	ActorID   string `json:"-"`
}

type RejectResponse struct {
	Company companydomain.Response `json:"company"`
	Invoice invoicedomain.Response `json:"invoice"`
}

type CancelRequest struct {
	CompanyID string `json:"-"`
	Reason    string `json:"reason,omitempty"`
	ActorID   string `json:"-"`
}

type UpgradeRequest struct {
	CompanyID    string `json:"-" form:"-"`
	PackageID    string `json:"package_id" form:"package_id"`
	DurationType string `json:"duration_type" form:"duration_type"`
}

// Proration is a read-only upgrade quote. It is never persisted.
type Proration struct {
	CompanyID         string                  `json:"company_id"`
	CurrentPackageID  *string                 `json:"current_package_id,omitempty"`
	TargetPackageID   string                  `json:"target_package_id"`
	DurationType      plandomain.DurationType `json:"duration_type"`
	PaidAmount        decimal.Decimal         `json:"paid_amount"`
	TotalDurationDays int                     `json:"total_duration_days"`
	DaysRemaining     int                     `json:"days_remaining"`
	Credit            decimal.Decimal         `json:"credit"`
	TargetPrice       decimal.Decimal         `json:"target_price"`
	PayableAmount     decimal.Decimal         `json:"payable_amount"`
	Currency          string                  `json:"currency"`
	// FromPaidInvoice is false when the paid amount was estimated from package prices.
	FromPaidInvoice bool `json:"from_paid_invoice"`
}

type InitiateUpgradeResponse struct {
	Invoice     invoicedomain.Response `json:"invoice"`
	Calculation Proration              `json:"calculation"`
}
