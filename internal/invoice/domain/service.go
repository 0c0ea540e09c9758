package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"github.com/smallbiznis/crmbilling/pkg/db/pagination"
	"gorm.io/gorm"
)

// Ledger writes invoice rows inside a transaction owned by the caller.
type Ledger interface {
	// Issue numbers and inserts a pending invoice with tax computed from the settings snapshot.
	Issue(ctx context.Context, tx *gorm.DB, in IssueInput) (*Invoice, error)
	LoadForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Invoice, error)
	MarkPaymentReceived(ctx context.Context, tx *gorm.DB, invoice *Invoice, receipt PaymentReceipt) error
	MarkPaid(ctx context.Context, tx *gorm.DB, invoice *Invoice) error
	MarkRejected(ctx context.Context, tx *gorm.DB, invoice *Invoice, reason, note string) error
	// SetStatus records an allocation or reminder outcome without further guards.
	SetStatus(ctx context.Context, tx *gorm.DB, invoice *Invoice, status Status) error
	LatestPaid(ctx context.Context, tx *gorm.DB, companyID, packageID snowflake.ID) (*Invoice, error)
}

type IssueInput struct {
	CompanyID     snowflake.ID
	PackageID     snowflake.ID
	Kind          Kind
	DurationType  plandomain.DurationType
	Amount        decimal.Decimal
	CreditApplied decimal.Decimal
	PeriodStart   time.Time
	PeriodEnd     time.Time
	DueDate       time.Time
	Settings      taxdomain.Settings
	// Currency overrides the settings currency, normally with the package currency.
	Currency      string
	Notes         string
}

type PaymentReceipt struct {
	Method     string
	Reference  string
	Notes      string
	VerifiedBy string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id string) (*Response, error)
	MarkPaid(ctx context.Context, id string) (*Response, error)
	Void(ctx context.Context, req VoidRequest) (*Response, error)
	Render(ctx context.Context, id string) (*Document, error)
	RenderReceipt(ctx context.Context, id string) (*Document, error)
}

// CreateRequest issues a manual invoice. Amount defaults to the package
// price for the duration; due date defaults to the configured payment terms.
type CreateRequest struct {
	CompanyID          string           `json:"company_id"`
	PackageID          string           `json:"package_id"`
	DurationType       string           `json:"duration_type"`
	Amount             *decimal.Decimal `json:"amount,omitempty"`
	BillingPeriodStart *time.Time       `json:"billing_period_start,omitempty"`
	BillingPeriodEnd   *time.Time       `json:"billing_period_end,omitempty"`
	DueDate            *time.Time       `json:"due_date,omitempty"`
	Notes              string           `json:"notes,omitempty"`
}

// UpdateRequest carries the administrative edits an open invoice accepts.
type UpdateRequest struct {
	ID                 string           `json:"-"`
	Amount             *decimal.Decimal `json:"amount,omitempty"`
	DueDate            *time.Time       `json:"due_date,omitempty"`
	BillingPeriodStart *time.Time       `json:"billing_period_start,omitempty"`
	BillingPeriodEnd   *time.Time       `json:"billing_period_end,omitempty"`
	Notes              *string          `json:"notes,omitempty"`
}

type VoidRequest struct {
	ID     string `json:"-"`
	Reason string `json:"reason"`
}

type ListRequest struct {
	pagination.Pagination
	CompanyID string     `form:"company_id"`
	Status    string     `form:"status"`
	DueFrom   *time.Time `form:"due_from" time_format:"2006-01-02"`
	DueTo     *time.Time `form:"due_to" time_format:"2006-01-02"`
}

type ListResponse struct {
	pagination.PageInfo
	Invoices []Response `json:"invoices"`
}

type Response struct {
	ID                 string                  `json:"id"`
	CompanyID          string                  `json:"company_id"`
	PackageID          string                  `json:"package_id"`
	InvoiceNumber      string                  `json:"invoice_number"`
	Kind               Kind                    `json:"kind"`
	DurationType       plandomain.DurationType `json:"duration_type,omitempty"`
	Amount             decimal.Decimal         `json:"amount"`
	TaxRate            decimal.Decimal         `json:"tax_rate"`
	TaxAmount          decimal.Decimal         `json:"tax_amount"`
	TotalAmount        decimal.Decimal         `json:"total_amount"`
	CreditApplied      decimal.Decimal         `json:"credit_applied"`
	Currency           string                  `json:"currency"`
	BillingPeriodStart time.Time               `json:"billing_period_start"`
	BillingPeriodEnd   time.Time               `json:"billing_period_end"`
	DueDate            time.Time               `json:"due_date"`
	Status             Status                  `json:"status"`
	PaymentMethod      string                  `json:"payment_method,omitempty"`
	PaymentReference   string                  `json:"payment_reference,omitempty"`
	PaymentNotes       string                  `json:"payment_notes,omitempty"`
	Notes              string                  `json:"notes,omitempty"`
	VerifiedBy         *string                 `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time              `json:"verified_at,omitempty"`
	RejectionReason    string                  `json:"rejection_reason,omitempty"`
	RejectionNote      string                  `json:"rejection_note,omitempty"`
	VoidReason         string                  `json:"void_reason,omitempty"`
	SentAt             *time.Time              `json:"sent_at,omitempty"`
	PaidAt             *time.Time              `json:"paid_at,omitempty"`
	VoidedAt           *time.Time              `json:"voided_at,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// Document is a rendered attachment.
type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

func ToResponse(inv *Invoice) Response {
	return Response{
		ID:                 inv.ID.String(),
		CompanyID:          inv.CompanyID.String(),
		PackageID:          inv.PackageID.String(),
		InvoiceNumber:      inv.InvoiceNumber,
		Kind:               inv.Kind,
		DurationType:       inv.DurationType,
		Amount:             inv.Amount,
		TaxRate:            inv.TaxRate,
		TaxAmount:          inv.TaxAmount,
		TotalAmount:        inv.TotalAmount,
		CreditApplied:      inv.CreditApplied,
		Currency:           inv.Currency,
		BillingPeriodStart: inv.BillingPeriodStart,
		BillingPeriodEnd:   inv.BillingPeriodEnd,
		DueDate:            inv.DueDate,
		Status:             inv.Status,
		PaymentMethod:      inv.PaymentMethod,
		PaymentReference:   inv.PaymentReference,
		PaymentNotes:       inv.PaymentNotes,
		Notes:              inv.Notes,
		VerifiedBy:         inv.VerifiedBy,
		VerifiedAt:         inv.VerifiedAt,
		RejectionReason:    inv.RejectionReason,
		RejectionNote:      inv.RejectionNote,
		VoidReason:         inv.VoidReason,
		SentAt:             inv.SentAt,
		PaidAt:             inv.PaidAt,
		VoidedAt:           inv.VoidedAt,
		CreatedAt:          inv.CreatedAt,
		UpdatedAt:          inv.UpdatedAt,
	}
}
