package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	"github.com/smallbiznis/crmbilling/pkg/db/pagination"
)

type Service interface {
	Record(ctx context.Context, req RecordRequest) (*RecordResponse, error)
	Void(ctx context.Context, id string) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	AllocateToInvoice(ctx context.Context, invoiceID string) (*AllocationResponse, error)
}

// RecordRequest stores a received payment. When InvoiceID is set the
// payment is allocated to that invoice in the same transaction.
type RecordRequest struct {
	CompanyID            string          `json:"company_id"`
	Amount               decimal.Decimal `json:"amount"`
	Method               string          `json:"method"`
	TransactionReference string          `json:"transaction_reference,omitempty"`
	PaymentDate          *time.Time      `json:"payment_date,omitempty"`
	Status               string          `json:"status,omitempty"`
	InvoiceID            string          `json:"invoice_id,omitempty"`
	Notes                string          `json:"notes,omitempty"`
}

type RecordResponse struct {
	Payment    Response            `json:"payment"`
	Allocation *AllocationResponse `json:"allocation,omitempty"`
}

type ListRequest struct {
	pagination.Pagination
	CompanyID string `form:"company_id"`
	Unapplied bool   `form:"unapplied"`
}

type ListResponse struct {
	pagination.PageInfo
	Payments []Response `json:"payments"`
}

type AppliedPayment struct {
	PaymentID     string          `json:"payment_id"`
	AppliedAmount decimal.Decimal `json:"applied_amount"`
}

type AllocationResponse struct {
	InvoiceID          string               `json:"invoice_id"`
	Applied            []AppliedPayment     `json:"applied"`
	OutstandingBalance decimal.Decimal      `json:"outstanding_balance"`
	UnappliedExcess    decimal.Decimal      `json:"unapplied_excess"`
	InvoiceStatus      invoicedomain.Status `json:"invoice_status"`
	// AwaitingApproval is set when the invoice is settled by subscription approval
	// and its status was left for that flow.
	AwaitingApproval   bool                 `json:"awaiting_approval,omitempty"`
}

type Response struct {
	ID                   string          `json:"id"`
	CompanyID            string          `json:"company_id"`
	InvoiceID            *string         `json:"invoice_id,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Method               string          `json:"method"`
	TransactionReference string          `json:"transaction_reference,omitempty"`
	PaymentDate          time.Time       `json:"payment_date"`
	Status               Status          `json:"status"`
	Notes                string          `json:"notes,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func ToResponse(p *Payment) Response {
	resp := Response{
		ID:                   p.ID.String(),
		CompanyID:            p.CompanyID.String(),
		Amount:               p.Amount,
		Method:               p.Method,
		TransactionReference: p.TransactionReference,
		PaymentDate:          p.PaymentDate,
		Status:               p.Status,
		Notes:                p.Notes,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	if p.InvoiceID != nil {
		id := p.InvoiceID.String()
		resp.InvoiceID = &id
	}
	return resp
}
