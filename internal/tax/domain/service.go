package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SettingsProvider supplies the current billing settings to invoice creation.
type SettingsProvider interface {
	Current(ctx context.Context) (Settings, error)
}

type Service interface {
	SettingsProvider
	Compute(ctx context.Context, amount decimal.Decimal) (Breakdown, error)
	Get(ctx context.Context) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
}

type UpdateRequest struct {
	TaxRate           *decimal.Decimal `json:"tax_rate,omitempty"`
	TaxLabel          *string          `json:"tax_label,omitempty"`
	Currency          *string          `json:"currency,omitempty"`
	CompanyName       *string          `json:"company_name,omitempty"`
	CompanyAddress    *string          `json:"company_address,omitempty"`
	BankName          *string          `json:"bank_name,omitempty"`
	BankAccountName   *string          `json:"bank_account_name,omitempty"`
	BankAccountNumber *string          `json:"bank_account_number,omitempty"`
	QRCodeURL         *string          `json:"qr_code_url,omitempty"`
	PaymentTermsDays  *int             `json:"payment_terms_days,omitempty"`
}

type Response struct {
	TaxRate           decimal.Decimal `json:"tax_rate"`
	TaxLabel          string          `json:"tax_label"`
	Currency          string          `json:"currency"`
	CompanyName       string          `json:"company_name"`
	CompanyAddress    string          `json:"company_address"`
	BankName          string          `json:"bank_name"`
	BankAccountName   string          `json:"bank_account_name"`
	BankAccountNumber string          `json:"bank_account_number"`
	QRCodeURL         string          `json:"qr_code_url"`
	PaymentTermsDays  int             `json:"payment_terms_days"`
	UpdatedAt         *time.Time      `json:"updated_at,omitempty"`
}
