package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const (
	DefaultCurrency         = "USD"
	DefaultTaxLabel         = "Tax"
	DefaultPaymentTermsDays = 7
)

// Settings is the single billing settings row. TaxRate is a fraction (0.18 for 18%).
type Settings struct {
	ID                snowflake.ID    `gorm:"primaryKey"`
	TaxRate           decimal.Decimal `gorm:"column:tax_rate;type:numeric(6,4);not null"`
	TaxLabel          string          `gorm:"column:tax_label;type:text;not null"`
	Currency          string          `gorm:"type:text;not null"`
	CompanyName       string          `gorm:"column:company_name;type:text"`
	CompanyAddress    string          `gorm:"column:company_address;type:text"`
	BankName          string          `gorm:"column:bank_name;type:text"`
	BankAccountName   string          `gorm:"column:bank_account_name;type:text"`
	BankAccountNumber string          `gorm:"column:bank_account_number;type:text"`
	QRCodeURL         string          `gorm:"column:qr_code_url;type:text"`
	PaymentTermsDays  int             `gorm:"column:payment_terms_days;not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

func (Settings) TableName() string { return "billing_settings" }

// DefaultSettings is used until an administrator saves settings.
func DefaultSettings() Settings {
	return Settings{
		TaxRate:          decimal.Zero,
		TaxLabel:         DefaultTaxLabel,
		Currency:         DefaultCurrency,
		PaymentTermsDays: DefaultPaymentTermsDays,
	}
}

func (s *Settings) Validate() error {
	if s.TaxRate.IsNegative() || s.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ErrInvalidTaxRate
	}
	if len(s.Currency) != 3 {
		return ErrInvalidCurrency
	}
	if s.PaymentTermsDays <= 0 {
		return ErrInvalidPaymentTerms
	}
	return nil
}

// Breakdown is the result of applying a flat rate to a base amount.
type Breakdown struct {
	Amount    decimal.Decimal `json:"amount"`
	Rate      decimal.Decimal `json:"tax_rate"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total_amount"`
}

// Compute rounds the base to cents, then tax = round(amount*rate, 2) and
// total = amount + tax. Rounding is half away from zero.
func Compute(amount, rate decimal.Decimal) (Breakdown, error) {
	if amount.IsNegative() {
		return Breakdown{}, ErrInvalidAmount
	}
	if rate.IsNegative() {
		return Breakdown{}, ErrInvalidTaxRate
	}
	base := amount.Round(2)
	tax := base.Mul(rate).Round(2)
	return Breakdown{
		Amount:    base,
		Rate:      rate,
		TaxAmount: tax,
		Total:     base.Add(tax),
	}, nil
}
