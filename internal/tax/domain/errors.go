package domain

import "github.com/smallbiznis/crmbilling/internal/fault"

var (
	ErrInvalidAmount       = fault.Validation("invalid_amount")
	ErrInvalidTaxRate      = fault.Validation("invalid_tax_rate")
	ErrInvalidCurrency     = fault.Validation("invalid_currency")
	ErrInvalidPaymentTerms = fault.Validation("invalid_payment_terms")
)
