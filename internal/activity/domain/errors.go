package domain

import "github.com/smallbiznis/crmbilling/internal/fault"

var (
	ErrInvalidMessage  = fault.Validation("invalid_log_message")
	ErrInvalidLevel    = fault.Validation("invalid_log_level")
	ErrInvalidCompany  = fault.Validation("invalid_company_id")
	ErrInvalidCategory = fault.Validation("invalid_log_category")
)
