package domain

import "github.com/smallbiznis/crmbilling/internal/fault"

var (
	ErrInvalidID    = fault.Validation("invalid_company_id")
	ErrInvalidName  = fault.Validation("invalid_name")
	ErrInvalidEmail = fault.Validation("invalid_email")
	ErrNotFound     = fault.NotFound("company_not_found")
)
