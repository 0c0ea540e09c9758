package domain

import "github.com/smallbiznis/crmbilling/internal/fault"

var (
	ErrInvalidID            = fault.Validation("invalid_package_id")
	ErrInvalidName          = fault.Validation("invalid_name")
	ErrInvalidDurationType  = fault.Validation("invalid_duration_type")
	ErrInvalidPrice         = fault.Validation("invalid_price")
	ErrInvalidTrialDuration = fault.Validation("invalid_trial_duration")
	ErrPriceNotConfigured   = fault.Validation("price_not_configured")
	ErrNotTrial             = fault.Validation("package_not_trial")
	ErrNotFound             = fault.NotFound("package_not_found")
	ErrInactive             = fault.Conflict("package_inactive")
	ErrInUse                = fault.Conflict("package_in_use")
	ErrCodeTaken            = fault.Conflict("package_code_exists")
)
