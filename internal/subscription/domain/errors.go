package domain

import "github.com/smallbiznis/crmbilling/internal/fault"

var (
	ErrInvalidCompany   = fault.Validation("invalid_company_id")
	ErrInvalidPackage   = fault.Validation("invalid_package_id")
	ErrInvalidInvoice   = fault.Validation("invalid_invoice_id")
	ErrInvalidDuration  = fault.Validation("invalid_duration_type")
	ErrMissingPeriod    = fault.Validation("subscription_period_required")
	ErrInvalidStartDate = fault.Validation("invalid_start_date")
	ErrInvalidReason    = fault.Validation("rejection_reason_required")
	ErrTrialPackage     = fault.Validation("package_is_trial")
	ErrInvoiceMismatch  = fault.Validation("invoice_company_mismatch")

	// ErrInvalidTransition is returned when the stored status does not allow the event.
	ErrInvalidTransition = fault.Conflict("subscription_not_in_expected_state")
	ErrNoSubscription    = fault.Conflict("no_active_subscription")
	// ErrNotCurrentInvoice is returned for an invoice from an earlier request or upgrade.
	ErrNotCurrentInvoice = fault.Conflict("invoice_not_current")
)
