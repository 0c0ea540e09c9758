package domain

import "github.com/smallbiznis/crmbilling/internal/fault"

var (
	ErrInvalidID      = fault.Validation("invalid_payment_id")
	ErrInvalidCompany = fault.Validation("invalid_company_id")
	ErrInvalidInvoice = fault.Validation("invalid_invoice_id")
	ErrInvalidAmount  = fault.Validation("invalid_payment_amount")
	ErrInvalidMethod  = fault.Validation("invalid_payment_method")
	ErrInvalidStatus  = fault.Validation("invalid_payment_status")
	ErrNotCompleted   = fault.Validation("payment_not_completed")

	ErrNotFound = fault.NotFound("payment_not_found")

	ErrLinked                = fault.Conflict("payment_linked")
	ErrInvoiceNotAllocatable = fault.Conflict("invoice_not_allocatable")
)
