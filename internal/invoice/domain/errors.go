package domain

import "github.com/smallbiznis/crmbilling/internal/fault"

var (
	ErrInvalidID            = fault.Validation("invalid_invoice_id")
	ErrInvalidCompany       = fault.Validation("invalid_company_id")
	ErrInvalidPackage       = fault.Validation("invalid_package_id")
	ErrInvalidAmount        = fault.Validation("invalid_amount")
	ErrInvalidPeriod        = fault.Validation("invalid_billing_period")
	ErrInvalidDueDate       = fault.Validation("invalid_due_date")
	ErrInvalidStatus        = fault.Validation("invalid_status")
	ErrInvalidPaymentMethod = fault.Validation("invalid_payment_method")
	ErrCompanyMismatch      = fault.Validation("invoice_company_mismatch")

	ErrNotFound = fault.NotFound("invoice_not_found")

	ErrAlreadyPaid            = fault.Conflict("invoice_already_paid")
	ErrAlreadyRejected        = fault.Conflict("invoice_already_rejected")
	ErrPaymentAlreadyReceived = fault.Conflict("payment_already_received")
	ErrNotSent                = fault.Conflict("invoice_not_sent")
	ErrNotSendable            = fault.Conflict("invoice_not_sendable")
	ErrNotEditable            = fault.Conflict("invoice_not_editable")
	ErrNotVoidable            = fault.Conflict("invoice_not_voidable")
	ErrNotVerified            = fault.Conflict("invoice_not_verified")
	ErrNotPaid                = fault.Conflict("invoice_not_paid")
	ErrHasPayments            = fault.Conflict("invoice_has_payments")
	ErrNumberUnavailable      = fault.Conflict("invoice_number_unavailable")
	ErrAwaitingApproval       = fault.Conflict("invoice_awaiting_subscription_approval")
)
