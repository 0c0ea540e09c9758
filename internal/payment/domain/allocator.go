package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
)

// Application is the portion of one payment applied to an invoice.
type Application struct {
	PaymentID snowflake.ID
	Applied   decimal.Decimal
}

type Allocation struct {
	Applications []Application
	// Outstanding is what remains owed after the applications, never negative.
	Outstanding decimal.Decimal
	// UnappliedExcess is the part of the applied payments beyond the balance.
	UnappliedExcess decimal.Decimal
}

// AppliedTotal sums the applied amounts.
func (a Allocation) AppliedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, app := range a.Applications {
		total = total.Add(app.Applied)
	}
	return total
}

// Allocate applies payments in the given order until the balance is covered.
// Payments that are not allocatable are skipped. A payment that crosses the
// balance is applied in full to the invoice; the remainder is reported as excess.
func Allocate(outstanding decimal.Decimal, payments []Payment) Allocation {
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	result := Allocation{Outstanding: outstanding, UnappliedExcess: decimal.Zero}

	for _, p := range payments {
		if !result.Outstanding.IsPositive() {
			break
		}
		if !p.Allocatable() {
			continue
		}
		applied := decimal.Min(result.Outstanding, p.Amount)
		result.Applications = append(result.Applications, Application{PaymentID: p.ID, Applied: applied})
		result.Outstanding = result.Outstanding.Sub(applied)
		result.UnappliedExcess = result.UnappliedExcess.Add(p.Amount.Sub(applied))
	}
	return result
}

// SuggestedStatus is paid when nothing remains owed, partially_paid when
// something was applied, and the current status otherwise.
func SuggestedStatus(current invoicedomain.Status, a Allocation) invoicedomain.Status {
	switch {
	case !a.Outstanding.IsPositive():
		return invoicedomain.StatusPaid
	case len(a.Applications) > 0:
		return invoicedomain.StatusPartiallyPaid
	default:
		return current
	}
}

// InvoiceAllocatable reports whether an invoice in status s accepts payment links.
func InvoiceAllocatable(s invoicedomain.Status) bool {
	switch s {
	case invoicedomain.StatusDraft, invoicedomain.StatusPending, invoicedomain.StatusSent,
		invoicedomain.StatusOverdue, invoicedomain.StatusPartiallyPaid:
		return true
	default:
		return false
	}
}
