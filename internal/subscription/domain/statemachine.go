package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
)

// Status is the tenant's subscription status as stored on the company row.
type Status = companydomain.SubscriptionStatus

// Event is something that moves a tenant's subscription.
type Event string

const (
	EventRequest         Event = "request"
	EventStartTrial      Event = "start_trial"
	EventPaymentReceived Event = "payment_received"
	EventApprove         Event = "approve"
	EventReject          Event = "reject"
	EventExpire          Event = "expire"
	EventCancel          Event = "cancel"
	EventUpgrade         Event = "upgrade"
)

// transitions lists every allowed move. An event missing from a status's row
// is rejected with ErrInvalidTransition before any guard runs.
var transitions = map[Status]map[Event]Status{
	companydomain.StatusNone: {
		EventRequest:    companydomain.StatusPending,
		EventStartTrial: companydomain.StatusTrial,
	},
	companydomain.StatusExpired: {
		EventRequest: companydomain.StatusPending,
	},
	companydomain.StatusRejected: {
		EventRequest: companydomain.StatusPending,
	},
	companydomain.StatusCancelled: {
		EventRequest: companydomain.StatusPending,
	},
	companydomain.StatusPending: {
		EventPaymentReceived: companydomain.StatusPaymentReceived,
		EventCancel:          companydomain.StatusCancelled,
	},
	companydomain.StatusPaymentReceived: {
		EventApprove: companydomain.StatusApproved,
		EventReject:  companydomain.StatusRejected,
		EventCancel:  companydomain.StatusCancelled,
	},
	companydomain.StatusTrial: {
		EventExpire:  companydomain.StatusExpired,
		EventCancel:  companydomain.StatusCancelled,
		EventUpgrade: companydomain.StatusApproved,
	},
	companydomain.StatusApproved: {
		EventExpire:  companydomain.StatusExpired,
		EventCancel:  companydomain.StatusCancelled,
		EventUpgrade: companydomain.StatusApproved,
	},
}

// Next looks up the target status for event from status.
func Next(from Status, event Event) (Status, error) {
	to, ok := transitions[from][event]
	if !ok {
		return "", ErrInvalidTransition
	}
	return to, nil
}

// Allowed reports whether event may fire from status.
func Allowed(from Status, event Event) bool {
	_, err := Next(from, event)
	return err == nil
}

// TransitionInput carries what an event needs. Fields unused by an event are ignored.
type TransitionInput struct {
	Now       time.Time
	Package   *plandomain.Package
	Invoice   *invoicedomain.Invoice
	StartDate *time.Time
	EndDate   *time.Time
}

type guard func(c *companydomain.Company, in TransitionInput) error

var guards = map[Event]guard{
	EventRequest: func(_ *companydomain.Company, in TransitionInput) error {
		if in.Package == nil || in.Package.ID == 0 {
			return ErrInvalidPackage
		}
		if in.StartDate == nil || in.EndDate == nil || !in.EndDate.After(*in.StartDate) {
			return ErrMissingPeriod
		}
		return nil
	},
	EventStartTrial: func(_ *companydomain.Company, in TransitionInput) error {
		if in.Package == nil || in.Package.ID == 0 {
			return ErrInvalidPackage
		}
		if !in.Package.IsTrial || in.Package.TrialDurationDays <= 0 {
			return plandomain.ErrNotTrial
		}
		return nil
	},
	EventPaymentReceived: invoiceGuard,
	EventReject:          invoiceGuard,
	EventApprove:         periodInvoiceGuard,
	EventUpgrade: func(c *companydomain.Company, in TransitionInput) error {
		if err := periodInvoiceGuard(c, in); err != nil {
			return err
		}
		if in.Package == nil || in.Package.ID == 0 {
			return ErrInvalidPackage
		}
		return nil
	},
}

func invoiceGuard(c *companydomain.Company, in TransitionInput) error {
	return CheckInvoice(c, in.Invoice)
}

// CheckInvoice verifies inv is the invoice c's latest request or upgrade is
// waiting on.
func CheckInvoice(c *companydomain.Company, inv *invoicedomain.Invoice) error {
	if inv == nil {
		return ErrInvalidInvoice
	}
	if inv.CompanyID != c.ID {
		return ErrInvoiceMismatch
	}
	if !c.IsCurrentInvoice(inv.ID) {
		return ErrNotCurrentInvoice
	}
	return nil
}

func periodInvoiceGuard(c *companydomain.Company, in TransitionInput) error {
	if err := invoiceGuard(c, in); err != nil {
		return err
	}
	if in.StartDate == nil || in.EndDate == nil || !in.EndDate.After(*in.StartDate) {
		return ErrMissingPeriod
	}
	return nil
}

// Transition is the outcome of Apply.
type Transition struct {
	From  Status
	To    Status
	Event Event
}

// Apply checks the table and the event's guard against the stored company,
// then writes the new status and its side fields onto c. c is left untouched
// on error.
func Apply(c *companydomain.Company, event Event, in TransitionInput) (Transition, error) {
	from := c.SubscriptionStatus
	to, err := Next(from, event)
	if err != nil {
		return Transition{}, err
	}
	if g, ok := guards[event]; ok {
		if err := g(c, in); err != nil {
			return Transition{}, err
		}
	}

	switch event {
	case EventRequest:
		c.SubscriptionPackageID = idPtr(in.Package.ID)
		c.SubscriptionInvoiceID = nil
		c.SubscriptionStartDate = timePtr(*in.StartDate)
		c.SubscriptionEndDate = timePtr(*in.EndDate)
	case EventStartTrial:
		end := in.Now.AddDate(0, 0, in.Package.TrialDurationDays)
		c.SubscriptionPackageID = idPtr(in.Package.ID)
		c.SubscriptionStartDate = timePtr(in.Now)
		c.SubscriptionEndDate = &end
		c.SubscriptionInvoiceID = nil
		c.IsActive = true
	case EventApprove:
		c.SubscriptionStartDate = timePtr(*in.StartDate)
		c.SubscriptionEndDate = timePtr(*in.EndDate)
		c.IsActive = true
	case EventUpgrade:
		c.SubscriptionPackageID = idPtr(in.Package.ID)
		c.SubscriptionStartDate = timePtr(*in.StartDate)
		c.SubscriptionEndDate = timePtr(*in.EndDate)
		c.IsActive = true
	case EventReject:
		c.SubscriptionStartDate = nil
		c.SubscriptionEndDate = nil
		c.IsActive = false
	case EventExpire, EventCancel:
		c.IsActive = false
	}
	c.SubscriptionStatus = to
	c.UpdatedAt = in.Now
	return Transition{From: from, To: to, Event: event}, nil
}

func idPtr(id snowflake.ID) *snowflake.ID { return &id }

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
