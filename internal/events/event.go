package events

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

// Type names a billing event. Values are also used as NATS subject suffixes.
type Type string

const (
	TypeSubscriptionRequested    Type = "subscription.requested"
	TypeSubscriptionTrialStarted Type = "subscription.trial_started"
	TypePaymentReceived          Type = "subscription.payment_received"
	TypeSubscriptionApproved     Type = "subscription.approved"
	TypeSubscriptionRejected     Type = "subscription.rejected"
	TypeSubscriptionExpired      Type = "subscription.expired"
	TypeSubscriptionCancelled    Type = "subscription.cancelled"
	TypeUpgradeRequested         Type = "subscription.upgrade_requested"
	TypeSubscriptionUpgraded     Type = "subscription.upgraded"
	TypeInvoiceCreated           Type = "invoice.created"
	TypeInvoiceSent              Type = "invoice.sent"
	TypeInvoicePaid              Type = "invoice.paid"
	TypeInvoiceVoided            Type = "invoice.voided"
	TypeInvoiceReminder          Type = "invoice.reminder"
	TypeInvoiceOverdue           Type = "invoice.overdue"
	TypePaymentRecorded          Type = "payment.recorded"
)

// Event is an immutable fact emitted after the transaction that produced it committed.
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	CompanyID  snowflake.ID   `json:"company_id"`
	InvoiceID  snowflake.ID   `json:"invoice_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New builds an event with a sortable ULID id.
func New(t Type, companyID snowflake.ID, at time.Time) Event {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(at), entropy)
	entropyMu.Unlock()

	return Event{
		ID:         id.String(),
		Type:       t,
		CompanyID:  companyID,
		OccurredAt: at,
		Data:       map[string]any{},
	}
}

// WithInvoice sets the invoice the event concerns.
func (e Event) WithInvoice(id snowflake.ID) Event {
	e.InvoiceID = id
	return e
}

// With adds a payload field.
func (e Event) With(key string, value any) Event {
	data := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}

// String returns a payload field as a string, empty when absent.
func (e Event) String(key string) string {
	v, _ := e.Data[key].(string)
	return v
}
