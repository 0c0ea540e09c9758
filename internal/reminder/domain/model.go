// Package domain describes the payment reminder ladder for sent invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crmbilling/internal/config"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
)

type Type string

const (
	TypeSent24h      Type = config.RungSent24h
	TypeDueIn3Days   Type = config.RungDueIn3Days
	TypeDueToday     Type = config.RungDueToday
	TypeOverdue7Days Type = config.RungOverdue7Days
)

// Ladder lists rungs in evaluation order. The overdue rung flips the invoice
// out of sent, so it runs last.
var Ladder = []Type{TypeSent24h, TypeDueIn3Days, TypeDueToday, TypeOverdue7Days}

// Reminder records one reminder sent for an invoice.
type Reminder struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	InvoiceID    snowflake.ID `gorm:"column:invoice_id;not null;index:idx_invoice_reminders_invoice_type,priority:1"`
	CompanyID    snowflake.ID `gorm:"column:company_id;not null;index"`
	ReminderType Type         `gorm:"column:reminder_type;type:text;not null;index:idx_invoice_reminders_invoice_type,priority:2"`
	SentAt       time.Time    `gorm:"column:sent_at;not null"`
}

func (Reminder) TableName() string { return "invoice_reminders" }

// Due reports whether the rung applies to the invoice at now. Date
// comparisons are made on UTC calendar days.
func Due(t Type, inv *invoicedomain.Invoice, now time.Time) bool {
	if inv == nil || inv.Status != invoicedomain.StatusSent {
		return false
	}
	today := invoicedomain.DueDay(now)
	due := invoicedomain.DueDay(inv.DueDate)

	switch t {
	case TypeSent24h:
		return inv.SentAt != nil && !inv.SentAt.After(now.Add(-24*time.Hour)) && due.After(today)
	case TypeDueIn3Days:
		return due.After(today) && !due.After(today.AddDate(0, 0, 3))
	case TypeDueToday:
		return due.Equal(today)
	case TypeOverdue7Days:
		return !due.After(today.AddDate(0, 0, -7))
	default:
		return false
	}
}

// SweepResult summarizes one reminder sweep.
type SweepResult struct {
	Sent    int          `json:"sent_count"`
	Skipped int          `json:"skipped_count"`
	Failed  int          `json:"failed_count"`
	ByType  map[Type]int `json:"by_type"`
	// Overdue counts invoices moved to overdue during the sweep.
	Overdue int `json:"overdue_count"`
}
