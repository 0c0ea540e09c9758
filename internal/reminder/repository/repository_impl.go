package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	reminderdomain "github.com/smallbiznis/crmbilling/internal/reminder/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() reminderdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rem *reminderdomain.Reminder) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoice_reminders (id, invoice_id, company_id, reminder_type, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rem.ID,
		rem.InvoiceID,
		rem.CompanyID,
		rem.ReminderType,
		rem.SentAt,
	).Error
}

func (r *repo) CountSent(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, t reminderdomain.Type) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM invoice_reminders WHERE invoice_id = ? AND reminder_type = ?`,
		invoiceID,
		t,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]reminderdomain.Reminder, error) {
	var items []reminderdomain.Reminder
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, company_id, reminder_type, sent_at
		 FROM invoice_reminders
		 WHERE invoice_id = ?
		 ORDER BY sent_at ASC, id ASC`,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
