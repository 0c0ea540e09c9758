package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	// Update writes every mutable column of the invoice.
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountLinkedPayments(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	// LatestPaid returns the most recently paid invoice for the company and package.
	LatestPaid(ctx context.Context, db *gorm.DB, companyID, packageID snowflake.ID) (*Invoice, error)
	// ListByStatus pages through invoices with the status in ascending id order.
	ListByStatus(ctx context.Context, db *gorm.DB, status Status, afterID snowflake.ID, limit int) ([]Invoice, error)

	// NextSequence increments and returns the counter for prefix, seeding a
	// new prefix from the highest number already issued with it.
	NextSequence(ctx context.Context, db *gorm.DB, prefix string, now time.Time) (int64, error)
	// HighestNumber returns the greatest invoice number issued with prefix, or "".
	HighestNumber(ctx context.Context, db *gorm.DB, prefix string) (string, error)
	// RaiseSequence moves the counter forward to at least value.
	RaiseSequence(ctx context.Context, db *gorm.DB, prefix string, value int64, now time.Time) error
}
