package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	// ListUnapplied returns the company's unlinked completed payments, oldest first.
	ListUnapplied(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]Payment, error)
	// SumLinked totals the completed payments already linked to the invoice.
	SumLinked(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error)
	// Link sets invoice_id on an unlinked payment; it reports false if the row was already linked.
	Link(ctx context.Context, db *gorm.DB, paymentID, invoiceID snowflake.ID, now time.Time) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
