package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, company *Company) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Company, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Company, error)
	UpdateSubscription(ctx context.Context, db *gorm.DB, company *Company) error
	List(ctx context.Context, db *gorm.DB, filter ListRequest) ([]Company, error)
	// ListExpired returns active companies whose subscription ended before now.
	ListExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Company, error)
}
