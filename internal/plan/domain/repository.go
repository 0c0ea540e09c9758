package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pkg *Package) error
	Update(ctx context.Context, db *gorm.DB, pkg *Package) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Package, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]Package, error)
	// CountActiveTenants counts companies with is_active=true holding the package.
	CountActiveTenants(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
}
