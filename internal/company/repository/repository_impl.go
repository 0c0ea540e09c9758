package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() companydomain.Repository {
	return &repo{}
}

const companyColumns = `id, name, email, subscription_package_id, subscription_invoice_id,
	subscription_status, subscription_start_date, subscription_end_date, is_active, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *companydomain.Company) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO companies (`+companyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Name,
		c.Email,
		c.SubscriptionPackageID,
		c.SubscriptionInvoiceID,
		c.SubscriptionStatus,
		c.SubscriptionStartDate,
		c.SubscriptionEndDate,
		c.IsActive,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*companydomain.Company, error) {
	var company companydomain.Company
	err := db.WithContext(ctx).Raw(
		`SELECT `+companyColumns+` FROM companies WHERE id = ?`,
		id,
	).Scan(&company).Error
	if err != nil {
		return nil, err
	}
	if company.ID == 0 {
		return nil, nil
	}
	return &company, nil
}

// FindByIDForUpdate row-locks the company for the rest of the transaction.
// SQLite serializes writers instead and drops the locking clause.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*companydomain.Company, error) {
	var company companydomain.Company
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *repo) UpdateSubscription(ctx context.Context, db *gorm.DB, c *companydomain.Company) error {
	return db.WithContext(ctx).Exec(
		`UPDATE companies
		 SET subscription_package_id = ?, subscription_invoice_id = ?, subscription_status = ?,
			subscription_start_date = ?, subscription_end_date = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		c.SubscriptionPackageID,
		c.SubscriptionInvoiceID,
		c.SubscriptionStatus,
		c.SubscriptionStartDate,
		c.SubscriptionEndDate,
		c.IsActive,
		c.UpdatedAt,
		c.ID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter companydomain.ListRequest) ([]companydomain.Company, error) {
	var items []companydomain.Company
	stmt := db.WithContext(ctx).Model(&companydomain.Company{})
	if filter.Status != "" {
		stmt = stmt.Where("subscription_status = ?", filter.Status)
	}
	if filter.IsActive != nil {
		stmt = stmt.Where("is_active = ?", *filter.IsActive)
	}
	if err := stmt.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]companydomain.Company, error) {
	var items []companydomain.Company
	err := db.WithContext(ctx).Raw(
		`SELECT `+companyColumns+`
		 FROM companies
		 WHERE is_active = ? AND subscription_end_date IS NOT NULL AND subscription_end_date < ?
		 ORDER BY subscription_end_date ASC, id ASC
		 LIMIT ?`,
		true,
		now,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
