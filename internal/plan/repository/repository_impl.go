package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

const packageColumns = `id, name, code, duration_type, price_weekly, price_monthly, price_quarterly,
	price_yearly, currency, is_trial, trial_duration_days, max_staff, max_leads_per_month,
	features, is_active, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *plandomain.Package) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_packages (`+packageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Name,
		p.Code,
		p.DurationType,
		p.PriceWeekly,
		p.PriceMonthly,
		p.PriceQuarterly,
		p.PriceYearly,
		p.Currency,
		p.IsTrial,
		p.TrialDurationDays,
		p.MaxStaff,
		p.MaxLeadsPerMonth,
		p.Features,
		p.IsActive,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, p *plandomain.Package) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscription_packages
		 SET name = ?, price_weekly = ?, price_monthly = ?, price_quarterly = ?, price_yearly = ?,
			max_staff = ?, max_leads_per_month = ?, features = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name,
		p.PriceWeekly,
		p.PriceMonthly,
		p.PriceQuarterly,
		p.PriceYearly,
		p.MaxStaff,
		p.MaxLeadsPerMonth,
		p.Features,
		p.IsActive,
		p.UpdatedAt,
		p.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*plandomain.Package, error) {
	var pkg plandomain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT `+packageColumns+` FROM subscription_packages WHERE id = ?`,
		id,
	).Scan(&pkg).Error
	if err != nil {
		return nil, err
	}
	if pkg.ID == 0 {
		return nil, nil
	}
	return &pkg, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]plandomain.Package, error) {
	var items []plandomain.Package
	stmt := db.WithContext(ctx).Model(&plandomain.Package{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if err := stmt.Order("name ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountActiveTenants(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM companies WHERE subscription_package_id = ? AND is_active = ?`,
		id,
		true,
	).Scan(&count).Error
	return count, err
}
