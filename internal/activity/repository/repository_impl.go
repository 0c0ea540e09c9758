package repository

import (
	"context"

	"github.com/smallbiznis/crmbilling/internal/activity/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.SystemLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO system_logs (id, level, category, message, company_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Level,
		entry.Category,
		entry.Message,
		entry.CompanyID,
		entry.Metadata,
		entry.CreatedAt,
	).Error
}
