package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crmbilling/pkg/db/pagination"
)

// Sink persists activity entries. Callers treat failures as non-fatal.
type Sink interface {
	Record(ctx context.Context, level Level, category Category, message string, companyID snowflake.ID, metadata map[string]any) error
}

type Service interface {
	Sink
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

type ListRequest struct {
	pagination.Pagination
	CompanyID string `form:"company_id"`
	Category  string `form:"category"`
	Level     string `form:"level"`
}

type ListResponse struct {
	pagination.PageInfo
	Logs []SystemLog `json:"logs"`
}
