package option

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/crmbilling/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a query before it runs.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

// Condition is a single column comparison. Field must come from code, never from input.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(c Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		switch c.Operator {
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
		case EQ, GT, GTE, LT, LTE:
			return db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
		default:
			return db
		}
	})
}

// IsNull matches rows where field is NULL.
func IsNull(field string) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(fmt.Sprintf("%s IS NULL", field))
	})
}

// QuerySortBy orders by an allow-listed column. Unknown columns fall back to id.
type QuerySortBy struct {
	Allow   map[string]bool
	SortBy  string
	OrderBy string
}

func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{Allow: allow, SortBy: sortBy, OrderBy: orderBy}
}

func WithSortBy(q QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column := strings.ToLower(strings.TrimSpace(q.SortBy))
		if !q.Allow[column] {
			column = "id"
		}
		direction := "DESC"
		if strings.EqualFold(strings.TrimSpace(q.OrderBy), "asc") {
			direction = "ASC"
		}
		db = db.Order(column + " " + direction)
		if column != "id" {
			db = db.Order("id " + direction)
		}
		return db
	})
}

// ApplyPagination pages by descending id. It fetches one extra row so
// callers can tell whether another page exists.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := p.Size()
		if p.PageToken != "" {
			if cursor, err := pagination.DecodeCursor(p.PageToken); err == nil {
				if id, err := strconv.ParseInt(cursor.ID, 10, 64); err == nil {
					db = db.Where("id < ?", id)
				}
			}
		}
		return db.Order("id DESC").Limit(size + 1)
	})
}
