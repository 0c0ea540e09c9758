package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Deactivate(ctx context.Context, id string) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
}

type CreateRequest struct {
	Name              string           `json:"name"`
	DurationType      string           `json:"duration_type"`
	PriceWeekly       *decimal.Decimal `json:"price_weekly,omitempty"`
	PriceMonthly      *decimal.Decimal `json:"price_monthly,omitempty"`
	PriceQuarterly    *decimal.Decimal `json:"price_quarterly,omitempty"`
	PriceYearly       *decimal.Decimal `json:"price_yearly,omitempty"`
	Currency          string           `json:"currency"`
	IsTrial           bool             `json:"is_trial"`
	TrialDurationDays int              `json:"trial_duration_days"`
	MaxStaff          int              `json:"max_staff"`
	MaxLeadsPerMonth  int              `json:"max_leads_per_month"`
	Features          []string         `json:"features"`
}

// UpdateRequest changes only the fields that are set. Prices already on
// invoices are snapshots and are not affected.
type UpdateRequest struct {
	ID               string           `json:"-"`
	Name             *string          `json:"name,omitempty"`
	PriceWeekly      *decimal.Decimal `json:"price_weekly,omitempty"`
	PriceMonthly     *decimal.Decimal `json:"price_monthly,omitempty"`
	PriceQuarterly   *decimal.Decimal `json:"price_quarterly,omitempty"`
	PriceYearly      *decimal.Decimal `json:"price_yearly,omitempty"`
	MaxStaff         *int             `json:"max_staff,omitempty"`
	MaxLeadsPerMonth *int             `json:"max_leads_per_month,omitempty"`
	Features         []string         `json:"features,omitempty"`
}

type ListRequest struct {
	ActiveOnly bool
}

type Response struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Code              string              `json:"code"`
	DurationType      DurationType        `json:"duration_type"`
	PriceWeekly       decimal.NullDecimal `json:"price_weekly"`
	PriceMonthly      decimal.NullDecimal `json:"price_monthly"`
	PriceQuarterly    decimal.NullDecimal `json:"price_quarterly"`
	PriceYearly       decimal.NullDecimal `json:"price_yearly"`
	Currency          string              `json:"currency"`
	IsTrial           bool                `json:"is_trial"`
	TrialDurationDays int                 `json:"trial_duration_days"`
	MaxStaff          int                 `json:"max_staff"`
	MaxLeadsPerMonth  int                 `json:"max_leads_per_month"`
	Features          []string            `json:"features"`
	IsActive          bool                `json:"is_active"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func ToResponse(p *Package) Response {
	features := []string(p.Features)
	if features == nil {
		features = []string{}
	}
	return Response{
		ID:                p.ID.String(),
		Name:              p.Name,
		Code:              p.Code,
		DurationType:      p.DurationType,
		PriceWeekly:       p.PriceWeekly,
		PriceMonthly:      p.PriceMonthly,
		PriceQuarterly:    p.PriceQuarterly,
		PriceYearly:       p.PriceYearly,
		Currency:          p.Currency,
		IsTrial:           p.IsTrial,
		TrialDurationDays: p.TrialDurationDays,
		MaxStaff:          p.MaxStaff,
		MaxLeadsPerMonth:  p.MaxLeadsPerMonth,
		Features:          features,
		IsActive:          p.IsActive,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
