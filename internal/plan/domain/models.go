package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DurationType is the billing period a price applies to.
type DurationType string

const (
	DurationWeekly    DurationType = "weekly"
	DurationMonthly   DurationType = "monthly"
	DurationQuarterly DurationType = "quarterly"
	DurationYearly    DurationType = "yearly"
)

// ParseDurationType normalizes user input; ok is false for unknown values.
func ParseDurationType(raw string) (DurationType, bool) {
	d := DurationType(strings.ToLower(strings.TrimSpace(raw)))
	switch d {
	case DurationWeekly, DurationMonthly, DurationQuarterly, DurationYearly:
		return d, true
	default:
		return "", false
	}
}

// NominalDays is the day count used for proration.
func (d DurationType) NominalDays() int {
	switch d {
	case DurationWeekly:
		return 7
	case DurationQuarterly:
		return 90
	case DurationYearly:
		return 365
	default:
		return 30
	}
}

// EndDate advances start by one calendar period.
func (d DurationType) EndDate(start time.Time) time.Time {
	switch d {
	case DurationWeekly:
		return start.AddDate(0, 0, 7)
	case DurationQuarterly:
		return start.AddDate(0, 3, 0)
	case DurationYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// Package is a subscription plan. Invoices snapshot its prices at creation.
type Package struct {
	ID                snowflake.ID                `gorm:"primaryKey"`
	Name              string                      `gorm:"type:text;not null"`
	Code              string                      `gorm:"type:text;not null;uniqueIndex"`
	DurationType      DurationType                `gorm:"column:duration_type;type:text;not null"`
	PriceWeekly       decimal.NullDecimal         `gorm:"column:price_weekly;type:numeric(12,2)"`
	PriceMonthly      decimal.NullDecimal         `gorm:"column:price_monthly;type:numeric(12,2)"`
	PriceQuarterly    decimal.NullDecimal         `gorm:"column:price_quarterly;type:numeric(12,2)"`
	PriceYearly       decimal.NullDecimal         `gorm:"column:price_yearly;type:numeric(12,2)"`
	Currency          string                      `gorm:"type:text;not null"`
	IsTrial           bool                        `gorm:"column:is_trial;not null;default:false"`
	TrialDurationDays int                         `gorm:"column:trial_duration_days;not null;default:0"`
	MaxStaff          int                         `gorm:"column:max_staff;not null;default:0"`
	MaxLeadsPerMonth  int                         `gorm:"column:max_leads_per_month;not null;default:0"`
	Features          datatypes.JSONSlice[string] `gorm:"type:json"`
	IsActive          bool                        `gorm:"column:is_active;not null;default:true"`
	CreatedAt         time.Time                   `gorm:"not null"`
	UpdatedAt         time.Time                   `gorm:"not null"`
}

func (Package) TableName() string { return "subscription_packages" }

// PriceFor returns the configured price for a duration.
func (p *Package) PriceFor(d DurationType) (decimal.Decimal, bool) {
	var price decimal.NullDecimal
	switch d {
	case DurationWeekly:
		price = p.PriceWeekly
	case DurationMonthly:
		price = p.PriceMonthly
	case DurationQuarterly:
		price = p.PriceQuarterly
	case DurationYearly:
		price = p.PriceYearly
	}
	if !price.Valid {
		return decimal.Zero, false
	}
	return price.Decimal, true
}

func (p *Package) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrInvalidName
	}
	if _, ok := ParseDurationType(string(p.DurationType)); !ok {
		return ErrInvalidDurationType
	}
	for _, price := range []decimal.NullDecimal{p.PriceWeekly, p.PriceMonthly, p.PriceQuarterly, p.PriceYearly} {
		if price.Valid && price.Decimal.IsNegative() {
			return ErrInvalidPrice
		}
	}
	if p.IsTrial {
		if p.TrialDurationDays <= 0 {
			return ErrInvalidTrialDuration
		}
		return nil
	}
	if _, ok := p.PriceFor(p.DurationType); !ok {
		return ErrPriceNotConfigured
	}
	return nil
}
