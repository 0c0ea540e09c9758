package domain

import (
	"context"
	"time"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
}

type CreateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ListRequest struct {
	Status   SubscriptionStatus
	IsActive *bool
}

type Response struct {
	ID                    string             `json:"id"`
	Name                  string             `json:"name"`
	Email                 string             `json:"email"`
	SubscriptionPackageID *string            `json:"subscription_package_id,omitempty"`
	SubscriptionInvoiceID *string            `json:"subscription_invoice_id,omitempty"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	SubscriptionStartDate *time.Time         `json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time         `json:"subscription_end_date,omitempty"`
	IsActive              bool               `json:"is_active"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// ToResponse renders a company for API callers.
func ToResponse(c *Company) Response {
	resp := Response{
		ID:                    c.ID.String(),
		Name:                  c.Name,
		Email:                 c.Email,
		SubscriptionStatus:    c.SubscriptionStatus,
		SubscriptionStartDate: c.SubscriptionStartDate,
		SubscriptionEndDate:   c.SubscriptionEndDate,
		IsActive:              c.IsActive,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
	if c.SubscriptionPackageID != nil {
		id := c.SubscriptionPackageID.String()
		resp.SubscriptionPackageID = &id
	}
	if c.SubscriptionInvoiceID != nil {
		id := c.SubscriptionInvoiceID.String()
		resp.SubscriptionInvoiceID = &id
	}
	return resp
}
