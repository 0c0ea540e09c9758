package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmbilling/internal/clock"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	"github.com/smallbiznis/crmbilling/internal/plan/repository"
	"github.com/smallbiznis/crmbilling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (plandomain.Service, *gorm.DB) {
	db := testutil.OpenDB(t, &plandomain.Package{}, &companydomain.Company{})
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Clock: clock.NewFakeClock(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, db
}

func monthly(t *testing.T, svc plandomain.Service, name string, price int64) *plandomain.Response {
	t.Helper()
	p := decimal.NewFromInt(price)
	resp, err := svc.Create(context.Background(), plandomain.CreateRequest{
		Name:         name,
		DurationType: "monthly",
		PriceMonthly: &p,
		Features:     []string{"leads", " ", "staff"},
	})
	require.NoError(t, err)
	return resp
}

func TestCreateSlugsCodeAndStoresPrices(t *testing.T) {
	svc, _ := newTestService(t)

	resp := monthly(t, svc, "Pro Plan", 100)
	assert.Equal(t, "pro-plan", resp.Code)
	assert.Equal(t, "USD", resp.Currency)
	assert.Equal(t, []string{"leads", "staff"}, resp.Features)
	assert.True(t, resp.IsActive)

	got, err := svc.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.True(t, got.PriceMonthly.Valid)
	assert.Equal(t, "100.00", got.PriceMonthly.Decimal.StringFixed(2))
	assert.False(t, got.PriceYearly.Valid)
	assert.Equal(t, []string{"leads", "staff"}, got.Features)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	svc, _ := newTestService(t)
	monthly(t, svc, "Pro Plan", 100)

	p := decimal.NewFromInt(120)
	_, err := svc.Create(context.Background(), plandomain.CreateRequest{
		Name:         "pro plan",
		DurationType: "monthly",
		PriceMonthly: &p,
	})
	assert.ErrorIs(t, err, plandomain.ErrCodeTaken)
}

func TestCreateRequiresPriceForDuration(t *testing.T) {
	svc, _ := newTestService(t)
	p := decimal.NewFromInt(900)

	_, err := svc.Create(context.Background(), plandomain.CreateRequest{
		Name:         "Annual",
		DurationType: "yearly",
		PriceMonthly: &p,
	})
	assert.ErrorIs(t, err, plandomain.ErrPriceNotConfigured)
}

func TestDeactivateRefusedWhileActiveTenantHoldsPackage(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	pkg := monthly(t, svc, "Starter", 50)

	pkgID, err := parseID(pkg.ID)
	require.NoError(t, err)
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&companydomain.Company{
		ID:                    1,
		Name:                  "Acme",
		Email:                 "a@acme.io",
		SubscriptionPackageID: &pkgID,
		SubscriptionStatus:    companydomain.StatusApproved,
		IsActive:              true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}).Error)

	_, err = svc.Deactivate(ctx, pkg.ID)
	assert.ErrorIs(t, err, plandomain.ErrInUse)

	require.NoError(t, db.Model(&companydomain.Company{}).Where("id = ?", 1).Update("is_active", false).Error)

	resp, err := svc.Deactivate(ctx, pkg.ID)
	require.NoError(t, err)
	assert.False(t, resp.IsActive)

	active, err := svc.List(ctx, plandomain.ListRequest{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUpdateChangesOnlyProvidedFields(t *testing.T) {
	svc, _ := newTestService(t)
	pkg := monthly(t, svc, "Growth", 200)

	yearly := decimal.NewFromInt(2000)
	staff := 25
	resp, err := svc.Update(context.Background(), plandomain.UpdateRequest{
		ID:          pkg.ID,
		PriceYearly: &yearly,
		MaxStaff:    &staff,
	})
	require.NoError(t, err)
	assert.Equal(t, "Growth", resp.Name)
	assert.Equal(t, 25, resp.MaxStaff)
	assert.Equal(t, "200.00", resp.PriceMonthly.Decimal.StringFixed(2))
	assert.Equal(t, "2000.00", resp.PriceYearly.Decimal.StringFixed(2))

	_, err = svc.Update(context.Background(), plandomain.UpdateRequest{ID: "999"})
	assert.ErrorIs(t, err, plandomain.ErrNotFound)
}
