package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmbilling/internal/clock"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"github.com/smallbiznis/crmbilling/internal/tax/repository"
	"github.com/smallbiznis/crmbilling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) taxdomain.Service {
	db := testutil.OpenDB(t, &taxdomain.Settings{})
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Clock: clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestCurrentFallsBackToDefaults(t *testing.T) {
	svc := newTestService(t)

	settings, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, settings.TaxRate.IsZero())
	assert.Equal(t, taxdomain.DefaultCurrency, settings.Currency)
}

func TestUpdatePersistsAndComputeUsesNewRate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rate := decimal.RequireFromString("0.18")
	name := "  Acme CRM  "
	resp, err := svc.Update(ctx, taxdomain.UpdateRequest{TaxRate: &rate, CompanyName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Acme CRM", resp.CompanyName)

	// second update keeps the same row
	terms := 14
	_, err = svc.Update(ctx, taxdomain.UpdateRequest{PaymentTermsDays: &terms})
	require.NoError(t, err)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.18", got.TaxRate.String())
	assert.Equal(t, 14, got.PaymentTermsDays)

	breakdown, err := svc.Compute(ctx, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "118.00", breakdown.Total.StringFixed(2))
}

func TestUpdateRejectsInvalidRate(t *testing.T) {
	svc := newTestService(t)

	rate := decimal.RequireFromString("1.5")
	_, err := svc.Update(context.Background(), taxdomain.UpdateRequest{TaxRate: &rate})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTaxRate)
}
