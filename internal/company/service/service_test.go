package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/crmbilling/internal/clock"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	"github.com/smallbiznis/crmbilling/internal/company/repository"
	"github.com/smallbiznis/crmbilling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) companydomain.Service {
	return NewService(Params{
		DB:    testutil.OpenDB(t, &companydomain.Company{}),
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Clock: clock.NewFakeClock(time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestCreateStartsWithoutSubscription(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, companydomain.CreateRequest{Name: " Acme ", Email: "Ops@Acme.io"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", created.Name)
	assert.Equal(t, "ops@acme.io", created.Email)
	assert.Equal(t, companydomain.StatusNone, created.SubscriptionStatus)
	assert.False(t, created.IsActive)
	assert.Nil(t, created.SubscriptionPackageID)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(context.Background(), companydomain.CreateRequest{Name: "", Email: "a@b.io"})
	assert.ErrorIs(t, err, companydomain.ErrInvalidName)

	_, err = svc.Create(context.Background(), companydomain.CreateRequest{Name: "Acme", Email: "not-an-email"})
	assert.ErrorIs(t, err, companydomain.ErrInvalidEmail)
}

func TestGetUnknownCompany(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(context.Background(), "123")
	assert.ErrorIs(t, err, companydomain.ErrNotFound)

	_, err = svc.Get(context.Background(), "abc")
	assert.ErrorIs(t, err, companydomain.ErrInvalidID)
}

func TestListFiltersByStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, companydomain.CreateRequest{Name: "A", Email: "a@a.io"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, companydomain.CreateRequest{Name: "B", Email: "b@b.io"})
	require.NoError(t, err)

	items, err := svc.List(ctx, companydomain.ListRequest{Status: companydomain.StatusNone})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = svc.List(ctx, companydomain.ListRequest{Status: companydomain.StatusApproved})
	require.NoError(t, err)
	assert.Empty(t, items)
}
