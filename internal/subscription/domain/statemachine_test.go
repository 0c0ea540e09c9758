package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now   = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	later = now.AddDate(0, 1, 0)
)

func fullInput(companyID snowflake.ID) TransitionInput {
	return TransitionInput{
		Now: now,
		Package: &plandomain.Package{
			ID:                7,
			IsTrial:           true,
			TrialDurationDays: 14,
			PriceMonthly:      decimal.NewNullDecimal(decimal.NewFromInt(100)),
		},
		Invoice:   &invoicedomain.Invoice{ID: 9, CompanyID: companyID},
		StartDate: &now,
		EndDate:   &later,
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from  Status
		event Event
		to    Status
	}{
		{companydomain.StatusNone, EventRequest, companydomain.StatusPending},
		{companydomain.StatusExpired, EventRequest, companydomain.StatusPending},
		{companydomain.StatusRejected, EventRequest, companydomain.StatusPending},
		{companydomain.StatusCancelled, EventRequest, companydomain.StatusPending},
		{companydomain.StatusNone, EventStartTrial, companydomain.StatusTrial},
		{companydomain.StatusPending, EventPaymentReceived, companydomain.StatusPaymentReceived},
		{companydomain.StatusPaymentReceived, EventApprove, companydomain.StatusApproved},
		{companydomain.StatusPaymentReceived, EventReject, companydomain.StatusRejected},
		{companydomain.StatusTrial, EventExpire, companydomain.StatusExpired},
		{companydomain.StatusApproved, EventExpire, companydomain.StatusExpired},
		{companydomain.StatusApproved, EventUpgrade, companydomain.StatusApproved},
		{companydomain.StatusTrial, EventCancel, companydomain.StatusCancelled},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.event)
		require.NoError(t, err, "%s/%s", tc.from, tc.event)
		assert.Equal(t, tc.to, got)
	}

	for _, bad := range []struct {
		from  Status
		event Event
	}{
		{companydomain.StatusPending, EventApprove},
		{companydomain.StatusApproved, EventReject},
		{companydomain.StatusRejected, EventReject},
		{companydomain.StatusApproved, EventRequest},
		{companydomain.StatusTrial, EventStartTrial},
		{companydomain.StatusExpired, EventStartTrial},
		{companydomain.StatusPending, EventExpire},
	} {
		_, err := Next(bad.from, bad.event)
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s/%s", bad.from, bad.event)
	}
}

func TestApplyRequestNeedsPeriod(t *testing.T) {
	c := &companydomain.Company{ID: 1, SubscriptionStatus: companydomain.StatusNone}
	in := fullInput(c.ID)
	in.EndDate = nil

	_, err := Apply(c, EventRequest, in)
	assert.ErrorIs(t, err, ErrMissingPeriod)
	assert.Equal(t, companydomain.StatusNone, c.SubscriptionStatus)
	assert.Nil(t, c.SubscriptionPackageID)

	in.Package = nil
	_, err = Apply(c, EventRequest, in)
	assert.ErrorIs(t, err, ErrInvalidPackage)
}

func TestApplyRequestLeavesActiveFlag(t *testing.T) {
	c := &companydomain.Company{ID: 1, SubscriptionStatus: companydomain.StatusNone}

	tr, err := Apply(c, EventRequest, fullInput(c.ID))
	require.NoError(t, err)
	assert.Equal(t, Transition{From: companydomain.StatusNone, To: companydomain.StatusPending, Event: EventRequest}, tr)
	assert.False(t, c.IsActive)
	require.NotNil(t, c.SubscriptionPackageID)
	assert.Equal(t, snowflake.ID(7), *c.SubscriptionPackageID)
	assert.Equal(t, now, *c.SubscriptionStartDate)
	assert.Equal(t, later, *c.SubscriptionEndDate)
}

func TestApplyStartTrial(t *testing.T) {
	c := &companydomain.Company{ID: 1, SubscriptionStatus: companydomain.StatusNone}
	in := fullInput(c.ID)

	_, err := Apply(c, EventStartTrial, in)
	require.NoError(t, err)
	assert.True(t, c.IsActive)
	assert.Equal(t, now.AddDate(0, 0, 14), *c.SubscriptionEndDate)

	paid := &companydomain.Company{ID: 2, SubscriptionStatus: companydomain.StatusNone}
	in = fullInput(paid.ID)
	in.Package.IsTrial = false
	_, err = Apply(paid, EventStartTrial, in)
	assert.ErrorIs(t, err, plandomain.ErrNotTrial)
}

func TestApplyRejectClearsDates(t *testing.T) {
	start, end := now, later
	c := &companydomain.Company{
		ID:                    1,
		SubscriptionInvoiceID: idPtr(9),
		SubscriptionStatus:    companydomain.StatusPaymentReceived,
		SubscriptionStartDate: &start,
		SubscriptionEndDate:   &end,
	}
	_, err := Apply(c, EventReject, fullInput(c.ID))
	require.NoError(t, err)
	assert.Equal(t, companydomain.StatusRejected, c.SubscriptionStatus)
	assert.Nil(t, c.SubscriptionStartDate)
	assert.Nil(t, c.SubscriptionEndDate)
	assert.False(t, c.IsActive)
}

func TestApplyRejectsForeignInvoice(t *testing.T) {
	c := &companydomain.Company{ID: 1, SubscriptionStatus: companydomain.StatusPending}
	_, err := Apply(c, EventPaymentReceived, fullInput(2))
	assert.ErrorIs(t, err, ErrInvoiceMismatch)
	assert.Equal(t, companydomain.StatusPending, c.SubscriptionStatus)
}

func TestApplyRejectsInvoiceFromEarlierRequest(t *testing.T) {
	for _, event := range []Event{EventPaymentReceived, EventApprove, EventReject} {
		from := companydomain.StatusPaymentReceived
		if event == EventPaymentReceived {
			from = companydomain.StatusPending
		}
		c := &companydomain.Company{ID: 1, SubscriptionInvoiceID: idPtr(8), SubscriptionStatus: from}

		_, err := Apply(c, event, fullInput(c.ID))
		assert.ErrorIs(t, err, ErrNotCurrentInvoice, string(event))
		assert.Equal(t, from, c.SubscriptionStatus)
		assert.False(t, c.IsActive)
	}

	none := &companydomain.Company{ID: 1, SubscriptionStatus: companydomain.StatusPending}
	_, err := Apply(none, EventPaymentReceived, fullInput(none.ID))
	assert.ErrorIs(t, err, ErrNotCurrentInvoice)
}

func TestRequestAndTrialResetCurrentInvoice(t *testing.T) {
	c := &companydomain.Company{ID: 1, SubscriptionInvoiceID: idPtr(8), SubscriptionStatus: companydomain.StatusCancelled}
	_, err := Apply(c, EventRequest, fullInput(c.ID))
	require.NoError(t, err)
	assert.Nil(t, c.SubscriptionInvoiceID)

	trial := &companydomain.Company{ID: 2, SubscriptionInvoiceID: idPtr(8), SubscriptionStatus: companydomain.StatusNone}
	_, err = Apply(trial, EventStartTrial, fullInput(trial.ID))
	require.NoError(t, err)
	assert.Nil(t, trial.SubscriptionInvoiceID)
}

func TestExpireKeepsDates(t *testing.T) {
	start, end := now.AddDate(0, -1, 0), now.AddDate(0, 0, -1)
	c := &companydomain.Company{
		ID:                    1,
		SubscriptionStatus:    companydomain.StatusApproved,
		SubscriptionStartDate: &start,
		SubscriptionEndDate:   &end,
		IsActive:              true,
	}
	_, err := Apply(c, EventExpire, TransitionInput{Now: now})
	require.NoError(t, err)
	assert.False(t, c.IsActive)
	assert.Equal(t, end, *c.SubscriptionEndDate)
	assert.Equal(t, start, *c.SubscriptionStartDate)
}

// Random walks over the table never leave an inactive status marked active.
func TestNoActiveTenantOutsideTrialOrApproved(t *testing.T) {
	all := []Event{
		EventRequest, EventStartTrial, EventPaymentReceived, EventApprove,
		EventReject, EventExpire, EventCancel, EventUpgrade,
	}
	rng := rand.New(rand.NewSource(42))

	for walk := 0; walk < 200; walk++ {
		c := &companydomain.Company{ID: 1, SubscriptionStatus: companydomain.StatusNone}
		for step := 0; step < 30; step++ {
			event := all[rng.Intn(len(all))]
			before := c.SubscriptionStatus
			_, err := Apply(c, event, fullInput(c.ID))
			if err != nil {
				assert.Equal(t, before, c.SubscriptionStatus)
			}
			if event == EventRequest && err == nil {
				c.SubscriptionInvoiceID = idPtr(9)
			}
			if c.IsActive {
				assert.Contains(t,
					[]Status{companydomain.StatusTrial, companydomain.StatusApproved},
					c.SubscriptionStatus,
					"walk %d step %d after %s", walk, step, event)
			}
		}
	}
}
