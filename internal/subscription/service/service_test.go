package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmbilling/internal/clock"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	companyrepo "github.com/smallbiznis/crmbilling/internal/company/repository"
	"github.com/smallbiznis/crmbilling/internal/events"
	"github.com/smallbiznis/crmbilling/internal/fault"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/crmbilling/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/crmbilling/internal/invoice/service"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	planrepo "github.com/smallbiznis/crmbilling/internal/plan/repository"
	subscriptiondomain "github.com/smallbiznis/crmbilling/internal/subscription/domain"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"github.com/smallbiznis/crmbilling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixedSettings struct{ settings taxdomain.Settings }

func (f fixedSettings) Current(context.Context) (taxdomain.Settings, error) { return f.settings, nil }

type harness struct {
	db        *gorm.DB
	clock     *clock.FakeClock
	node      *snowflake.Node
	svc       subscriptiondomain.Service
	companies companydomain.Repository
	plans     plandomain.Repository
	invoices  invoicedomain.Repository
	ledger    invoicedomain.Ledger
	recorder  *events.Recorder

	companyID snowflake.ID
	basic     *plandomain.Package
	premium   *plandomain.Package
	trial     *plandomain.Package
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.OpenDB(t,
		&companydomain.Company{},
		&plandomain.Package{},
		&invoicedomain.Invoice{},
		&invoicedomain.Sequence{},
	)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))

	h := &harness{
		db:        db,
		clock:     clk,
		node:      node,
		companies: companyrepo.Provide(),
		plans:     planrepo.Provide(),
		invoices:  invoicerepo.Provide(),
		recorder:  &events.Recorder{},
	}
	h.ledger = invoiceservice.NewLedger(invoiceservice.LedgerParams{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  h.invoices,
	})
	h.svc = NewService(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clk,
		CompanyRepo: h.companies,
		PlanRepo:    h.plans,
		InvoiceRepo: h.invoices,
		Ledger:      h.ledger,
		Settings:    fixedSettings{settings: taxdomain.DefaultSettings()},
		Publisher:   h.recorder,
	})

	h.basic = h.insertPackage(t, &plandomain.Package{
		Name:           "Basic",
		Code:           "basic",
		DurationType:   plandomain.DurationMonthly,
		PriceMonthly:   decimal.NewNullDecimal(decimal.NewFromInt(100)),
		PriceQuarterly: decimal.NewNullDecimal(decimal.NewFromInt(270)),
	})
	h.premium = h.insertPackage(t, &plandomain.Package{
		Name:         "Premium",
		Code:         "premium",
		DurationType: plandomain.DurationMonthly,
		PriceMonthly: decimal.NewNullDecimal(decimal.NewFromInt(300)),
	})
	h.trial = h.insertPackage(t, &plandomain.Package{
		Name:              "Trial",
		Code:              "trial",
		DurationType:      plandomain.DurationMonthly,
		IsTrial:           true,
		TrialDurationDays: 14,
	})
	h.companyID = h.insertCompany(t)
	return h
}

func (h *harness) insertPackage(t *testing.T, pkg *plandomain.Package) *plandomain.Package {
	t.Helper()
	now := h.clock.Now()
	pkg.ID = h.node.Generate()
	pkg.Currency = "USD"
	pkg.IsActive = true
	pkg.CreatedAt = now
	pkg.UpdatedAt = now
	require.NoError(t, h.plans.Insert(context.Background(), h.db, pkg))
	return pkg
}

func (h *harness) insertCompany(t *testing.T) snowflake.ID {
	t.Helper()
	id := h.node.Generate()
	now := h.clock.Now()
	require.NoError(t, h.companies.Insert(context.Background(), h.db, &companydomain.Company{
		ID:                 id,
		Name:               "Globex",
		Email:              "billing@globex.test",
		SubscriptionStatus: companydomain.StatusNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}))
	return id
}

func (h *harness) company(t *testing.T) *companydomain.Company {
	t.Helper()
	c, err := h.companies.FindByID(context.Background(), h.db, h.companyID)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (h *harness) invoice(t *testing.T, id string) *invoicedomain.Invoice {
	t.Helper()
	parsed, err := snowflake.ParseString(id)
	require.NoError(t, err)
	inv, err := h.invoices.FindByID(context.Background(), h.db, parsed)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

func (h *harness) send(t *testing.T, id string) {
	t.Helper()
	inv := h.invoice(t, id)
	require.NoError(t, h.db.Transaction(func(tx *gorm.DB) error {
		return h.ledger.SetStatus(context.Background(), tx, inv, invoicedomain.StatusSent)
	}))
}

func (h *harness) request(t *testing.T, pkg *plandomain.Package) *subscriptiondomain.RequestSubscriptionResponse {
	t.Helper()
	resp, err := h.svc.RequestSubscription(context.Background(), subscriptiondomain.RequestSubscriptionRequest{
		CompanyID:    h.companyID.String(),
		PackageID:    pkg.ID.String(),
		DurationType: "monthly",
	})
	require.NoError(t, err)
	return resp
}

func (h *harness) receive(t *testing.T, invoiceID string) {
	t.Helper()
	_, err := h.svc.MarkPaymentReceived(context.Background(), subscriptiondomain.PaymentReceivedRequest{
		InvoiceID:  invoiceID,
		Method:     "bank_transfer",
		Reference:  "TRX-1",
		VerifiedBy: "admin-1",
	})
	require.NoError(t, err)
}

// activate runs a full request, send, receive, approve cycle on pkg.
func (h *harness) activate(t *testing.T, pkg *plandomain.Package) *subscriptiondomain.ApproveResponse {
	t.Helper()
	req := h.request(t, pkg)
	h.send(t, req.Invoice.ID)
	h.receive(t, req.Invoice.ID)
	resp, err := h.svc.Approve(context.Background(), subscriptiondomain.ApproveRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: req.Invoice.ID,
		ActorID:   "admin-1",
	})
	require.NoError(t, err)
	return resp
}

func TestRequestSubscriptionCreatesPendingInvoice(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()

	resp := h.request(t, h.basic)

	assert.Equal(t, invoicedomain.StatusPending, resp.Invoice.Status)
	assert.Equal(t, "INV-25-00001", resp.Invoice.InvoiceNumber)
	assert.Equal(t, "100.00", resp.Invoice.TotalAmount.StringFixed(2))

	c := h.company(t)
	assert.Equal(t, companydomain.StatusPending, c.SubscriptionStatus)
	require.NotNil(t, c.SubscriptionPackageID)
	assert.Equal(t, h.basic.ID, *c.SubscriptionPackageID)
	require.NotNil(t, c.SubscriptionStartDate)
	require.NotNil(t, c.SubscriptionEndDate)
	assert.True(t, now.Equal(*c.SubscriptionStartDate))
	assert.True(t, now.AddDate(0, 1, 0).Equal(*c.SubscriptionEndDate))
	assert.False(t, c.IsActive)

	assert.Equal(t, []events.Type{events.TypeSubscriptionRequested, events.TypeInvoiceCreated}, h.recorder.Types())
}

func TestRequestSubscriptionGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.RequestSubscription(ctx, subscriptiondomain.RequestSubscriptionRequest{
		CompanyID: h.companyID.String(),
		PackageID: h.trial.ID.String(),
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrTrialPackage)

	_, err = h.svc.RequestSubscription(ctx, subscriptiondomain.RequestSubscriptionRequest{
		CompanyID:    h.companyID.String(),
		PackageID:    h.basic.ID.String(),
		DurationType: "fortnightly",
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidDuration)

	_, err = h.svc.RequestSubscription(ctx, subscriptiondomain.RequestSubscriptionRequest{
		CompanyID:    h.companyID.String(),
		PackageID:    h.basic.ID.String(),
		DurationType: "yearly",
	})
	assert.ErrorIs(t, err, plandomain.ErrPriceNotConfigured)

	_, err = h.svc.RequestSubscription(ctx, subscriptiondomain.RequestSubscriptionRequest{
		CompanyID: h.node.Generate().String(),
		PackageID: h.basic.ID.String(),
	})
	assert.True(t, fault.IsNotFound(err))

	h.request(t, h.basic)
	_, err = h.svc.RequestSubscription(ctx, subscriptiondomain.RequestSubscriptionRequest{
		CompanyID: h.companyID.String(),
		PackageID: h.basic.ID.String(),
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
	assert.True(t, fault.IsConflict(err))
}

func TestMarkPaymentReceivedOnSentInvoice(t *testing.T) {
	h := newHarness(t)
	req := h.request(t, h.basic)
	h.send(t, req.Invoice.ID)

	resp, err := h.svc.MarkPaymentReceived(context.Background(), subscriptiondomain.PaymentReceivedRequest{
		InvoiceID:  req.Invoice.ID,
		Method:     "bank_transfer",
		Reference:  "TRX-1",
		Notes:      "wired",
		VerifiedBy: "admin-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "INV-25-00001", resp.Invoice.InvoiceNumber)
	assert.Equal(t, invoicedomain.StatusPaymentReceived, resp.Invoice.Status)
	assert.Equal(t, companydomain.StatusPaymentReceived, resp.Company.SubscriptionStatus)
	assert.False(t, resp.Company.IsActive)

	inv := h.invoice(t, req.Invoice.ID)
	assert.Equal(t, "bank_transfer", inv.PaymentMethod)
	assert.Equal(t, "TRX-1", inv.PaymentReference)
	require.NotNil(t, inv.VerifiedBy)
	assert.Equal(t, "admin-1", *inv.VerifiedBy)
	assert.NotNil(t, inv.VerifiedAt)
}

func TestMarkPaymentReceivedRequiresSentInvoice(t *testing.T) {
	h := newHarness(t)
	req := h.request(t, h.basic)

	_, err := h.svc.MarkPaymentReceived(context.Background(), subscriptiondomain.PaymentReceivedRequest{
		InvoiceID: req.Invoice.ID,
		Method:    "cash",
	})
	assert.ErrorIs(t, err, invoicedomain.ErrNotSent)
	assert.Equal(t, companydomain.StatusPending, h.company(t).SubscriptionStatus)

	h.send(t, req.Invoice.ID)
	h.receive(t, req.Invoice.ID)
	_, err = h.svc.MarkPaymentReceived(context.Background(), subscriptiondomain.PaymentReceivedRequest{
		InvoiceID: req.Invoice.ID,
		Method:    "cash",
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestApproveActivatesTenant(t *testing.T) {
	h := newHarness(t)
	req := h.request(t, h.basic)
	h.send(t, req.Invoice.ID)
	h.receive(t, req.Invoice.ID)
	h.clock.Advance(2 * time.Hour)
	approvedAt := h.clock.Now()

	resp, err := h.svc.Approve(context.Background(), subscriptiondomain.ApproveRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: req.Invoice.ID,
		ActorID:   "admin-1",
	})
	require.NoError(t, err)

	assert.True(t, resp.Company.IsActive)
	assert.Equal(t, companydomain.StatusApproved, resp.Company.SubscriptionStatus)
	assert.True(t, approvedAt.AddDate(0, 1, 0).Equal(resp.NewEndDate))
	assert.Equal(t, h.basic.ID.String(), resp.Package.ID)
	assert.Equal(t, invoicedomain.StatusPaid, resp.Invoice.Status)

	inv := h.invoice(t, req.Invoice.ID)
	assert.Equal(t, invoicedomain.StatusPaid, inv.Status)
	assert.NotNil(t, inv.PaidAt)

	c := h.company(t)
	assert.True(t, c.IsActive)
	assert.True(t, approvedAt.AddDate(0, 1, 0).Equal(*c.SubscriptionEndDate))
	assert.Contains(t, h.recorder.Types(), events.TypeSubscriptionApproved)
	assert.Contains(t, h.recorder.Types(), events.TypeInvoicePaid)
}

func TestApproveWithStartOverride(t *testing.T) {
	h := newHarness(t)
	req := h.request(t, h.basic)
	h.send(t, req.Invoice.ID)
	h.receive(t, req.Invoice.ID)
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	resp, err := h.svc.Approve(context.Background(), subscriptiondomain.ApproveRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: req.Invoice.ID,
		StartDate: &start,
	})
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Equal(resp.NewEndDate))
	require.NotNil(t, resp.Company.SubscriptionStartDate)
	assert.True(t, start.Equal(*resp.Company.SubscriptionStartDate))
}

func TestApproveRejectsStartOverrideEndingInThePast(t *testing.T) {
	h := newHarness(t)
	req := h.request(t, h.basic)
	h.send(t, req.Invoice.ID)
	h.receive(t, req.Invoice.ID)
	start := h.clock.Now().AddDate(-1, 0, 0)

	_, err := h.svc.Approve(context.Background(), subscriptiondomain.ApproveRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: req.Invoice.ID,
		StartDate: &start,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidStartDate)

	c := h.company(t)
	assert.False(t, c.IsActive)
	assert.Equal(t, companydomain.StatusPaymentReceived, c.SubscriptionStatus)
	assert.Equal(t, invoicedomain.StatusPaymentReceived, h.invoice(t, req.Invoice.ID).Status)

	// A backdated start whose period is still running is accepted.
	start = h.clock.Now().AddDate(0, 0, -10)
	resp, err := h.svc.Approve(context.Background(), subscriptiondomain.ApproveRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: req.Invoice.ID,
		StartDate: &start,
	})
	require.NoError(t, err)
	assert.True(t, resp.NewEndDate.After(h.clock.Now()))
}

func TestApproveOnlyTheCurrentRequestInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.request(t, h.premium)
	h.send(t, first.Invoice.ID)
	h.receive(t, first.Invoice.ID)
	_, err := h.svc.Cancel(ctx, subscriptiondomain.CancelRequest{CompanyID: h.companyID.String()})
	require.NoError(t, err)

	second := h.request(t, h.basic)
	h.send(t, second.Invoice.ID)
	h.receive(t, second.Invoice.ID)
	require.NotNil(t, second.Company.SubscriptionInvoiceID)
	assert.Equal(t, second.Invoice.ID, *second.Company.SubscriptionInvoiceID)

	_, err = h.svc.Approve(ctx, subscriptiondomain.ApproveRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: first.Invoice.ID,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotCurrentInvoice)
	assert.True(t, fault.IsConflict(err))

	_, err = h.svc.Reject(ctx, subscriptiondomain.RejectRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: first.Invoice.ID,
		Reason:    "stale",
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotCurrentInvoice)

	c := h.company(t)
	assert.Equal(t, companydomain.StatusPaymentReceived, c.SubscriptionStatus)
	assert.False(t, c.IsActive)
	assert.Equal(t, invoicedomain.StatusPaymentReceived, h.invoice(t, first.Invoice.ID).Status)

	resp, err := h.svc.Approve(ctx, subscriptiondomain.ApproveRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: second.Invoice.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, h.basic.ID.String(), resp.Package.ID)
	assert.Equal(t, invoicedomain.StatusPaid, h.invoice(t, second.Invoice.ID).Status)
}

func TestPaymentReceivedOnlyForTheCurrentInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.request(t, h.premium)
	h.send(t, first.Invoice.ID)
	_, err := h.svc.Cancel(ctx, subscriptiondomain.CancelRequest{CompanyID: h.companyID.String()})
	require.NoError(t, err)
	h.request(t, h.basic)

	_, err = h.svc.MarkPaymentReceived(ctx, subscriptiondomain.PaymentReceivedRequest{
		InvoiceID: first.Invoice.ID,
		Method:    "cash",
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotCurrentInvoice)
	assert.Equal(t, companydomain.StatusPending, h.company(t).SubscriptionStatus)
	assert.Equal(t, invoicedomain.StatusSent, h.invoice(t, first.Invoice.ID).Status)
}

func TestApproveRequiresVerifiedPayment(t *testing.T) {
	h := newHarness(t)
	req := h.request(t, h.basic)

	_, err := h.svc.Approve(context.Background(), subscriptiondomain.ApproveRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: req.Invoice.ID,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)

	c := h.company(t)
	assert.Equal(t, companydomain.StatusPending, c.SubscriptionStatus)
	assert.False(t, c.IsActive)
}

func TestRejectClearsDates(t *testing.T) {
	h := newHarness(t)
	req := h.request(t, h.basic)
	h.send(t, req.Invoice.ID)
	h.receive(t, req.Invoice.ID)
	ctx := context.Background()

	_, err := h.svc.Reject(ctx, subscriptiondomain.RejectRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: req.Invoice.ID,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidReason)

	resp, err := h.svc.Reject(ctx, subscriptiondomain.RejectRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: req.Invoice.ID,
		Reason:    "payment_not_found",
		Note:      "no transfer on statement",
	})
	require.NoError(t, err)
	assert.Equal(t, companydomain.StatusRejected, resp.Company.SubscriptionStatus)
	assert.Nil(t, resp.Company.SubscriptionStartDate)
	assert.Nil(t, resp.Company.SubscriptionEndDate)
	assert.False(t, resp.Company.IsActive)

	inv := h.invoice(t, req.Invoice.ID)
	assert.Equal(t, invoicedomain.StatusRejected, inv.Status)
	assert.Equal(t, "payment_not_found", inv.RejectionReason)
	assert.Equal(t, "no transfer on statement", inv.RejectionNote)

	_, err = h.svc.Approve(ctx, subscriptiondomain.ApproveRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: req.Invoice.ID,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)

	// A rejected tenant may request again.
	again := h.request(t, h.basic)
	assert.Equal(t, "INV-25-00002", again.Invoice.InvoiceNumber)
}

func TestConcurrentApproveAndRejectHaveOneWinner(t *testing.T) {
	h := newHarness(t)
	req := h.request(t, h.basic)
	h.send(t, req.Invoice.ID)
	h.receive(t, req.Invoice.ID)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = h.svc.Approve(ctx, subscriptiondomain.ApproveRequest{
			CompanyID: h.companyID.String(),
			InvoiceID: req.Invoice.ID,
		})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = h.svc.Reject(ctx, subscriptiondomain.RejectRequest{
			CompanyID: h.companyID.String(),
			InvoiceID: req.Invoice.ID,
			Reason:    "duplicate",
		})
	}()
	wg.Wait()

	var winners, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case fault.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, conflicts)

	c := h.company(t)
	inv := h.invoice(t, req.Invoice.ID)
	if errs[0] == nil {
		assert.Equal(t, companydomain.StatusApproved, c.SubscriptionStatus)
		assert.Equal(t, invoicedomain.StatusPaid, inv.Status)
	} else {
		assert.Equal(t, companydomain.StatusRejected, c.SubscriptionStatus)
		assert.Equal(t, invoicedomain.StatusRejected, inv.Status)
	}
}

func TestStartTrialThenExpire(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.StartTrial(ctx, subscriptiondomain.StartTrialRequest{
		CompanyID: h.companyID.String(),
		PackageID: h.basic.ID.String(),
	})
	assert.ErrorIs(t, err, plandomain.ErrNotTrial)

	resp, err := h.svc.StartTrial(ctx, subscriptiondomain.StartTrialRequest{
		CompanyID: h.companyID.String(),
		PackageID: h.trial.ID.String(),
	})
	require.NoError(t, err)
	assert.True(t, resp.IsActive)
	assert.Equal(t, companydomain.StatusTrial, resp.SubscriptionStatus)
	end := *resp.SubscriptionEndDate

	expired, err := h.svc.Expire(ctx, h.companyID)
	require.NoError(t, err)
	assert.False(t, expired)

	h.clock.Set(end.Add(24 * time.Hour))
	expired, err = h.svc.Expire(ctx, h.companyID)
	require.NoError(t, err)
	assert.True(t, expired)

	c := h.company(t)
	assert.False(t, c.IsActive)
	assert.Equal(t, companydomain.StatusExpired, c.SubscriptionStatus)
	assert.True(t, end.Equal(*c.SubscriptionEndDate))

	expired, err = h.svc.Expire(ctx, h.companyID)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestCancelApprovedSubscription(t *testing.T) {
	h := newHarness(t)
	h.activate(t, h.basic)
	end := *h.company(t).SubscriptionEndDate

	resp, err := h.svc.Cancel(context.Background(), subscriptiondomain.CancelRequest{
		CompanyID: h.companyID.String(),
		Reason:    "closing business",
	})
	require.NoError(t, err)
	assert.Equal(t, companydomain.StatusCancelled, resp.SubscriptionStatus)
	assert.False(t, resp.IsActive)
	assert.True(t, end.Equal(*resp.SubscriptionEndDate))

	_, err = h.svc.Cancel(context.Background(), subscriptiondomain.CancelRequest{CompanyID: h.companyID.String()})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestUpgradeQuoteAndSettlement(t *testing.T) {
	h := newHarness(t)
	h.activate(t, h.basic)
	h.clock.Advance(20 * 24 * time.Hour)
	ctx := context.Background()
	upgrade := subscriptiondomain.UpgradeRequest{
		CompanyID:    h.companyID.String(),
		PackageID:    h.premium.ID.String(),
		DurationType: "monthly",
	}

	quote, err := h.svc.PreviewUpgrade(ctx, upgrade)
	require.NoError(t, err)
	assert.True(t, quote.FromPaidInvoice)
	assert.Equal(t, 30, quote.TotalDurationDays)
	assert.Equal(t, 10, quote.DaysRemaining)
	assert.Equal(t, "33.33", quote.Credit.StringFixed(2))
	assert.Equal(t, "266.67", quote.PayableAmount.StringFixed(2))

	again, err := h.svc.PreviewUpgrade(ctx, upgrade)
	require.NoError(t, err)
	assert.Equal(t, quote.Credit.String(), again.Credit.String())
	assert.Equal(t, quote.PayableAmount.String(), again.PayableAmount.String())

	initiated, err := h.svc.InitiateUpgrade(ctx, upgrade)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.KindUpgrade, initiated.Invoice.Kind)
	assert.Equal(t, "266.67", initiated.Invoice.Amount.StringFixed(2))
	assert.Equal(t, "33.33", initiated.Invoice.CreditApplied.StringFixed(2))
	assert.Equal(t, companydomain.StatusApproved, h.company(t).SubscriptionStatus)
	assert.Contains(t, h.recorder.Types(), events.TypeUpgradeRequested)

	h.send(t, initiated.Invoice.ID)
	h.receive(t, initiated.Invoice.ID)
	c := h.company(t)
	assert.Equal(t, companydomain.StatusApproved, c.SubscriptionStatus)
	assert.Equal(t, h.basic.ID, *c.SubscriptionPackageID)

	resp, err := h.svc.Approve(ctx, subscriptiondomain.ApproveRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: initiated.Invoice.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, h.premium.ID.String(), resp.Package.ID)
	require.NotNil(t, resp.Company.SubscriptionInvoiceID)
	assert.Equal(t, initiated.Invoice.ID, *resp.Company.SubscriptionInvoiceID)
	c = h.company(t)
	assert.Equal(t, h.premium.ID, *c.SubscriptionPackageID)
	assert.True(t, c.IsActive)
	assert.True(t, h.clock.Now().AddDate(0, 1, 0).Equal(*c.SubscriptionEndDate))
	assert.Contains(t, h.recorder.Types(), events.TypeSubscriptionUpgraded)
}

func TestUpgradeWithoutSubscription(t *testing.T) {
	h := newHarness(t)
	upgrade := subscriptiondomain.UpgradeRequest{
		CompanyID: h.companyID.String(),
		PackageID: h.premium.ID.String(),
	}

	quote, err := h.svc.PreviewUpgrade(context.Background(), upgrade)
	require.NoError(t, err)
	assert.True(t, quote.Credit.IsZero())
	assert.Equal(t, "300.00", quote.PayableAmount.StringFixed(2))

	_, err = h.svc.InitiateUpgrade(context.Background(), upgrade)
	assert.ErrorIs(t, err, subscriptiondomain.ErrNoSubscription)
}

func TestNewerUpgradeSupersedesEarlierInvoice(t *testing.T) {
	h := newHarness(t)
	h.activate(t, h.basic)
	ctx := context.Background()
	upgrade := subscriptiondomain.UpgradeRequest{
		CompanyID: h.companyID.String(),
		PackageID: h.premium.ID.String(),
	}

	stale, err := h.svc.InitiateUpgrade(ctx, upgrade)
	require.NoError(t, err)
	h.send(t, stale.Invoice.ID)
	current, err := h.svc.InitiateUpgrade(ctx, upgrade)
	require.NoError(t, err)

	_, err = h.svc.MarkPaymentReceived(ctx, subscriptiondomain.PaymentReceivedRequest{
		InvoiceID: stale.Invoice.ID,
		Method:    "cash",
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotCurrentInvoice)

	h.send(t, current.Invoice.ID)
	h.receive(t, current.Invoice.ID)
	_, err = h.svc.Approve(ctx, subscriptiondomain.ApproveRequest{
		CompanyID: h.companyID.String(),
		InvoiceID: current.Invoice.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, h.premium.ID, *h.company(t).SubscriptionPackageID)
}
