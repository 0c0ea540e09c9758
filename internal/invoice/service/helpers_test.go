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
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	"github.com/smallbiznis/crmbilling/internal/invoice/repository"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	planrepo "github.com/smallbiznis/crmbilling/internal/plan/repository"
	"github.com/smallbiznis/crmbilling/internal/providers/pdf"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"github.com/smallbiznis/crmbilling/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type paymentRow struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	InvoiceID *snowflake.ID
}

func (paymentRow) TableName() string { return "payments" }

type stubSettings struct {
	mu       sync.Mutex
	settings taxdomain.Settings
}

func (s *stubSettings) Current(context.Context) (taxdomain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *stubSettings) setRate(rate string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.TaxRate = decimal.RequireFromString(rate)
}

type capturePDF struct {
	invoice pdf.InvoiceData
	receipt pdf.ReceiptData
}

func (c *capturePDF) GenerateInvoice(_ context.Context, data pdf.InvoiceData) ([]byte, error) {
	c.invoice = data
	return []byte("%PDF-invoice"), nil
}

func (c *capturePDF) GenerateReceipt(_ context.Context, data pdf.ReceiptData) ([]byte, error) {
	c.receipt = data
	return []byte("%PDF-receipt"), nil
}

type harness struct {
	db        *gorm.DB
	clock     *clock.FakeClock
	svc       invoicedomain.Service
	ledger    invoicedomain.Ledger
	repo      invoicedomain.Repository
	settings  *stubSettings
	recorder  *events.Recorder
	pdf       *capturePDF
	node      *snowflake.Node
	companyID snowflake.ID
	packageID snowflake.ID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.OpenDB(t,
		&companydomain.Company{},
		&plandomain.Package{},
		&invoicedomain.Invoice{},
		&invoicedomain.Sequence{},
		&paymentRow{},
	)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	settings := taxdomain.DefaultSettings()
	settings.TaxRate = decimal.RequireFromString("0.18")
	settings.TaxLabel = "VAT"
	settings.CompanyName = "Acme CRM"
	settings.BankName = "First Bank"
	settings.BankAccountNumber = "0001"

	h := &harness{
		db:       db,
		clock:    clk,
		repo:     repository.Provide(),
		settings: &stubSettings{settings: settings},
		recorder: &events.Recorder{},
		pdf:      &capturePDF{},
		node:     node,
	}
	h.ledger = NewLedger(LedgerParams{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  h.repo,
	})
	companies := companyrepo.Provide()
	plans := planrepo.Provide()
	h.svc = NewService(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clk,
		Repo:        h.repo,
		Ledger:      h.ledger,
		CompanyRepo: companies,
		PlanRepo:    plans,
		Settings:    h.settings,
		Publisher:   h.recorder,
		PDF:         h.pdf,
	})

	ctx := context.Background()
	now := clk.Now()
	h.companyID = h.insertCompany(t, "Globex", "billing@globex.test")
	h.packageID = node.Generate()
	require.NoError(t, plans.Insert(ctx, db, &plandomain.Package{
		ID:           h.packageID,
		Name:         "Pro",
		Code:         "pro",
		DurationType: plandomain.DurationMonthly,
		PriceMonthly: decimal.NewNullDecimal(decimal.NewFromInt(100)),
		PriceYearly:  decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		Currency:     "USD",
		Features:     []string{"leads"},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
	return h
}

func (h *harness) insertCompany(t *testing.T, name, email string) snowflake.ID {
	t.Helper()
	id := h.node.Generate()
	now := h.clock.Now()
	require.NoError(t, companyrepo.Provide().Insert(context.Background(), h.db, &companydomain.Company{
		ID:                 id,
		Name:               name,
		Email:              email,
		SubscriptionStatus: companydomain.StatusNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}))
	return id
}

func (h *harness) create(t *testing.T, companyID snowflake.ID) *invoicedomain.Response {
	t.Helper()
	resp, err := h.svc.Create(context.Background(), invoicedomain.CreateRequest{
		CompanyID: companyID.String(),
		PackageID: h.packageID.String(),
	})
	require.NoError(t, err)
	return resp
}

func (h *harness) load(t *testing.T, id string) *invoicedomain.Invoice {
	t.Helper()
	parsed, err := snowflake.ParseString(id)
	require.NoError(t, err)
	inv, err := h.repo.FindByID(context.Background(), h.db, parsed)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

// withTx runs fn against the ledger in its own transaction.
func (h *harness) withTx(t *testing.T, fn func(tx *gorm.DB) error) error {
	t.Helper()
	return h.db.Transaction(fn)
}

// pointCompanyAt makes invoiceID the company's current subscription invoice.
func (h *harness) pointCompanyAt(t *testing.T, companyID snowflake.ID, invoiceID string, status companydomain.SubscriptionStatus) {
	t.Helper()
	ctx := context.Background()
	companies := companyrepo.Provide()
	c, err := companies.FindByID(ctx, h.db, companyID)
	require.NoError(t, err)
	require.NotNil(t, c)

	id, err := snowflake.ParseString(invoiceID)
	require.NoError(t, err)
	c.SubscriptionInvoiceID = &id
	c.SubscriptionStatus = status
	c.UpdatedAt = h.clock.Now()
	require.NoError(t, companies.UpdateSubscription(ctx, h.db, c))
}
