package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmbilling/internal/clock"
	"github.com/smallbiznis/crmbilling/internal/config"
	"github.com/smallbiznis/crmbilling/internal/events"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/crmbilling/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/crmbilling/internal/invoice/service"
	reminderdomain "github.com/smallbiznis/crmbilling/internal/reminder/domain"
	"github.com/smallbiznis/crmbilling/internal/reminder/repository"
	"github.com/smallbiznis/crmbilling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	node     *snowflake.Node
	invoices invoicedomain.Repository
	repo     reminderdomain.Repository
	recorder *events.Recorder
	seq      int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		db:       testutil.OpenDB(t, &invoicedomain.Invoice{}, &reminderdomain.Reminder{}),
		clock:    clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		node:     testutil.Node(t),
		invoices: invoicerepo.Provide(),
		repo:     repository.Provide(),
		recorder: &events.Recorder{},
	}
}

func (h *harness) service(cfg config.ReminderConfig) reminderdomain.Service {
	return NewService(Params{
		DB:          h.db,
		Log:         zap.NewNop(),
		GenID:       h.node,
		Clock:       h.clock,
		Repo:        h.repo,
		InvoiceRepo: h.invoices,
		Ledger: invoiceservice.NewLedger(invoiceservice.LedgerParams{
			Log:   zap.NewNop(),
			GenID: h.node,
			Clock: h.clock,
			Repo:  h.invoices,
		}),
		Config:    config.NewStaticReminderConfigHolder(cfg),
		Publisher: h.recorder,
	})
}

// invoice inserts an invoice sent sentAgo before now and due dueInDays from today.
func (h *harness) invoice(t *testing.T, status invoicedomain.Status, sentAgo time.Duration, dueInDays int) *invoicedomain.Invoice {
	t.Helper()
	h.seq++
	now := h.clock.Now()
	sentAt := now.Add(-sentAgo)
	inv := &invoicedomain.Invoice{
		ID:                 h.node.Generate(),
		CompanyID:          h.node.Generate(),
		PackageID:          h.node.Generate(),
		InvoiceNumber:      fmt.Sprintf("INV-25-%05d", h.seq),
		Kind:               invoicedomain.KindSubscription,
		Amount:             decimal.NewFromInt(100),
		TaxRate:            decimal.Zero,
		TaxAmount:          decimal.Zero,
		TotalAmount:        decimal.NewFromInt(100),
		CreditApplied:      decimal.Zero,
		Currency:           "USD",
		BillingPeriodStart: now,
		BillingPeriodEnd:   now.AddDate(0, 1, 0),
		DueDate:            invoicedomain.DueDay(now).AddDate(0, 0, dueInDays),
		Status:             status,
		SentAt:             &sentAt,
		CreatedAt:          sentAt,
		UpdatedAt:          sentAt,
	}
	require.NoError(t, h.invoices.Insert(context.Background(), h.db, inv))
	return inv
}

func (h *harness) sent(t *testing.T, id snowflake.ID) []reminderdomain.Type {
	t.Helper()
	rows, err := h.repo.ListByInvoice(context.Background(), h.db, id)
	require.NoError(t, err)
	out := make([]reminderdomain.Type, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ReminderType)
	}
	return out
}

func (h *harness) status(t *testing.T, id snowflake.ID) invoicedomain.Status {
	t.Helper()
	inv, err := h.invoices.FindByID(context.Background(), h.db, id)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv.Status
}

func TestSweepWalksTheLadderOnce(t *testing.T) {
	h := newHarness(t)
	svc := h.service(config.DefaultReminderConfig())

	soon := h.invoice(t, invoicedomain.StatusSent, 4*24*time.Hour, 3)
	today := h.invoice(t, invoicedomain.StatusSent, 7*24*time.Hour, 0)
	late := h.invoice(t, invoicedomain.StatusSent, 14*24*time.Hour, -7)
	paid := h.invoice(t, invoicedomain.StatusPaid, 14*24*time.Hour, -7)

	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Sent)
	assert.Equal(t, 1, result.Overdue)
	assert.Equal(t, 0, result.Failed)

	assert.ElementsMatch(t, []reminderdomain.Type{reminderdomain.TypeSent24h, reminderdomain.TypeDueIn3Days}, h.sent(t, soon.ID))
	assert.Equal(t, []reminderdomain.Type{reminderdomain.TypeDueToday}, h.sent(t, today.ID))
	assert.Equal(t, []reminderdomain.Type{reminderdomain.TypeOverdue7Days}, h.sent(t, late.ID))
	assert.Empty(t, h.sent(t, paid.ID))

	assert.Equal(t, invoicedomain.StatusOverdue, h.status(t, late.ID))
	assert.Equal(t, invoicedomain.StatusSent, h.status(t, today.ID))
	assert.Contains(t, h.recorder.Types(), events.TypeInvoiceOverdue)

	again, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Sent)
	assert.Equal(t, 3, again.Skipped)
	assert.Len(t, h.sent(t, soon.ID), 2)
}

func TestSweepHonoursPerRungCap(t *testing.T) {
	h := newHarness(t)
	cfg := config.DefaultReminderConfig()
	cfg.Rungs[config.RungDueToday] = config.RungConfig{Enabled: true, MaxSends: 2}
	svc := h.service(cfg)

	inv := h.invoice(t, invoicedomain.StatusSent, 7*24*time.Hour, 0)
	for i := 0; i < 3; i++ {
		_, err := svc.Sweep(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, []reminderdomain.Type{reminderdomain.TypeDueToday, reminderdomain.TypeDueToday}, h.sent(t, inv.ID))
}

func TestSweepSkipsDisabledRung(t *testing.T) {
	h := newHarness(t)
	cfg := config.DefaultReminderConfig()
	cfg.Rungs[config.RungOverdue7Days] = config.RungConfig{Enabled: false, MaxSends: 1}
	svc := h.service(cfg)

	late := h.invoice(t, invoicedomain.StatusSent, 14*24*time.Hour, -10)
	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Empty(t, h.sent(t, late.ID))
	assert.Equal(t, invoicedomain.StatusSent, h.status(t, late.ID))
}

func TestSweepPagesThroughBatches(t *testing.T) {
	h := newHarness(t)
	cfg := config.DefaultReminderConfig()
	cfg.BatchSize = 1
	svc := h.service(cfg)

	for i := 0; i < 3; i++ {
		h.invoice(t, invoicedomain.StatusSent, 7*24*time.Hour, 0)
	}
	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, 3, result.ByType[reminderdomain.TypeDueToday])

	reminders := h.recorder.Events()
	require.Len(t, reminders, 3)
	for _, e := range reminders {
		assert.Equal(t, events.TypeInvoiceReminder, e.Type)
		assert.Equal(t, string(reminderdomain.TypeDueToday), e.String("reminder_type"))
		assert.Equal(t, "100.00", e.String("total_amount"))
	}
}
