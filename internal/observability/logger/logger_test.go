package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/crmbilling/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithCompanyID(ctx, "42")
	ctx = obscontext.WithActor(ctx, "super_admin", "7")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "42", fields["company_id"])
		assert.Equal(t, "super_admin", fields["actor_role"])
		assert.Equal(t, "7", fields["actor_id"])
	}
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "INSERT", operationFromSQL("insert into invoices values (?)"))
	assert.Equal(t, "SELECT", operationFromSQL("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "UNKNOWN", operationFromSQL("  "))
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "invoices", tableFromSQL("SELECT id FROM invoices WHERE id = ? FOR UPDATE"))
	assert.Equal(t, "invoice_reminders", tableFromSQL(`INSERT INTO "invoice_reminders" (invoice_id) VALUES (?)`))
	assert.Equal(t, "companies", tableFromSQL("UPDATE public.companies SET status = ?"))
	assert.Equal(t, "unknown", tableFromSQL("SELECT 1"))
	assert.Equal(t, "ledger", queryArea("payments"))
	assert.Equal(t, "db", queryArea("unknown"))
}

func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestQueryLoggerNamesLedgerAndSweeperSlowQueries(t *testing.T) {
	logs := observeGlobal(t)
	begin := time.Now().Add(-time.Second)
	invoiceScan := func() (string, int64) { return "SELECT id FROM invoices WHERE company_id = ?", 3 }
	reminderWrite := func() (string, int64) { return `UPDATE "invoice_reminders" SET sent_at = ?`, 1 }
	sweepCtx := obscontext.WithJob(context.Background(), "invoice_reminders")

	requestPath := NewQueryLogger(QueryLogConfig{
		Level:              gormlogger.Warn,
		SlowThreshold:      10 * time.Millisecond,
		SweepSlowThreshold: time.Hour,
	})
	requestPath.Trace(context.Background(), begin, invoiceScan, nil)
	requestPath.Trace(sweepCtx, begin, invoiceScan, nil)

	sweeps := NewQueryLogger(QueryLogConfig{
		Level:              gormlogger.Warn,
		SlowThreshold:      time.Hour,
		SweepSlowThreshold: 10 * time.Millisecond,
	})
	sweeps.Trace(sweepCtx, begin, reminderWrite, nil)

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "ledger.slow_query", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "invoices", entries[0].ContextMap()["table"])
	assert.Equal(t, int64(10), entries[0].ContextMap()["threshold_ms"])

	assert.Equal(t, "sweeper.slow_query", entries[1].Message)
	fields := entries[1].ContextMap()
	assert.Equal(t, "reminders", fields["area"])
	assert.Equal(t, "invoice_reminders", fields["table"])
	assert.Equal(t, "invoice_reminders", fields["job"])
	assert.Equal(t, "UPDATE", fields["operation"])
}

func TestQueryLoggerReportsFailuresButNotMissingRows(t *testing.T) {
	logs := observeGlobal(t)
	l := NewQueryLogger(DefaultQueryLogConfig())
	lookup := func() (string, int64) { return "SELECT * FROM companies WHERE id = ?", 0 }

	l.Trace(context.Background(), time.Now(), lookup, gormlogger.ErrRecordNotFound)
	l.Trace(context.Background(), time.Now(), lookup, errors.New("connection reset"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "subscription.query_failed", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestGinMiddlewareLogsCallerAndTarget(t *testing.T) {
	logs := observeGlobal(t)
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.POST("/api/v1/companies/:id/subscription/approve", func(c *gin.Context) {
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "super_admin", "admin-1"))
		c.Status(http.StatusOK)
	})
	r.POST("/api/v1/payments", func(c *gin.Context) {
		ctx := obscontext.WithActor(c.Request.Context(), "company_admin", "user-9")
		c.Request = c.Request.WithContext(obscontext.WithCompanyID(ctx, "7"))
		c.Status(http.StatusCreated)
	})
	r.GET("/api/v1/invoices", func(c *gin.Context) {
		c.Status(http.StatusUnauthorized)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/companies/42/subscription/approve", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil))

	entries := logs.FilterMessage("api.request").All()
	require.Len(t, entries, 3)

	approve := entries[0].ContextMap()
	assert.Equal(t, "subscription", approve["resource"])
	assert.Equal(t, "42", approve["company_id"])
	assert.Equal(t, "42", approve["target_id"])
	assert.Equal(t, "super_admin", approve["actor_role"])
	assert.NotEmpty(t, approve["request_id"])

	payment := entries[1].ContextMap()
	assert.Equal(t, "payments", payment["resource"])
	assert.Equal(t, "7", payment["company_id"])
	assert.Equal(t, "company_admin", payment["actor_role"])
	assert.Equal(t, "user-9", payment["actor_id"])

	denied := entries[2]
	assert.Equal(t, zapcore.WarnLevel, denied.Level)
	assert.Equal(t, "anonymous", denied.ContextMap()["actor_role"])
	assert.Equal(t, "", denied.ContextMap()["company_id"])
}
