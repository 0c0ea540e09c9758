package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	activitydomain "github.com/smallbiznis/crmbilling/internal/activity/domain"
	"github.com/smallbiznis/crmbilling/internal/authorization"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	"github.com/smallbiznis/crmbilling/internal/config"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	"github.com/smallbiznis/crmbilling/internal/observability"
	obsmetrics "github.com/smallbiznis/crmbilling/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/crmbilling/internal/payment/domain"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	"github.com/smallbiznis/crmbilling/internal/scheduler"
	subscriptiondomain "github.com/smallbiznis/crmbilling/internal/subscription/domain"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"github.com/smallbiznis/crmbilling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	tenantA = "1001"
	tenantB = "2002"
)

type fakeSubscriptions struct {
	subscriptiondomain.Service
	requested []subscriptiondomain.RequestSubscriptionRequest
	received  []subscriptiondomain.PaymentReceivedRequest
}

func (f *fakeSubscriptions) RequestSubscription(_ context.Context, req subscriptiondomain.RequestSubscriptionRequest) (*subscriptiondomain.RequestSubscriptionResponse, error) {
	f.requested = append(f.requested, req)
	return &subscriptiondomain.RequestSubscriptionResponse{
		Invoice: invoicedomain.Response{ID: "9001", CompanyID: req.CompanyID, InvoiceNumber: "INV-25-00001"},
		Company: companydomain.Response{ID: req.CompanyID, SubscriptionStatus: companydomain.StatusPending},
	}, nil
}

func (f *fakeSubscriptions) MarkPaymentReceived(_ context.Context, req subscriptiondomain.PaymentReceivedRequest) (*subscriptiondomain.PaymentReceivedResponse, error) {
	f.received = append(f.received, req)
	return &subscriptiondomain.PaymentReceivedResponse{
		Invoice: invoicedomain.Response{ID: req.InvoiceID, Status: invoicedomain.StatusPaymentReceived},
	}, nil
}

type fakeInvoices struct {
	invoicedomain.Service
	invoices map[string]invoicedomain.Response
	listed   []invoicedomain.ListRequest
}

func (f *fakeInvoices) Get(_ context.Context, id string) (*invoicedomain.Response, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, invoicedomain.ErrNotFound
	}
	return &inv, nil
}

func (f *fakeInvoices) List(_ context.Context, req invoicedomain.ListRequest) (invoicedomain.ListResponse, error) {
	f.listed = append(f.listed, req)
	return invoicedomain.ListResponse{Invoices: []invoicedomain.Response{}}, nil
}

func (f *fakeInvoices) MarkPaid(context.Context, string) (*invoicedomain.Response, error) {
	return nil, invoicedomain.ErrAlreadyPaid
}

func (f *fakeInvoices) Render(_ context.Context, id string) (*invoicedomain.Document, error) {
	inv := f.invoices[id]
	return &invoicedomain.Document{
		Filename:    inv.InvoiceNumber + ".pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-1.4"),
	}, nil
}

type fakePackages struct {
	plandomain.Service
	lastList plandomain.ListRequest
}

func (f *fakePackages) List(_ context.Context, req plandomain.ListRequest) ([]plandomain.Response, error) {
	f.lastList = req
	return []plandomain.Response{{ID: "3001", Name: "Premium"}}, nil
}

type harness struct {
	engine        *gin.Engine
	subscriptions *fakeSubscriptions
	invoices      *fakeInvoices
	packages      *fakePackages
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.OpenDB(t)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{DB: db, Log: zap.NewNop(), Enforcer: enforcer})

	engine := NewEngine(observability.Config{Environment: "test"}, obsmetrics.NewHTTPMetrics(obsmetrics.Config{}))
	h := &harness{
		engine:        engine,
		subscriptions: &fakeSubscriptions{},
		invoices: &fakeInvoices{invoices: map[string]invoicedomain.Response{
			"9001": {ID: "9001", CompanyID: tenantA, InvoiceNumber: "INV-25-00001", TotalAmount: decimal.RequireFromString("118"), DueDate: time.Date(2025, 4, 8, 0, 0, 0, 0, time.UTC)},
			"9002": {ID: "9002", CompanyID: tenantB, InvoiceNumber: "INV-25-00002"},
		}},
		packages: &fakePackages{},
	}

	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{Environment: "test"},
		Log:             zap.NewNop(),
		AuthzSvc:        authz,
		ActivitySvc:     activitydomain.Service(nil),
		CompanySvc:      companydomain.Service(nil),
		PlanSvc:         h.packages,
		TaxSvc:          taxdomain.Service(nil),
		InvoiceSvc:      h.invoices,
		PaymentSvc:      paymentdomain.Service(nil),
		SubscriptionSvc: h.subscriptions,
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func superAdmin() map[string]string {
	return map[string]string{HeaderActorID: "ops-1", HeaderActorRole: "super_admin"}
}

func companyAdmin(companyID string) map[string]string {
	return map[string]string{HeaderActorID: "owner-1", HeaderActorRole: "company_admin", HeaderCompanyID: companyID}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingIdentityIsUnauthenticated(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/invoices", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "unauthenticated", payload.Type)
	assert.Equal(t, "invalid_actor", payload.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/invoices", nil, map[string]string{HeaderActorID: "x", HeaderActorRole: "owner"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCompanyAdminRequestsOwnSubscription(t *testing.T) {
	h := newHarness(t)
	body := map[string]string{"package_id": "3001", "duration_type": "monthly"}

	rec := h.do(t, http.MethodPost, "/api/v1/companies/"+tenantA+"/subscription/request", body, companyAdmin(tenantA))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, h.subscriptions.requested, 1)
	assert.Equal(t, tenantA, h.subscriptions.requested[0].CompanyID)
	assert.Equal(t, "monthly", h.subscriptions.requested[0].DurationType)

	rec = h.do(t, http.MethodPost, "/api/v1/companies/"+tenantB+"/subscription/request", body, companyAdmin(tenantA))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Type)
	assert.Len(t, h.subscriptions.requested, 1)
}

func TestCompanyAdminCannotApprove(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/companies/"+tenantA+"/subscription/approve", map[string]string{"invoice_id": "9001"}, companyAdmin(tenantA))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	h := newHarness(t)
	body := map[string]string{"package_id": "3001", "duration_type": "monthly", "discount": "50"}

	rec := h.do(t, http.MethodPost, "/api/v1/companies/"+tenantA+"/subscription/request", body, superAdmin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
	assert.Empty(t, h.subscriptions.requested)
}

func TestMalformedIDIsValidationError(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/invoices/abc", nil, superAdmin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	assert.Equal(t, "invalid_id", payload.Code)
}

func TestDomainFaultsMapToStatus(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/invoices/9001/paid", nil, superAdmin())
	assert.Equal(t, http.StatusConflict, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "conflict", payload.Type)
	assert.Equal(t, "invoice_already_paid", payload.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/invoices/9999", nil, superAdmin())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "invoice_not_found", decodeError(t, rec).Code)
}

func TestCompanyAdminSeesOnlyOwnInvoices(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/invoices", nil, companyAdmin(tenantA))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.invoices.listed, 1)
	assert.Equal(t, tenantA, h.invoices.listed[0].CompanyID)

	rec = h.do(t, http.MethodGet, "/api/v1/invoices?company_id="+tenantB, nil, companyAdmin(tenantA))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/invoices/9001", nil, companyAdmin(tenantA))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/invoices/9002", nil, companyAdmin(tenantA))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvoicePDFDownload(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/invoices/9001/pdf", nil, companyAdmin(tenantA))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "INV-25-00001.pdf")
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
}

func TestPaymentReceivedRecordsVerifier(t *testing.T) {
	h := newHarness(t)
	body := map[string]string{"payment_method": "bank_transfer", "payment_reference": "TRX-1"}

	rec := h.do(t, http.MethodPost, "/api/v1/invoices/9001/payment-received", body, superAdmin())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, h.subscriptions.received, 1)
	got := h.subscriptions.received[0]
	assert.Equal(t, "9001", got.InvoiceID)
	assert.Equal(t, "ops-1", got.VerifiedBy)
	assert.Equal(t, "TRX-1", got.Reference)
}

func TestTenantPackageListIsActiveOnly(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/packages?active_only=false", nil, companyAdmin(tenantA))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.packages.lastList.ActiveOnly)

	rec = h.do(t, http.MethodGet, "/api/v1/packages", nil, superAdmin())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, h.packages.lastList.ActiveOnly)
}

func TestSweepsRequirePlatformRoleAndScheduler(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/sweeps/expiry", nil, companyAdmin(tenantA))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/sweeps/reminders", nil, map[string]string{HeaderActorID: "cron", HeaderActorRole: "system"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLockHeldSweepMapsToConflict(t *testing.T) {
	status, payload := mapError(scheduler.ErrJobRunning)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "sweep_already_running", payload.Code)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v2/nothing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
