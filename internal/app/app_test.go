package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-books/internal/auth"
	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/balances/balancestest"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/rbac"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
	"github.com/odyssey-erp/odyssey-books/internal/webhook"
	_ "github.com/odyssey-erp/odyssey-books/testing"
)

type ledgerRunner struct {
	ledger *balancestest.Ledger
}

func (l ledgerRunner) WithStore(ctx context.Context, fn func(context.Context, balances.Store) error) error {
	return l.ledger.Tx(func() error { return fn(ctx, l.ledger) })
}

type testApp struct {
	handler http.Handler
	ledger  *balancestest.Ledger
	invoice int64
}

func newTestApp(t *testing.T, mutate func(*Config)) testApp {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &Config{
		AppEnv:             "development",
		AppRequestTimeout:  5 * time.Second,
		RateLimitPerMinute: 100,
		WebhookSecret:      "s3cret",
	}
	if mutate != nil {
		mutate(cfg)
	}

	ledger := balancestest.NewLedger()
	contact, invoice := ledger.NextID(), ledger.NextID()
	ledger.Contacts[contact] = balances.ContactState{}
	ledger.Invoices[invoice] = balances.InvoiceState{ContactID: contact, PaymentStatus: balances.StatusPending}
	ledger.InvoiceLines[ledger.NextID()] = balancestest.Line{ParentID: invoice, Total: decimal.NewFromInt(80)}

	validate := httpx.NewValidator()
	sessions := shared.NewSessionManager(client, "odyssey_books_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	rbacService := rbac.NewService()
	rbacMiddleware := rbac.Middleware{Service: rbacService}
	dispatcher := balances.NewDispatcher(balances.NewRecalculator(nil), nil, nil)

	handler := NewRouter(RouterParams{
		Config:             cfg,
		Logger:             NewLogger(cfg),
		SessionManager:     sessions,
		CSRFManager:        csrf,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        auth.NewHandler(nil, auth.NewService(nil), sessions, csrf, validate),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacService, rbacMiddleware),
		WebhookHandler: webhook.NewHandler(nil, webhook.NewService(ledgerRunner{ledger}, dispatcher, nil),
			validate, cfg.WebhookSecret, cfg.WebhookInternalOnly),
	})
	return testApp{handler: handler, ledger: ledger, invoice: invoice}
}

func (a testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndUnknownRoute(t *testing.T) {
	a := newTestApp(t, nil)

	rec := a.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusNotFound, problem.Status)
}

func TestMutationsRequireCSRFHeader(t *testing.T) {
	a := newTestApp(t, nil)

	rec := a.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	token := body["csrfToken"]
	require.NotEmpty(t, token)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookies[0])
	req.Header.Set(shared.CSRFHeader, "forged")
	assert.Equal(t, http.StatusForbidden, a.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookies[0])
	req.Header.Set(shared.CSRFHeader, token)
	assert.Equal(t, http.StatusOK, a.do(req).Code)
}

func webhookRequest(remote string) *http.Request {
	body := `{"table":"invoice_line_items","id":9,"op":"INSERT","row":{"invoiceId":2,"lineTotal":"80"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	req.RemoteAddr = remote
	req.Header.Set(webhook.SecretHeader, "s3cret")
	return req
}

func TestWebhookSkipsCSRF(t *testing.T) {
	a := newTestApp(t, func(c *Config) { c.WebhookInternalOnly = true })

	rec := a.do(webhookRequest("127.0.0.1:4000"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.True(t, decimal.NewFromInt(80).Equal(a.ledger.Invoices[a.invoice].Balance))
}

func TestForwardedForIgnoredUnlessTrusted(t *testing.T) {
	a := newTestApp(t, func(c *Config) { c.WebhookInternalOnly = true })
	req := webhookRequest("203.0.113.7:4000")
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	assert.Equal(t, http.StatusForbidden, a.do(req).Code)

	trusted := newTestApp(t, func(c *Config) {
		c.WebhookInternalOnly = true
		c.TrustProxy = true
	})
	req = webhookRequest("10.0.0.2:4000")
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	assert.Equal(t, http.StatusAccepted, trusted.do(req).Code)
}

func TestRateLimitPerClient(t *testing.T) {
	a := newTestApp(t, func(c *Config) { c.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, a.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, a.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestCSRFExemptPaths(t *testing.T) {
	cases := map[string]bool{
		"/api/webhook":                     true,
		"/api/portal/auth":                 true,
		"/api/portal/logout":               true,
		"/api/auth/login":                  true,
		"/api/auth/logout":                 false,
		"/api/portal":                      false,
		"/api/invoices":                    false,
		"/api/customer-payments/1/approve": false,
	}
	for path, want := range cases {
		assert.Equal(t, want, isCSRFExempt(path), path)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "", cfg.WebhookSecret)
	assert.True(t, cfg.WebhookInternalOnly)
	assert.Equal(t, 12*time.Hour, cfg.PortalSessionTTL)
	assert.Equal(t, 300, cfg.RateLimitPerMinute)
	assert.Equal(t, 30*time.Second, cfg.DashboardCacheTTL)
	assert.Equal(t, "5 0 * * *", cfg.OverdueSweepCron)
	assert.Equal(t, "30 2 * * *", cfg.ReconcileCron)
	assert.Contains(t, cfg.PGDSN, "/odyssey_books")
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "c")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestInTestModeFollowsEnvironment(t *testing.T) {
	t.Cleanup(RefreshTestMode)
	assert.True(t, InTestMode())

	t.Setenv("ODYSSEY_TEST_MODE", "0")
	RefreshTestMode()
	assert.False(t, InTestMode())
}

func TestLoggerLevelFollowsEnvironment(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "production", LogFormat: "json"}, &buf)
	logger.Debug("hidden")
	logger.Info("shown", slog.Int64("invoice_id", 7))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"service":"odyssey-books"`)
	assert.Contains(t, out, `"invoice_id":7`)

	buf.Reset()
	newLogger(&Config{AppEnv: "development"}, &buf).Debug("routed")
	assert.Contains(t, buf.String(), "routed")
}
