package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

type memoryRepo struct {
	accounts map[int64]Account
	creds    map[int64]Credentials
	invoices map[int64][]Invoice
	touched  []int64
}

func (m *memoryRepo) FindCredentials(_ context.Context, identifier string) (*Credentials, error) {
	for id, a := range m.accounts {
		email := ""
		if a.Email != nil {
			email = strings.ToLower(*a.Email)
		}
		if strings.ToLower(a.ContactUID) != identifier && email != identifier {
			continue
		}
		if c, ok := m.creds[id]; ok {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: portal account", httpx.ErrNotFound)
}

func (m *memoryRepo) TouchLogin(_ context.Context, contactID int64) error {
	m.touched = append(m.touched, contactID)
	return nil
}

func (m *memoryRepo) Account(_ context.Context, contactID int64) (*Account, error) {
	a, ok := m.accounts[contactID]
	if !ok {
		return nil, fmt.Errorf("%w: contact %d", httpx.ErrNotFound, contactID)
	}
	return &a, nil
}

func (m *memoryRepo) Invoices(_ context.Context, contactID int64) ([]Invoice, error) {
	return m.invoices[contactID], nil
}

func (m *memoryRepo) Estimates(context.Context, int64) ([]Estimate, error) { return nil, nil }

func (m *memoryRepo) PurchaseOrders(context.Context, int64) ([]PurchaseOrder, error) { return nil, nil }

func (m *memoryRepo) Payments(context.Context, int64) ([]Payment, error) { return nil, nil }

func hashPIN(t *testing.T, pin string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func setup(t *testing.T) (http.Handler, *memoryRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	email := "Billing@Acme.test"
	repo := &memoryRepo{
		accounts: map[int64]Account{
			1: {ID: 1, ContactUID: "CON-ACME01", Name: "Acme", Email: &email, CustomerBalance: decimal.NewFromInt(50), NetBalance: decimal.NewFromInt(50)},
			2: {ID: 2, ContactUID: "CON-GLOBEX", Name: "Globex"},
		},
		creds: map[int64]Credentials{
			1: {ContactID: 1, PinHash: hashPIN(t, "123456"), Active: true},
			2: {ContactID: 2, PinHash: hashPIN(t, "654321"), Active: false},
		},
		invoices: map[int64][]Invoice{
			1: {{ID: 10, InvoiceUID: "INV-AAAAAA", TotalAmount: decimal.NewFromInt(50), Balance: decimal.NewFromInt(50), PaymentStatus: balances.StatusPending}},
			2: {{ID: 11, InvoiceUID: "INV-BBBBBB"}},
		},
	}
	svc := NewService(repo, NewTokenStore(client, time.Hour), nil)
	h := NewHandler(nil, svc, httpx.NewValidator())
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	return r, repo, mr
}

func call(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, identifier, pin string) LoginResponse {
	t.Helper()
	rec := call(h, http.MethodPost, "/api/portal/auth", "", fmt.Sprintf(`{"identifier":%q,"pin":%q}`, identifier, pin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPortalLoginAndScopedViews(t *testing.T) {
	h, repo, mr := setup(t)

	resp := login(t, h, "  con-acme01 ", "123456")
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, int64(1), resp.Account.ID)
	assert.Equal(t, []int64{1}, repo.touched)
	assert.True(t, mr.Exists("portal:session:"+resp.Token))
	assert.Equal(t, time.Hour, mr.TTL("portal:session:"+resp.Token))

	rec := call(h, http.MethodGet, "/api/portal/invoices", resp.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "INV-AAAAAA")
	assert.NotContains(t, rec.Body.String(), "INV-BBBBBB")

	rec = call(h, http.MethodGet, "/api/portal/estimates", resp.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = call(h, http.MethodGet, "/api/portal/account", resp.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"customerBalance":"50"`)
}

func TestPortalLoginByEmail(t *testing.T) {
	h, _, _ := setup(t)
	resp := login(t, h, "BILLING@acme.TEST", "123456")
	assert.Equal(t, "Acme", resp.Account.Name)
}

func TestPortalLoginFailures(t *testing.T) {
	h, repo, _ := setup(t)
	for name, tc := range map[string]struct {
		body string
		want int
	}{
		"wrong pin":        {`{"identifier":"CON-ACME01","pin":"000000"}`, http.StatusUnauthorized},
		"unknown contact":  {`{"identifier":"nobody@example.test","pin":"123456"}`, http.StatusUnauthorized},
		"disabled access":  {`{"identifier":"CON-GLOBEX","pin":"654321"}`, http.StatusForbidden},
		"malformed pin":    {`{"identifier":"CON-ACME01","pin":"12ab56"}`, http.StatusBadRequest},
		"missing identity": {`{"pin":"123456"}`, http.StatusBadRequest},
	} {
		t.Run(name, func(t *testing.T) {
			rec := call(h, http.MethodPost, "/api/portal/auth", "", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, repo.touched)
}

func TestPortalTokenLifecycle(t *testing.T) {
	h, _, mr := setup(t)

	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/api/portal/account", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/api/portal/account", "forged", "").Code)

	resp := login(t, h, "CON-ACME01", "123456")
	rec := call(h, http.MethodPost, "/api/portal/logout", resp.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, mr.Exists("portal:session:"+resp.Token))
	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/api/portal/account", resp.Token, "").Code)

	resp = login(t, h, "CON-ACME01", "123456")
	mr.FastForward(2 * time.Hour)
	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/api/portal/invoices", resp.Token, "").Code)
}

func TestBearerToken(t *testing.T) {
	for header, want := range map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"abc":         "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		assert.Equal(t, want, bearerToken(req), header)
	}
}
