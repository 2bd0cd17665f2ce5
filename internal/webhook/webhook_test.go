package webhook

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/balances/balancestest"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

type ledgerRunner struct {
	ledger *balancestest.Ledger
	calls  int
}

func (l *ledgerRunner) WithStore(ctx context.Context, fn func(context.Context, balances.Store) error) error {
	l.calls++
	return l.ledger.Tx(func() error { return fn(ctx, l.ledger) })
}

// seed builds contact 1 with invoice 2 carrying a single line 3 of 100.
func seed() *balancestest.Ledger {
	ledger := balancestest.NewLedger()
	contact, invoice, line := ledger.NextID(), ledger.NextID(), ledger.NextID()
	ledger.Contacts[contact] = balances.ContactState{}
	ledger.Invoices[invoice] = balances.InvoiceState{ContactID: contact, PaymentStatus: balances.StatusPending}
	ledger.InvoiceLines[line] = balancestest.Line{ParentID: invoice, Total: decimal.NewFromInt(100)}
	return ledger
}

func newTestHandler(secret string, internalOnly bool) (*Handler, *ledgerRunner) {
	runner := &ledgerRunner{ledger: seed()}
	dispatcher := balances.NewDispatcher(balances.NewRecalculator(nil), nil, nil)
	svc := NewService(runner, dispatcher, nil)
	return NewHandler(nil, svc, httpx.NewValidator(), secret, internalOnly), runner
}

func post(h *Handler, remote, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	req.RemoteAddr = remote
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	return rec
}

func TestReceiveRecomputesInvoiceAndContact(t *testing.T) {
	h, runner := newTestHandler("s3cret", true)

	rec := post(h, "127.0.0.1:5555", "s3cret", `{"table":"invoice_line_items","id":3,"op":"insert","row":{"invoiceId":2,"lineTotal":"100"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	inv := runner.ledger.Invoices[2]
	assert.True(t, inv.Balance.Equal(decimal.NewFromInt(100)))
	assert.True(t, runner.ledger.Contacts[1].CustomerBalance.Equal(decimal.NewFromInt(100)))

	saves := runner.ledger.Saves["invoice"]
	rec = post(h, "10.1.2.3:80", "s3cret", `{"table":"invoice_line_items","id":3,"op":"INSERT","row":{"invoiceId":2}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, saves, runner.ledger.Saves["invoice"], "a replayed event must not rewrite the invoice")
}

func TestReceiveLegacyAccountsUpdate(t *testing.T) {
	h, runner := newTestHandler("s3cret", false)
	runner.ledger.Contacts[1] = balances.ContactState{CustomerBalance: decimal.NewFromInt(40), VendorBalance: decimal.NewFromInt(15)}

	rec := post(h, "203.0.113.9:443", "s3cret",
		`{"table":"accounts","id":1,"op":"UPDATE","row":{"accountId":1,"customerBalance":"40"},"old_row":{"accountId":1,"customerBalance":"0"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.True(t, runner.ledger.Contacts[1].NetBalance.Equal(decimal.NewFromInt(25)))
}

func TestReceiveRejections(t *testing.T) {
	body := `{"table":"invoices","id":2,"op":"UPDATE"}`

	h, runner := newTestHandler("", true)
	assert.Equal(t, http.StatusNotFound, post(h, "127.0.0.1:1", "", body).Code)

	h, runner = newTestHandler("s3cret", true)
	assert.Equal(t, http.StatusForbidden, post(h, "8.8.8.8:1", "s3cret", body).Code)
	assert.Equal(t, http.StatusUnauthorized, post(h, "127.0.0.1:1", "wrong", body).Code)
	assert.Equal(t, http.StatusUnauthorized, post(h, "127.0.0.1:1", "", body).Code)
	assert.Equal(t, http.StatusBadRequest, post(h, "127.0.0.1:1", "s3cret", `{"table":"invoices","op":"UPSERT"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(h, "127.0.0.1:1", "s3cret", `{"op":"INSERT"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(h, "127.0.0.1:1", "s3cret", `not json`).Code)
	assert.Zero(t, runner.calls)
}

func TestReceiveUnknownTableIsAccepted(t *testing.T) {
	h, runner := newTestHandler("s3cret", true)
	rec := post(h, "[::1]:9000", "s3cret", `{"table":"pdf_queue","id":9,"op":"INSERT","row":{"invoiceId":2}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Zero(t, runner.ledger.Saves["invoice"])
}

func TestReceiveRecomputeFailureRollsBack(t *testing.T) {
	h, runner := newTestHandler("s3cret", true)
	runner.ledger.Fail = map[string]error{"SaveContact": assert.AnError}

	rec := post(h, "127.0.0.1:1", "s3cret", `{"table":"invoice_line_items","id":3,"op":"INSERT","row":{"invoiceId":2}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.True(t, runner.ledger.Invoices[2].Balance.IsZero(), "invoice recompute must roll back with the contact failure")
}

func TestInternalPeer(t *testing.T) {
	for remote, want := range map[string]bool{
		"127.0.0.1:80":        true,
		"[::1]:80":            true,
		"192.168.1.20:5000":   true,
		"172.20.0.4:5000":     true,
		"[::ffff:10.0.0.1]:1": true,
		"8.8.8.8:53":          false,
		"garbage":             false,
	} {
		assert.Equal(t, want, internalPeer(remote), remote)
	}
}

func TestReceiveMessageLinksProduct(t *testing.T) {
	h, runner := newTestHandler("s3cret", true)
	msg, product := runner.ledger.NextID(), runner.ledger.NextID()
	runner.ledger.Products[product] = "KOPI-01"
	runner.ledger.Messages[msg] = balances.MessageState{ExtractedData: map[string]any{"sku": "kopi-01"}}

	body := fmt.Sprintf(`{"table":"messages","id":%d,"op":"INSERT","row":{"extractedData":{"sku":"kopi-01"}}}`, msg)
	rec := post(h, "127.0.0.1:1", "s3cret", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	linked := runner.ledger.Messages[msg].ProductID
	require.NotNil(t, linked)
	assert.Equal(t, product, *linked)
}
