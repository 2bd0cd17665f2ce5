package invoices

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/balances/balancestest"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// memoryRepo keeps document attributes in maps and everything the
// recalculator touches in the ledger, so derived fields come from the ledger.
type memoryRepo struct {
	ledger      *balancestest.Ledger
	invoices    map[int64]Invoice
	lines       map[int64]LineItem
	payments    map[int64]CustomerPayment
	credits     map[int64]CustomerCredit
	idempotency map[string]int64
	// conversions maps an estimate to the invoice it was converted into.
	conversions map[int64]int64
	collisions  int
	// failPayment is returned by CreatePayment once set.
	failPayment error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledger:      balancestest.NewLedger(),
		invoices:    map[int64]Invoice{},
		lines:       map[int64]LineItem{},
		payments:    map[int64]CustomerPayment{},
		credits:     map[int64]CustomerCredit{},
		idempotency: map[string]int64{},
		conversions: map[int64]int64{},
	}
}

func (m *memoryRepo) addContact() int64 {
	id := m.ledger.NextID()
	m.ledger.Contacts[id] = balances.ContactState{}
	return id
}

func (m *memoryRepo) addEstimate(contactID int64, total string) int64 {
	id := m.ledger.NextID()
	amount := decimal.RequireFromString(total)
	m.ledger.Estimates[id] = balances.EstimateState{ContactID: contactID, TotalAmount: amount, Balance: amount}
	m.ledger.EstimateLines[m.ledger.NextID()] = balancestest.Line{ParentID: id, Total: amount}
	return id
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	invoices, lines := maps.Clone(m.invoices), maps.Clone(m.lines)
	payments, credits := maps.Clone(m.payments), maps.Clone(m.credits)
	keys, conversions := maps.Clone(m.idempotency), maps.Clone(m.conversions)
	return m.ledger.Tx(func() error {
		if err := fn(ctx, m); err != nil {
			m.invoices, m.lines, m.payments, m.credits, m.idempotency = invoices, lines, payments, credits, keys
			m.conversions = conversions
			return err
		}
		return nil
	})
}

func (m *memoryRepo) Balances() balances.Store { return m.ledger }

func missing(kind string, id int64) error {
	return fmt.Errorf("%w: %s %d", httpx.ErrNotFound, kind, id)
}

func (m *memoryRepo) GetInvoice(_ context.Context, id int64) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, missing("invoice", id)
	}
	st := m.ledger.Invoices[id]
	inv.ContactID = st.ContactID
	inv.DueDate = st.DueDate
	inv.TotalAmount, inv.TotalPaid, inv.TotalCredits = st.TotalAmount, st.TotalPaid, st.TotalCredits
	inv.Balance, inv.PaymentStatus = st.Balance, st.PaymentStatus
	return &inv, nil
}

func (m *memoryRepo) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	var out []Invoice
	for _, id := range sortedKeys(m.invoices) {
		inv, _ := m.GetInvoice(ctx, id)
		if req.ContactID > 0 && inv.ContactID != req.ContactID {
			continue
		}
		if req.Status != "" && string(inv.PaymentStatus) != req.Status {
			continue
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (m *memoryRepo) CreateInvoice(_ context.Context, inv Invoice) (int64, error) {
	if m.collisions > 0 {
		m.collisions--
		return 0, shared.ErrCodeTaken
	}
	if _, ok := m.ledger.Contacts[inv.ContactID]; !ok {
		return 0, fmt.Errorf("%w: contact %d does not exist", httpx.ErrValidation, inv.ContactID)
	}
	inv.ID = m.ledger.NextID()
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	m.invoices[inv.ID] = inv
	m.ledger.Invoices[inv.ID] = balances.InvoiceState{
		ContactID:     inv.ContactID,
		DueDate:       inv.DueDate,
		PaymentStatus: balances.StatusPending,
	}
	return inv.ID, nil
}

func (m *memoryRepo) UpdateInvoice(_ context.Context, id int64, updates map[string]any) error {
	inv, ok := m.invoices[id]
	if !ok {
		return missing("invoice", id)
	}
	st := m.ledger.Invoices[id]
	for col, v := range updates {
		switch col {
		case "contact_id":
			st.ContactID = v.(int64)
		case "issue_date":
			inv.IssueDate = v.(time.Time)
		case "due_date":
			due := v.(time.Time)
			st.DueDate = &due
		case "notes":
			s := v.(string)
			inv.Notes = &s
		default:
			return fmt.Errorf("column %q is not updatable", col)
		}
	}
	m.invoices[id] = inv
	m.ledger.Invoices[id] = st
	return nil
}

func (m *memoryRepo) ReleaseEstimate(_ context.Context, invoiceID int64) error {
	for est, inv := range m.conversions {
		if inv == invoiceID {
			delete(m.conversions, est)
		}
	}
	return nil
}

func (m *memoryRepo) DeleteInvoice(_ context.Context, id int64) error {
	if _, ok := m.invoices[id]; !ok {
		return missing("invoice", id)
	}
	delete(m.invoices, id)
	delete(m.ledger.Invoices, id)
	for lid, l := range m.lines {
		if l.InvoiceID == id {
			delete(m.lines, lid)
			delete(m.ledger.InvoiceLines, lid)
		}
	}
	for pid, p := range m.payments {
		if p.InvoiceID == id {
			delete(m.payments, pid)
			delete(m.ledger.CustomerPayments, pid)
		}
	}
	for cid, c := range m.credits {
		if c.InvoiceID != nil && *c.InvoiceID == id {
			delete(m.credits, cid)
			delete(m.ledger.Credits, cid)
		}
	}
	return nil
}

func (m *memoryRepo) GetLine(_ context.Context, id int64) (*LineItem, error) {
	l, ok := m.lines[id]
	if !ok {
		return nil, missing("invoice line", id)
	}
	return &l, nil
}

func (m *memoryRepo) ListLines(_ context.Context, invoiceID int64) ([]LineItem, error) {
	var out []LineItem
	for _, id := range sortedKeys(m.lines) {
		if m.lines[id].InvoiceID == invoiceID {
			out = append(out, m.lines[id])
		}
	}
	return out, nil
}

func (m *memoryRepo) CreateLine(_ context.Context, l LineItem) (int64, error) {
	if _, ok := m.invoices[l.InvoiceID]; !ok {
		return 0, missing("invoice", l.InvoiceID)
	}
	l.ID = m.ledger.NextID()
	m.lines[l.ID] = l
	m.ledger.InvoiceLines[l.ID] = balancestest.Line{ParentID: l.InvoiceID, Total: l.LineTotal}
	return l.ID, nil
}

func (m *memoryRepo) UpdateLine(_ context.Context, id int64, updates map[string]any) error {
	l, ok := m.lines[id]
	if !ok {
		return missing("invoice line", id)
	}
	for col, v := range updates {
		switch col {
		case "product_id":
			p := v.(int64)
			l.ProductID = &p
		case "description":
			l.Description = v.(string)
		case "quantity":
			l.Quantity = v.(int64)
		case "unit_price":
			l.UnitPrice = v.(decimal.Decimal)
		case "line_total":
			l.LineTotal = v.(decimal.Decimal)
		default:
			return fmt.Errorf("column %q is not updatable", col)
		}
	}
	m.lines[id] = l
	m.ledger.InvoiceLines[id] = balancestest.Line{ParentID: l.InvoiceID, Total: l.LineTotal}
	return nil
}

func (m *memoryRepo) DeleteLine(_ context.Context, id int64) error {
	if _, ok := m.lines[id]; !ok {
		return missing("invoice line", id)
	}
	delete(m.lines, id)
	delete(m.ledger.InvoiceLines, id)
	return nil
}

func (m *memoryRepo) GetPayment(_ context.Context, id int64) (*CustomerPayment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, missing("customer payment", id)
	}
	return &p, nil
}

func (m *memoryRepo) ListPayments(_ context.Context, req ListPaymentsRequest) ([]CustomerPayment, int, error) {
	var out []CustomerPayment
	for _, id := range sortedKeys(m.payments) {
		p := m.payments[id]
		if req.InvoiceID > 0 && p.InvoiceID != req.InvoiceID ||
			req.ContactID > 0 && p.ContactID != req.ContactID ||
			req.Status != "" && string(p.Status) != req.Status {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryRepo) syncPayment(p CustomerPayment) {
	m.ledger.CustomerPayments[p.ID] = balancestest.Payment{ParentID: p.InvoiceID, Amount: p.Amount, Approved: p.Status == PaymentApproved}
}

func (m *memoryRepo) CreatePayment(_ context.Context, p CustomerPayment) (int64, error) {
	if m.failPayment != nil {
		return 0, m.failPayment
	}
	p.ID = m.ledger.NextID()
	p.CreatedAt = time.Now()
	m.payments[p.ID] = p
	m.syncPayment(p)
	return p.ID, nil
}

func (m *memoryRepo) UpdatePayment(_ context.Context, id int64, updates map[string]any) error {
	p, ok := m.payments[id]
	if !ok {
		return missing("customer payment", id)
	}
	for col, v := range updates {
		switch col {
		case "amount":
			p.Amount = v.(decimal.Decimal)
		case "payment_date":
			p.PaymentDate = v.(time.Time)
		case "method":
			p.Method = v.(string)
		case "reference":
			s := v.(string)
			p.Reference = &s
		case "notes":
			s := v.(string)
			p.Notes = &s
		case "status":
			p.Status = PaymentState(v.(string))
		case "approved_by":
			actor := v.(int64)
			p.ApprovedBy = &actor
		case "approved_at":
			at := v.(time.Time)
			p.ApprovedAt = &at
		default:
			return fmt.Errorf("column %q is not updatable", col)
		}
	}
	m.payments[id] = p
	m.syncPayment(p)
	return nil
}

func (m *memoryRepo) DeletePayment(_ context.Context, id int64) error {
	if _, ok := m.payments[id]; !ok {
		return missing("customer payment", id)
	}
	delete(m.payments, id)
	delete(m.ledger.CustomerPayments, id)
	return nil
}

func (m *memoryRepo) GetCredit(_ context.Context, id int64) (*CustomerCredit, error) {
	c, ok := m.credits[id]
	if !ok {
		return nil, missing("customer credit", id)
	}
	return &c, nil
}

func (m *memoryRepo) ListCredits(_ context.Context, req ListCreditsRequest) ([]CustomerCredit, int, error) {
	var out []CustomerCredit
	for _, id := range sortedKeys(m.credits) {
		c := m.credits[id]
		if req.ContactID > 0 && c.ContactID != req.ContactID ||
			req.InvoiceID > 0 && (c.InvoiceID == nil || *c.InvoiceID != req.InvoiceID) ||
			req.EstimateID > 0 && (c.EstimateID == nil || *c.EstimateID != req.EstimateID) {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memoryRepo) CreateCredit(_ context.Context, c CustomerCredit) (int64, error) {
	c.ID = m.ledger.NextID()
	c.CreatedAt = time.Now()
	m.credits[c.ID] = c
	entry := balancestest.Credit{Amount: c.Amount}
	if c.InvoiceID != nil {
		entry.InvoiceID = *c.InvoiceID
	}
	if c.EstimateID != nil {
		entry.EstimateID = *c.EstimateID
	}
	m.ledger.Credits[c.ID] = entry
	return c.ID, nil
}

func (m *memoryRepo) DeleteCredit(_ context.Context, id int64) error {
	if _, ok := m.credits[id]; !ok {
		return missing("customer credit", id)
	}
	delete(m.credits, id)
	delete(m.ledger.Credits, id)
	return nil
}

func (m *memoryRepo) EstimateContact(_ context.Context, estimateID int64) (int64, error) {
	st, ok := m.ledger.Estimates[estimateID]
	if !ok {
		return 0, missing("estimate", estimateID)
	}
	return st.ContactID, nil
}

func (m *memoryRepo) ClaimIdempotencyKey(_ context.Context, key string) (int64, bool, error) {
	if id, ok := m.idempotency[key]; ok {
		return id, false, nil
	}
	m.idempotency[key] = 0
	return 0, true, nil
}

func (m *memoryRepo) BindIdempotencyKey(_ context.Context, key string, paymentID int64) error {
	m.idempotency[key] = paymentID
	return nil
}

func sortedKeys[V any](in map[int64]V) []int64 {
	return slices.Sorted(maps.Keys(in))
}

var _ Repository = (*memoryRepo)(nil)
