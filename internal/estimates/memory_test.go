package estimates

import (
	"context"
	"errors"
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

type invoiceLine struct {
	invoiceID int64
	line      LineItem
}

type memoryRepo struct {
	ledger       *balancestest.Ledger
	estimates    map[int64]Estimate
	lines        map[int64]LineItem
	invoices     map[int64]InvoiceDraft
	invoiceLines map[int64]invoiceLine

	collisions int
	// failLineCopy makes the n-th CreateInvoiceLine call (1-based) fail.
	failLineCopy int
	lineCopies   int
	locks        int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledger:       balancestest.NewLedger(),
		estimates:    map[int64]Estimate{},
		lines:        map[int64]LineItem{},
		invoices:     map[int64]InvoiceDraft{},
		invoiceLines: map[int64]invoiceLine{},
	}
}

func (m *memoryRepo) addContact() int64 {
	id := m.ledger.NextID()
	m.ledger.Contacts[id] = balances.ContactState{}
	return id
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	estimates, lines := maps.Clone(m.estimates), maps.Clone(m.lines)
	invoices, invoiceLines := maps.Clone(m.invoices), maps.Clone(m.invoiceLines)
	return m.ledger.Tx(func() error {
		if err := fn(ctx, m); err != nil {
			m.estimates, m.lines, m.invoices, m.invoiceLines = estimates, lines, invoices, invoiceLines
			return err
		}
		return nil
	})
}

func (m *memoryRepo) Balances() balances.Store { return m.ledger }

func missing(kind string, id int64) error {
	return fmt.Errorf("%w: %s %d", httpx.ErrNotFound, kind, id)
}

func (m *memoryRepo) GetEstimate(_ context.Context, id int64) (*Estimate, error) {
	e, ok := m.estimates[id]
	if !ok {
		return nil, missing("estimate", id)
	}
	st := m.ledger.Estimates[id]
	e.ContactID = st.ContactID
	e.TotalAmount, e.TotalCredits, e.Balance = st.TotalAmount, st.TotalCredits, st.Balance
	return &e, nil
}

func (m *memoryRepo) LockEstimate(ctx context.Context, id int64) (*Estimate, error) {
	m.locks++
	return m.GetEstimate(ctx, id)
}

func (m *memoryRepo) ListEstimates(ctx context.Context, req ListEstimatesRequest) ([]Estimate, int, error) {
	var out []Estimate
	for _, id := range slices.Sorted(maps.Keys(m.estimates)) {
		e, _ := m.GetEstimate(ctx, id)
		if req.ContactID > 0 && e.ContactID != req.ContactID || req.Status != "" && string(e.Status) != req.Status {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (m *memoryRepo) CreateEstimate(_ context.Context, e Estimate) (int64, error) {
	if m.collisions > 0 {
		m.collisions--
		return 0, shared.ErrCodeTaken
	}
	if _, ok := m.ledger.Contacts[e.ContactID]; !ok {
		return 0, fmt.Errorf("%w: contact %d does not exist", httpx.ErrValidation, e.ContactID)
	}
	e.ID = m.ledger.NextID()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	m.estimates[e.ID] = e
	m.ledger.Estimates[e.ID] = balances.EstimateState{ContactID: e.ContactID}
	return e.ID, nil
}

func (m *memoryRepo) UpdateEstimate(_ context.Context, id int64, updates map[string]any) error {
	e, ok := m.estimates[id]
	if !ok {
		return missing("estimate", id)
	}
	st := m.ledger.Estimates[id]
	for col, v := range updates {
		switch col {
		case "contact_id":
			st.ContactID = v.(int64)
		case "issue_date":
			e.IssueDate = v.(time.Time)
		case "expiry_date":
			d := v.(time.Time)
			e.ExpiryDate = &d
		case "status":
			e.Status = Status(v.(string))
		case "notes":
			s := v.(string)
			e.Notes = &s
		default:
			return fmt.Errorf("column %q is not updatable", col)
		}
	}
	m.estimates[id] = e
	m.ledger.Estimates[id] = st
	return nil
}

func (m *memoryRepo) DeleteEstimate(_ context.Context, id int64) error {
	if _, ok := m.estimates[id]; !ok {
		return missing("estimate", id)
	}
	delete(m.estimates, id)
	delete(m.ledger.Estimates, id)
	for lid, l := range m.lines {
		if l.EstimateID == id {
			delete(m.lines, lid)
			delete(m.ledger.EstimateLines, lid)
		}
	}
	return nil
}

func (m *memoryRepo) MarkConverted(_ context.Context, id, invoiceID int64) error {
	e, ok := m.estimates[id]
	if !ok {
		return missing("estimate", id)
	}
	e.ConvertedToInvoice = true
	e.InvoiceID = &invoiceID
	e.Status = StatusAccepted
	m.estimates[id] = e
	return nil
}

func (m *memoryRepo) GetLine(_ context.Context, id int64) (*LineItem, error) {
	l, ok := m.lines[id]
	if !ok {
		return nil, missing("estimate line", id)
	}
	return &l, nil
}

func (m *memoryRepo) ListLines(_ context.Context, estimateID int64) ([]LineItem, error) {
	var out []LineItem
	for _, id := range slices.Sorted(maps.Keys(m.lines)) {
		if m.lines[id].EstimateID == estimateID {
			out = append(out, m.lines[id])
		}
	}
	return out, nil
}

func (m *memoryRepo) CreateLine(_ context.Context, l LineItem) (int64, error) {
	if _, ok := m.estimates[l.EstimateID]; !ok {
		return 0, missing("estimate", l.EstimateID)
	}
	l.ID = m.ledger.NextID()
	m.lines[l.ID] = l
	m.ledger.EstimateLines[l.ID] = balancestest.Line{ParentID: l.EstimateID, Total: l.LineTotal}
	return l.ID, nil
}

func (m *memoryRepo) UpdateLine(_ context.Context, id int64, updates map[string]any) error {
	l, ok := m.lines[id]
	if !ok {
		return missing("estimate line", id)
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
	m.ledger.EstimateLines[id] = balancestest.Line{ParentID: l.EstimateID, Total: l.LineTotal}
	return nil
}

func (m *memoryRepo) DeleteLine(_ context.Context, id int64) error {
	if _, ok := m.lines[id]; !ok {
		return missing("estimate line", id)
	}
	delete(m.lines, id)
	delete(m.ledger.EstimateLines, id)
	return nil
}

func (m *memoryRepo) CreateInvoice(_ context.Context, d InvoiceDraft) (int64, error) {
	if m.collisions > 0 {
		m.collisions--
		return 0, shared.ErrCodeTaken
	}
	id := m.ledger.NextID()
	m.invoices[id] = d
	due := d.DueDate
	m.ledger.Invoices[id] = balances.InvoiceState{ContactID: d.ContactID, DueDate: &due, PaymentStatus: balances.StatusPending}
	return id, nil
}

func (m *memoryRepo) CreateInvoiceLine(_ context.Context, invoiceID int64, l LineItem) (int64, error) {
	m.lineCopies++
	if m.failLineCopy > 0 && m.lineCopies == m.failLineCopy {
		return 0, errors.New("insert invoice line: connection reset")
	}
	id := m.ledger.NextID()
	m.invoiceLines[id] = invoiceLine{invoiceID: invoiceID, line: l}
	m.ledger.InvoiceLines[id] = balancestest.Line{ParentID: invoiceID, Total: l.LineTotal}
	return id, nil
}

var _ Repository = (*memoryRepo)(nil)
