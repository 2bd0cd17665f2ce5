package purchasing

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
)

type memoryRepo struct {
	ledger   *balancestest.Ledger
	orders   map[int64]PurchaseOrder
	lines    map[int64]Line
	payments map[int64]VendorPayment
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledger:   balancestest.NewLedger(),
		orders:   map[int64]PurchaseOrder{},
		lines:    map[int64]Line{},
		payments: map[int64]VendorPayment{},
	}
}

func (m *memoryRepo) addVendor() int64 {
	id := m.ledger.NextID()
	m.ledger.Contacts[id] = balances.ContactState{}
	return id
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	orders, lines, payments := maps.Clone(m.orders), maps.Clone(m.lines), maps.Clone(m.payments)
	return m.ledger.Tx(func() error {
		if err := fn(ctx, m); err != nil {
			m.orders, m.lines, m.payments = orders, lines, payments
			return err
		}
		return nil
	})
}

func (m *memoryRepo) Balances() balances.Store { return m.ledger }

func missing(kind string, id int64) error {
	return fmt.Errorf("%w: %s %d", httpx.ErrNotFound, kind, id)
}

func (m *memoryRepo) GetPurchaseOrder(_ context.Context, id int64) (*PurchaseOrder, error) {
	po, ok := m.orders[id]
	if !ok {
		return nil, missing("purchase order", id)
	}
	st := m.ledger.PurchaseOrders[id]
	po.ContactID, po.ExpectedDate = st.ContactID, st.ExpectedDate
	po.TotalAmount, po.TotalPaid, po.Balance = st.TotalAmount, st.TotalPaid, st.Balance
	po.PaymentStatus, po.ProductCount = st.PaymentStatus, st.ProductCount
	return &po, nil
}

func (m *memoryRepo) ListPurchaseOrders(ctx context.Context, req ListPurchaseOrdersRequest) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, id := range slices.Sorted(maps.Keys(m.orders)) {
		po, _ := m.GetPurchaseOrder(ctx, id)
		if req.ContactID > 0 && po.ContactID != req.ContactID || req.Status != "" && string(po.PaymentStatus) != req.Status {
			continue
		}
		out = append(out, *po)
	}
	return out, len(out), nil
}

func (m *memoryRepo) CreatePurchaseOrder(_ context.Context, po PurchaseOrder) (int64, error) {
	if _, ok := m.ledger.Contacts[po.ContactID]; !ok {
		return 0, fmt.Errorf("%w: contact %d does not exist", httpx.ErrValidation, po.ContactID)
	}
	po.ID = m.ledger.NextID()
	po.CreatedAt = time.Now()
	m.orders[po.ID] = po
	m.ledger.PurchaseOrders[po.ID] = balances.PurchaseOrderState{
		ContactID:     po.ContactID,
		ExpectedDate:  po.ExpectedDate,
		PaymentStatus: balances.StatusPending,
	}
	return po.ID, nil
}

func (m *memoryRepo) UpdatePurchaseOrder(_ context.Context, id int64, updates map[string]any) error {
	po, ok := m.orders[id]
	if !ok {
		return missing("purchase order", id)
	}
	st := m.ledger.PurchaseOrders[id]
	for col, v := range updates {
		switch col {
		case "contact_id":
			st.ContactID = v.(int64)
		case "order_date":
			po.OrderDate = v.(time.Time)
		case "expected_date":
			d := v.(time.Time)
			st.ExpectedDate = &d
		case "notes":
			s := v.(string)
			po.Notes = &s
		default:
			return fmt.Errorf("column %q is not updatable", col)
		}
	}
	m.orders[id] = po
	m.ledger.PurchaseOrders[id] = st
	return nil
}

func (m *memoryRepo) DeletePurchaseOrder(_ context.Context, id int64) error {
	if _, ok := m.orders[id]; !ok {
		return missing("purchase order", id)
	}
	delete(m.orders, id)
	delete(m.ledger.PurchaseOrders, id)
	for lid, l := range m.lines {
		if l.PurchaseOrderID == id {
			delete(m.lines, lid)
			delete(m.ledger.PurchaseOrderLines, lid)
		}
	}
	for pid, p := range m.payments {
		if p.PurchaseOrderID == id {
			delete(m.payments, pid)
			delete(m.ledger.VendorPayments, pid)
		}
	}
	return nil
}

func (m *memoryRepo) GetLine(_ context.Context, id int64) (*Line, error) {
	l, ok := m.lines[id]
	if !ok {
		return nil, missing("purchase order line", id)
	}
	return &l, nil
}

func (m *memoryRepo) ListLines(_ context.Context, purchaseOrderID int64) ([]Line, error) {
	var out []Line
	for _, id := range slices.Sorted(maps.Keys(m.lines)) {
		if m.lines[id].PurchaseOrderID == purchaseOrderID {
			out = append(out, m.lines[id])
		}
	}
	return out, nil
}

func (m *memoryRepo) CreateLine(_ context.Context, l Line) (int64, error) {
	l.ID = m.ledger.NextID()
	m.lines[l.ID] = l
	m.ledger.PurchaseOrderLines[l.ID] = balancestest.Line{ParentID: l.PurchaseOrderID, Total: l.LineTotal}
	return l.ID, nil
}

func (m *memoryRepo) UpdateLine(_ context.Context, id int64, updates map[string]any) error {
	l, ok := m.lines[id]
	if !ok {
		return missing("purchase order line", id)
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
		case "unit_cost":
			l.UnitCost = v.(decimal.Decimal)
		case "line_total":
			l.LineTotal = v.(decimal.Decimal)
		default:
			return fmt.Errorf("column %q is not updatable", col)
		}
	}
	m.lines[id] = l
	m.ledger.PurchaseOrderLines[id] = balancestest.Line{ParentID: l.PurchaseOrderID, Total: l.LineTotal}
	return nil
}

func (m *memoryRepo) DeleteLine(_ context.Context, id int64) error {
	if _, ok := m.lines[id]; !ok {
		return missing("purchase order line", id)
	}
	delete(m.lines, id)
	delete(m.ledger.PurchaseOrderLines, id)
	return nil
}

func (m *memoryRepo) GetPayment(_ context.Context, id int64) (*VendorPayment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, missing("vendor payment", id)
	}
	return &p, nil
}

func (m *memoryRepo) ListPayments(_ context.Context, req ListVendorPaymentsRequest) ([]VendorPayment, int, error) {
	var out []VendorPayment
	for _, id := range slices.Sorted(maps.Keys(m.payments)) {
		p := m.payments[id]
		if req.PurchaseOrderID > 0 && p.PurchaseOrderID != req.PurchaseOrderID || req.ContactID > 0 && p.ContactID != req.ContactID {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryRepo) CreatePayment(_ context.Context, p VendorPayment) (int64, error) {
	p.ID = m.ledger.NextID()
	m.payments[p.ID] = p
	m.ledger.VendorPayments[p.ID] = balancestest.Payment{ParentID: p.PurchaseOrderID, Amount: p.Amount, Approved: true}
	return p.ID, nil
}

func (m *memoryRepo) DeletePayment(_ context.Context, id int64) error {
	if _, ok := m.payments[id]; !ok {
		return missing("vendor payment", id)
	}
	delete(m.payments, id)
	delete(m.ledger.VendorPayments, id)
	return nil
}

var _ Repository = (*memoryRepo)(nil)
