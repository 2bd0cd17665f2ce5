// Package balancestest provides an in-memory balances.Store for tests.
package balancestest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

// Line is a child row contributing a line total.
type Line struct {
	ParentID int64
	Total    decimal.Decimal
}

// Payment is a payment row. Approved payments count towards paid totals.
type Payment struct {
	ParentID int64
	Amount   decimal.Decimal
	Approved bool
}

// Credit reduces an invoice or an estimate balance.
type Credit struct {
	InvoiceID  int64
	EstimateID int64
	Amount     decimal.Decimal
}

// Ledger is a map-backed balances.Store. It is not safe for concurrent use.
type Ledger struct {
	Contacts       map[int64]balances.ContactState
	Invoices       map[int64]balances.InvoiceState
	Estimates      map[int64]balances.EstimateState
	PurchaseOrders map[int64]balances.PurchaseOrderState

	InvoiceLines       map[int64]Line
	EstimateLines      map[int64]Line
	PurchaseOrderLines map[int64]Line
	CustomerPayments   map[int64]Payment
	VendorPayments     map[int64]Payment
	Credits            map[int64]Credit

	Messages map[int64]balances.MessageState
	// Products maps product id to SKU.
	Products map[int64]string

	// Locks counts Lock* calls per aggregate kind.
	Locks map[string]int
	// Saves counts Save* calls per aggregate kind.
	Saves map[string]int
	// Fail injects an error returned by the named method, e.g. "SaveInvoice".
	Fail map[string]error

	nextID int64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		Contacts:           map[int64]balances.ContactState{},
		Invoices:           map[int64]balances.InvoiceState{},
		Estimates:          map[int64]balances.EstimateState{},
		PurchaseOrders:     map[int64]balances.PurchaseOrderState{},
		InvoiceLines:       map[int64]Line{},
		EstimateLines:      map[int64]Line{},
		PurchaseOrderLines: map[int64]Line{},
		CustomerPayments:   map[int64]Payment{},
		VendorPayments:     map[int64]Payment{},
		Credits:            map[int64]Credit{},
		Messages:           map[int64]balances.MessageState{},
		Products:           map[int64]string{},
		Locks:              map[string]int{},
		Saves:              map[string]int{},
		Fail:               map[string]error{},
	}
}

// NextID hands out ids shared by every table.
func (l *Ledger) NextID() int64 {
	l.nextID++
	return l.nextID
}

// Clone deep-copies the ledger state. Counters and injected failures are not copied.
func (l *Ledger) Clone() *Ledger {
	c := NewLedger()
	c.Contacts = maps.Clone(l.Contacts)
	c.Invoices = maps.Clone(l.Invoices)
	c.Estimates = maps.Clone(l.Estimates)
	c.PurchaseOrders = maps.Clone(l.PurchaseOrders)
	c.InvoiceLines = maps.Clone(l.InvoiceLines)
	c.EstimateLines = maps.Clone(l.EstimateLines)
	c.PurchaseOrderLines = maps.Clone(l.PurchaseOrderLines)
	c.CustomerPayments = maps.Clone(l.CustomerPayments)
	c.VendorPayments = maps.Clone(l.VendorPayments)
	c.Credits = maps.Clone(l.Credits)
	c.Messages = maps.Clone(l.Messages)
	c.Products = maps.Clone(l.Products)
	c.nextID = l.nextID
	return c
}

// Restore replaces the ledger state with snapshot, keeping counters.
func (l *Ledger) Restore(snapshot *Ledger) {
	l.Contacts = snapshot.Contacts
	l.Invoices = snapshot.Invoices
	l.Estimates = snapshot.Estimates
	l.PurchaseOrders = snapshot.PurchaseOrders
	l.InvoiceLines = snapshot.InvoiceLines
	l.EstimateLines = snapshot.EstimateLines
	l.PurchaseOrderLines = snapshot.PurchaseOrderLines
	l.CustomerPayments = snapshot.CustomerPayments
	l.VendorPayments = snapshot.VendorPayments
	l.Credits = snapshot.Credits
	l.Messages = snapshot.Messages
	l.Products = snapshot.Products
	l.nextID = snapshot.nextID
}

// Tx runs fn and rolls the ledger back when it fails.
func (l *Ledger) Tx(fn func() error) error {
	snapshot := l.Clone()
	if err := fn(); err != nil {
		l.Restore(snapshot)
		return err
	}
	return nil
}

func (l *Ledger) fail(method string) error {
	return l.Fail[method]
}

func missing(kind string, id int64) error {
	return fmt.Errorf("%w: %s %d", httpx.ErrNotFound, kind, id)
}

// LockInvoice implements balances.Store.
func (l *Ledger) LockInvoice(_ context.Context, id int64) (balances.InvoiceState, error) {
	l.Locks["invoice"]++
	if err := l.fail("LockInvoice"); err != nil {
		return balances.InvoiceState{}, err
	}
	st, ok := l.Invoices[id]
	if !ok {
		return balances.InvoiceState{}, missing("invoice", id)
	}
	return st, nil
}

// SumInvoice implements balances.Store.
func (l *Ledger) SumInvoice(_ context.Context, id int64) (balances.InvoiceSums, error) {
	var sums balances.InvoiceSums
	for _, line := range l.InvoiceLines {
		if line.ParentID == id {
			sums.Lines = sums.Lines.Add(line.Total)
		}
	}
	for _, p := range l.CustomerPayments {
		if p.ParentID == id && p.Approved {
			sums.ApprovedPayments = sums.ApprovedPayments.Add(p.Amount)
		}
	}
	for _, c := range l.Credits {
		if c.InvoiceID == id {
			sums.Credits = sums.Credits.Add(c.Amount)
		}
	}
	return sums, nil
}

// SaveInvoice implements balances.Store.
func (l *Ledger) SaveInvoice(_ context.Context, id int64, st balances.InvoiceState) error {
	l.Saves["invoice"]++
	if err := l.fail("SaveInvoice"); err != nil {
		return err
	}
	l.Invoices[id] = st
	return nil
}

// LockEstimate implements balances.Store.
func (l *Ledger) LockEstimate(_ context.Context, id int64) (balances.EstimateState, error) {
	l.Locks["estimate"]++
	if err := l.fail("LockEstimate"); err != nil {
		return balances.EstimateState{}, err
	}
	st, ok := l.Estimates[id]
	if !ok {
		return balances.EstimateState{}, missing("estimate", id)
	}
	return st, nil
}

// SumEstimate implements balances.Store.
func (l *Ledger) SumEstimate(_ context.Context, id int64) (balances.EstimateSums, error) {
	var sums balances.EstimateSums
	for _, line := range l.EstimateLines {
		if line.ParentID == id {
			sums.Lines = sums.Lines.Add(line.Total)
		}
	}
	for _, c := range l.Credits {
		if c.EstimateID == id {
			sums.Credits = sums.Credits.Add(c.Amount)
		}
	}
	return sums, nil
}

// SaveEstimate implements balances.Store.
func (l *Ledger) SaveEstimate(_ context.Context, id int64, st balances.EstimateState) error {
	l.Saves["estimate"]++
	if err := l.fail("SaveEstimate"); err != nil {
		return err
	}
	l.Estimates[id] = st
	return nil
}

// LockPurchaseOrder implements balances.Store.
func (l *Ledger) LockPurchaseOrder(_ context.Context, id int64) (balances.PurchaseOrderState, error) {
	l.Locks["purchase_order"]++
	if err := l.fail("LockPurchaseOrder"); err != nil {
		return balances.PurchaseOrderState{}, err
	}
	st, ok := l.PurchaseOrders[id]
	if !ok {
		return balances.PurchaseOrderState{}, missing("purchase order", id)
	}
	return st, nil
}

// SumPurchaseOrder implements balances.Store.
func (l *Ledger) SumPurchaseOrder(_ context.Context, id int64) (balances.PurchaseOrderSums, error) {
	var sums balances.PurchaseOrderSums
	for _, line := range l.PurchaseOrderLines {
		if line.ParentID == id {
			sums.Lines = sums.Lines.Add(line.Total)
			sums.LineCount++
		}
	}
	for _, p := range l.VendorPayments {
		if p.ParentID == id {
			sums.Payments = sums.Payments.Add(p.Amount)
		}
	}
	return sums, nil
}

// SavePurchaseOrder implements balances.Store.
func (l *Ledger) SavePurchaseOrder(_ context.Context, id int64, st balances.PurchaseOrderState) error {
	l.Saves["purchase_order"]++
	if err := l.fail("SavePurchaseOrder"); err != nil {
		return err
	}
	l.PurchaseOrders[id] = st
	return nil
}

// LockContact implements balances.Store.
func (l *Ledger) LockContact(_ context.Context, id int64) (balances.ContactState, error) {
	l.Locks["contact"]++
	if err := l.fail("LockContact"); err != nil {
		return balances.ContactState{}, err
	}
	st, ok := l.Contacts[id]
	if !ok {
		return balances.ContactState{}, missing("contact", id)
	}
	return st, nil
}

// SumContact implements balances.Store.
func (l *Ledger) SumContact(_ context.Context, id int64) (balances.ContactSums, error) {
	var sums balances.ContactSums
	for _, inv := range l.Invoices {
		if inv.ContactID == id {
			sums.Receivable = sums.Receivable.Add(inv.Balance)
		}
	}
	for _, po := range l.PurchaseOrders {
		if po.ContactID == id {
			sums.Payable = sums.Payable.Add(po.Balance)
		}
	}
	return sums, nil
}

// SaveContact implements balances.Store.
func (l *Ledger) SaveContact(_ context.Context, id int64, st balances.ContactState) error {
	l.Saves["contact"]++
	if err := l.fail("SaveContact"); err != nil {
		return err
	}
	l.Contacts[id] = st
	return nil
}

// LockMessage implements balances.MessageStore.
func (l *Ledger) LockMessage(_ context.Context, id int64) (balances.MessageState, error) {
	l.Locks["message"]++
	st, ok := l.Messages[id]
	if !ok {
		return balances.MessageState{}, missing("message", id)
	}
	return st, nil
}

// ProductBySKU implements balances.MessageStore.
func (l *Ledger) ProductBySKU(_ context.Context, sku string) (int64, error) {
	for _, id := range slices.Sorted(maps.Keys(l.Products)) {
		if strings.EqualFold(l.Products[id], sku) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: product sku %q", httpx.ErrNotFound, sku)
}

// ProductExists implements balances.MessageStore.
func (l *Ledger) ProductExists(_ context.Context, id int64) (bool, error) {
	_, ok := l.Products[id]
	return ok, nil
}

// SaveMessageProduct implements balances.MessageStore.
func (l *Ledger) SaveMessageProduct(_ context.Context, id, productID int64) error {
	l.Saves["message"]++
	if err := l.fail("SaveMessageProduct"); err != nil {
		return err
	}
	st, ok := l.Messages[id]
	if !ok {
		return missing("message", id)
	}
	st.ProductID = &productID
	l.Messages[id] = st
	return nil
}

var (
	_ balances.Store        = (*Ledger)(nil)
	_ balances.MessageStore = (*Ledger)(nil)
)
