// Package balances keeps denormalised financial aggregates (invoice, estimate
// and purchase order totals, contact balances) consistent with their child
// rows. Change events are routed through a static table of rules to
// recompute functions that rebuild each aggregate from current state.
package balances

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Table names a source of change events.
type Table string

// Tables that produce change events.
const (
	TableInvoiceLineItems   Table = "invoice_line_items"
	TableCustomerPayments   Table = "customer_payments"
	TableCustomerCredits    Table = "customer_credits"
	TableEstimateLineItems  Table = "estimate_line_items"
	TablePurchaseOrderLines Table = "purchase_order_lines"
	TableVendorPayments     Table = "vendor_payments"
	TableInvoices           Table = "invoices"
	TablePurchaseOrders     Table = "purchase_orders"
	TableContacts           Table = "contacts"
	// TableAccounts is the legacy name of TableContacts.
	TableAccounts Table = "accounts"
	TableMessages Table = "messages"
)

// Op is the kind of row change.
type Op string

// Row change kinds.
const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Valid reports whether op is a known operation.
func (o Op) Valid() bool {
	return o == OpInsert || o == OpUpdate || o == OpDelete
}

// Event is a change notification for a single row.
type Event struct {
	Table  Table
	ID     int64
	Op     Op
	Row    Row
	OldRow Row
}

func (e Event) String() string {
	return fmt.Sprintf("%s %d %s", e.Table, e.ID, e.Op)
}

// Row carries column values keyed by camelCase field name.
type Row map[string]any

// Int64 returns the first positive integer found under keys.
func (r Row) Int64(keys ...string) (int64, bool) {
	for _, key := range keys {
		raw, ok := r[key]
		if !ok || raw == nil {
			continue
		}
		if v, ok := toInt64(raw); ok && v > 0 {
			return v, true
		}
	}
	return 0, false
}

// Decimal returns the value under key as a decimal.
func (r Row) Decimal(key string) (decimal.Decimal, bool) {
	raw, ok := r[key]
	if !ok || raw == nil {
		return decimal.Zero, false
	}
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	}
	return decimal.Zero, false
}

func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// decimalChanged compares key across rows. Absent on both sides is unchanged.
func decimalChanged(row, old Row, key string) bool {
	a, okA := row.Decimal(key)
	b, okB := old.Decimal(key)
	if okA != okB {
		return true
	}
	return okA && !a.Equal(b)
}
