package balances

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// Aggregate names a recomputable summary.
type Aggregate string

// Aggregates maintained by the recalculator.
const (
	AggregateInvoice       Aggregate = "invoice"
	AggregateEstimate      Aggregate = "estimate"
	AggregatePurchaseOrder Aggregate = "purchase_order"
	AggregateContact       Aggregate = "contact"
	AggregateContactNet    Aggregate = "contact_net"
)

// Outcome describes the effect of one recompute.
type Outcome struct {
	Aggregate Aggregate
	ID        int64
	ContactID int64
	// Changed is set when any stored field was rewritten.
	Changed bool
	// BalanceChanged gates fan-out to the parent aggregate.
	BalanceChanged bool
	// Row and OldRow hold the parent-relevant columns after and before.
	Row    Row
	OldRow Row
}

// Recomputer rebuilds aggregates from the rows visible through a Store.
type Recomputer interface {
	RecomputeInvoice(ctx context.Context, store Store, id int64) (Outcome, error)
	RecomputeEstimate(ctx context.Context, store Store, id int64) (Outcome, error)
	RecomputePurchaseOrder(ctx context.Context, store Store, id int64) (Outcome, error)
	RecomputeContactBalance(ctx context.Context, store Store, id int64) (Outcome, error)
	RecomputeNetBalance(ctx context.Context, store Store, id int64) (Outcome, error)
}

// Recalculator is the default Recomputer.
type Recalculator struct {
	now func() time.Time
}

// NewRecalculator constructs a Recalculator. A nil clock uses time.Now.
func NewRecalculator(now func() time.Time) *Recalculator {
	if now == nil {
		now = time.Now
	}
	return &Recalculator{now: now}
}

// RecomputeInvoice rebuilds totals, balance and payment status of an invoice.
func (r *Recalculator) RecomputeInvoice(ctx context.Context, store Store, id int64) (Outcome, error) {
	cur, err := store.LockInvoice(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	sums, err := store.SumInvoice(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	next := cur
	next.TotalAmount = shared.RoundMoney(sums.Lines)
	next.TotalPaid = shared.RoundMoney(sums.ApprovedPayments)
	next.TotalCredits = shared.RoundMoney(sums.Credits)
	next.Balance = shared.RoundMoney(next.TotalAmount.Sub(next.TotalPaid).Sub(next.TotalCredits))
	next.PaymentStatus = DeriveStatus(next.TotalAmount, next.TotalPaid, next.TotalCredits, next.Balance, cur.DueDate, r.now())

	out := Outcome{
		Aggregate:      AggregateInvoice,
		ID:             id,
		ContactID:      cur.ContactID,
		BalanceChanged: !cur.Balance.Equal(next.Balance),
		Row:            Row{"contactId": cur.ContactID, "balance": next.Balance.StringFixed(shared.MoneyScale)},
		OldRow:         Row{"contactId": cur.ContactID, "balance": cur.Balance.StringFixed(shared.MoneyScale)},
	}
	if cur.equal(next) {
		return out, nil
	}
	if err := store.SaveInvoice(ctx, id, next); err != nil {
		return Outcome{}, err
	}
	out.Changed = true
	return out, nil
}

// RecomputeEstimate rebuilds totals and balance of an estimate.
func (r *Recalculator) RecomputeEstimate(ctx context.Context, store Store, id int64) (Outcome, error) {
	cur, err := store.LockEstimate(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	sums, err := store.SumEstimate(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	next := cur
	next.TotalAmount = shared.RoundMoney(sums.Lines)
	next.TotalCredits = shared.RoundMoney(sums.Credits)
	next.Balance = shared.RoundMoney(next.TotalAmount.Sub(next.TotalCredits))

	out := Outcome{
		Aggregate:      AggregateEstimate,
		ID:             id,
		ContactID:      cur.ContactID,
		BalanceChanged: !cur.Balance.Equal(next.Balance),
	}
	if cur.equal(next) {
		return out, nil
	}
	if err := store.SaveEstimate(ctx, id, next); err != nil {
		return Outcome{}, err
	}
	out.Changed = true
	return out, nil
}

// RecomputePurchaseOrder rebuilds totals, balance, status and line count of a PO.
func (r *Recalculator) RecomputePurchaseOrder(ctx context.Context, store Store, id int64) (Outcome, error) {
	cur, err := store.LockPurchaseOrder(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	sums, err := store.SumPurchaseOrder(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	next := cur
	next.TotalAmount = shared.RoundMoney(sums.Lines)
	next.TotalPaid = shared.RoundMoney(sums.Payments)
	next.Balance = shared.RoundMoney(next.TotalAmount.Sub(next.TotalPaid))
	next.ProductCount = sums.LineCount
	next.PaymentStatus = DeriveStatus(next.TotalAmount, next.TotalPaid, decimal.Zero, next.Balance, cur.ExpectedDate, r.now())

	out := Outcome{
		Aggregate:      AggregatePurchaseOrder,
		ID:             id,
		ContactID:      cur.ContactID,
		BalanceChanged: !cur.Balance.Equal(next.Balance),
		Row:            Row{"contactId": cur.ContactID, "balance": next.Balance.StringFixed(shared.MoneyScale)},
		OldRow:         Row{"contactId": cur.ContactID, "balance": cur.Balance.StringFixed(shared.MoneyScale)},
	}
	if cur.equal(next) {
		return out, nil
	}
	if err := store.SavePurchaseOrder(ctx, id, next); err != nil {
		return Outcome{}, err
	}
	out.Changed = true
	return out, nil
}

// RecomputeContactBalance sums invoice and PO balances of a contact and
// derives the net balance.
func (r *Recalculator) RecomputeContactBalance(ctx context.Context, store Store, id int64) (Outcome, error) {
	cur, err := store.LockContact(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	sums, err := store.SumContact(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	next := ContactState{
		CustomerBalance: shared.RoundMoney(sums.Receivable),
		VendorBalance:   shared.RoundMoney(sums.Payable),
	}
	next.NetBalance = next.CustomerBalance.Sub(next.VendorBalance)
	return r.saveContact(ctx, store, AggregateContact, id, cur, next)
}

// RecomputeNetBalance re-derives net balance from the stored customer and
// vendor balances.
func (r *Recalculator) RecomputeNetBalance(ctx context.Context, store Store, id int64) (Outcome, error) {
	cur, err := store.LockContact(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	next := cur
	next.NetBalance = shared.RoundMoney(cur.CustomerBalance.Sub(cur.VendorBalance))
	return r.saveContact(ctx, store, AggregateContactNet, id, cur, next)
}

func (r *Recalculator) saveContact(ctx context.Context, store Store, agg Aggregate, id int64, cur, next ContactState) (Outcome, error) {
	out := Outcome{
		Aggregate: agg,
		ID:        id,
		ContactID: id,
		BalanceChanged: !cur.CustomerBalance.Equal(next.CustomerBalance) ||
			!cur.VendorBalance.Equal(next.VendorBalance),
		Row:    contactRow(next),
		OldRow: contactRow(cur),
	}
	if cur.CustomerBalance.Equal(next.CustomerBalance) &&
		cur.VendorBalance.Equal(next.VendorBalance) &&
		cur.NetBalance.Equal(next.NetBalance) {
		return out, nil
	}
	if err := store.SaveContact(ctx, id, next); err != nil {
		return Outcome{}, err
	}
	out.Changed = true
	return out, nil
}

func contactRow(s ContactState) Row {
	return Row{
		"customerBalance": s.CustomerBalance.StringFixed(shared.MoneyScale),
		"vendorBalance":   s.VendorBalance.StringFixed(shared.MoneyScale),
		"netBalance":      s.NetBalance.StringFixed(shared.MoneyScale),
	}
}

var _ Recomputer = (*Recalculator)(nil)
