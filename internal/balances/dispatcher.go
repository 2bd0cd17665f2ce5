package balances

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

// Rule reacts to one change event. Rules only have side effects.
type Rule struct {
	Name  string
	Apply func(ctx context.Context, store Store, ev Event) error
}

type recomputeFunc func(ctx context.Context, store Store, id int64) (Outcome, error)

// Dispatcher routes change events to recompute rules and fans out to parent
// aggregates when a recompute changes a balance.
type Dispatcher struct {
	recompute Recomputer
	routes    map[Table][]Rule
	parents   map[Aggregate]Table
	logger    *slog.Logger
	metrics   *Metrics
	committed []func(context.Context)
}

// NewDispatcher builds the routing table over recompute.
func NewDispatcher(recompute Recomputer, logger *slog.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		recompute: recompute,
		logger:    logger,
		metrics:   metrics,
		parents: map[Aggregate]Table{
			AggregateInvoice:       TableInvoices,
			AggregatePurchaseOrder: TablePurchaseOrders,
			AggregateContact:       TableContacts,
		},
	}

	invoice := d.tracked(AggregateInvoice, recompute.RecomputeInvoice)
	estimate := d.tracked(AggregateEstimate, recompute.RecomputeEstimate)
	purchaseOrder := d.tracked(AggregatePurchaseOrder, recompute.RecomputePurchaseOrder)
	contact := d.tracked(AggregateContact, recompute.RecomputeContactBalance)
	net := d.tracked(AggregateContactNet, recompute.RecomputeNetBalance)

	contactRules := []Rule{d.netBalanceRule(net)}
	d.routes = map[Table][]Rule{
		TableInvoiceLineItems:   {d.childRule("invoice totals", invoice, "invoiceId")},
		TableCustomerPayments:   {d.childRule("invoice totals", invoice, "invoiceId")},
		TableCustomerCredits:    {d.childRule("invoice totals", invoice, "invoiceId"), d.childRule("estimate totals", estimate, "estimateId")},
		TableEstimateLineItems:  {d.childRule("estimate totals", estimate, "estimateId")},
		TablePurchaseOrderLines: {d.childRule("purchase order totals", purchaseOrder, "purchaseOrderId")},
		TableVendorPayments:     {d.childRule("purchase order totals", purchaseOrder, "purchaseOrderId")},
		TableInvoices:           {d.documentRule("contact customer balance", contact)},
		TablePurchaseOrders:     {d.documentRule("contact vendor balance", contact)},
		TableContacts:           contactRules,
		TableAccounts:           contactRules,
		TableMessages:           {messageLinkRule()},
	}
	return d
}

// OnCommit registers fn to run after every successful WithRetry call, i.e.
// after a mutation and its recompute chain committed.
func (d *Dispatcher) OnCommit(fn func(context.Context)) {
	d.committed = append(d.committed, fn)
}

// Routes returns the rule names registered for table.
func (d *Dispatcher) Routes(table Table) []string {
	rules := d.routes[table]
	names := make([]string, 0, len(rules))
	for _, rule := range rules {
		names = append(names, rule.Name)
	}
	return names
}

// Dispatch applies every rule routed from ev.Table. The first failing rule
// aborts dispatch and its error is returned wrapped in ErrRecomputeFailure.
func (d *Dispatcher) Dispatch(ctx context.Context, store Store, ev Event) error {
	if !ev.Op.Valid() {
		return fmt.Errorf("%w: unknown operation %q", httpx.ErrValidation, ev.Op)
	}
	rules := d.routes[ev.Table]
	if len(rules) == 0 {
		d.logger.Debug("no balance rules for table", slog.String("table", string(ev.Table)))
		return nil
	}
	d.logger.Debug("dispatch change", slog.String("event", ev.String()))
	for _, rule := range rules {
		if err := rule.Apply(ctx, store, ev); err != nil {
			if errors.Is(err, httpx.ErrRecomputeFailure) {
				return err
			}
			return fmt.Errorf("%w: %s on %s: %w", httpx.ErrRecomputeFailure, rule.Name, ev, err)
		}
	}
	return nil
}

// RecomputeInvoice recomputes one invoice outside of a child event, for
// example after its due date changed, and fans out if its balance moved.
func (d *Dispatcher) RecomputeInvoice(ctx context.Context, store Store, id int64) error {
	return d.touch(ctx, store, AggregateInvoice, id, d.recompute.RecomputeInvoice)
}

// RecomputePurchaseOrder is RecomputeInvoice for purchase orders.
func (d *Dispatcher) RecomputePurchaseOrder(ctx context.Context, store Store, id int64) error {
	return d.touch(ctx, store, AggregatePurchaseOrder, id, d.recompute.RecomputePurchaseOrder)
}

// RecomputeEstimate recomputes one estimate.
func (d *Dispatcher) RecomputeEstimate(ctx context.Context, store Store, id int64) error {
	return d.touch(ctx, store, AggregateEstimate, id, d.recompute.RecomputeEstimate)
}

// RecomputeContact recomputes one contact's balances.
func (d *Dispatcher) RecomputeContact(ctx context.Context, store Store, id int64) error {
	return d.touch(ctx, store, AggregateContact, id, d.recompute.RecomputeContactBalance)
}

func (d *Dispatcher) touch(ctx context.Context, store Store, agg Aggregate, id int64, fn recomputeFunc) error {
	out, err := d.tracked(agg, fn)(ctx, store, id)
	if err != nil {
		return fmt.Errorf("%w: %s %d: %w", httpx.ErrRecomputeFailure, agg, id, err)
	}
	return d.cascade(ctx, store, out)
}

func (d *Dispatcher) tracked(agg Aggregate, fn recomputeFunc) recomputeFunc {
	return func(ctx context.Context, store Store, id int64) (Outcome, error) {
		out, err := fn(ctx, store, id)
		d.metrics.observe(agg, out, err)
		return out, err
	}
}

// cascade re-enters the dispatcher for the parent aggregate, but only when
// the balance actually moved.
func (d *Dispatcher) cascade(ctx context.Context, store Store, out Outcome) error {
	if !out.BalanceChanged {
		return nil
	}
	parent, ok := d.parents[out.Aggregate]
	if !ok {
		return nil
	}
	d.logger.Debug("cascade balance change",
		slog.String("aggregate", string(out.Aggregate)),
		slog.Int64("id", out.ID),
		slog.String("parent", string(parent)))
	return d.Dispatch(ctx, store, Event{
		Table:  parent,
		ID:     out.ID,
		Op:     OpUpdate,
		Row:    out.Row,
		OldRow: out.OldRow,
	})
}

// childRule recomputes the parent referenced by fkKeys. INSERT and UPDATE read
// the new row, DELETE the old one; an UPDATE that moved the child recomputes
// both parents.
func (d *Dispatcher) childRule(name string, fn recomputeFunc, fkKeys ...string) Rule {
	return Rule{
		Name: name,
		Apply: func(ctx context.Context, store Store, ev Event) error {
			for _, id := range parentIDs(ev, fkKeys...) {
				out, err := fn(ctx, store, id)
				if err != nil {
					if ev.Op == OpDelete && errors.Is(err, httpx.ErrNotFound) {
						continue
					}
					return err
				}
				if err := d.cascade(ctx, store, out); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// documentRule recomputes the owning contact of an invoice or purchase order.
// INSERT and DELETE always apply; UPDATE only when the balance or the owning
// contact changed.
func (d *Dispatcher) documentRule(name string, fn recomputeFunc) Rule {
	return Rule{
		Name: name,
		Apply: func(ctx context.Context, store Store, ev Event) error {
			if ev.Op == OpUpdate {
				newContact, _ := ev.Row.Int64(contactKeys...)
				oldContact, _ := ev.OldRow.Int64(contactKeys...)
				if newContact == oldContact && !decimalChanged(ev.Row, ev.OldRow, "balance") {
					return nil
				}
			}
			for _, id := range parentIDs(ev, contactKeys...) {
				out, err := fn(ctx, store, id)
				if err != nil {
					if ev.Op == OpDelete && errors.Is(err, httpx.ErrNotFound) {
						continue
					}
					return err
				}
				if err := d.cascade(ctx, store, out); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// netBalanceRule re-derives a contact's net balance when its customer or
// vendor balance changed.
func (d *Dispatcher) netBalanceRule(fn recomputeFunc) Rule {
	return Rule{
		Name: "contact net balance",
		Apply: func(ctx context.Context, store Store, ev Event) error {
			if ev.Op != OpUpdate || ev.ID <= 0 {
				return nil
			}
			if !decimalChanged(ev.Row, ev.OldRow, "customerBalance") && !decimalChanged(ev.Row, ev.OldRow, "vendorBalance") {
				return nil
			}
			_, err := fn(ctx, store, ev.ID)
			return err
		},
	}
}

var contactKeys = []string{"contactId", "accountId"}

func parentIDs(ev Event, keys ...string) []int64 {
	primary, fallback := ev.Row, ev.OldRow
	if ev.Op == OpDelete {
		primary, fallback = ev.OldRow, ev.Row
	}
	id, ok := primary.Int64(keys...)
	if !ok {
		id, ok = fallback.Int64(keys...)
	}
	if !ok {
		return nil
	}
	ids := []int64{id}
	if ev.Op == OpUpdate {
		if old, ok := ev.OldRow.Int64(keys...); ok && old != id {
			ids = append(ids, old)
		}
	}
	return ids
}
