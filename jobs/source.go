package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
)

// Source lists the aggregates a balance job visits.
type Source interface {
	// PendingPastDue returns unpaid invoices and purchase orders still marked
	// pending although their due or expected date is before today.
	PendingPastDue(ctx context.Context, today time.Time) (invoices, purchaseOrders []int64, err error)
	// AggregateIDs returns every id of the aggregate kind in ascending order.
	AggregateIDs(ctx context.Context, agg balances.Aggregate) ([]int64, error)
}

// StoreRunner opens a transaction-scoped balances.Store.
type StoreRunner interface {
	WithStore(ctx context.Context, fn func(context.Context, balances.Store) error) error
}

// PGSource implements Source with pgx.
type PGSource struct {
	pool *pgxpool.Pool
}

// NewPGSource constructs a PGSource.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

var aggregateQueries = map[balances.Aggregate]string{
	balances.AggregateInvoice:       `SELECT id FROM invoices ORDER BY id`,
	balances.AggregateEstimate:      `SELECT id FROM estimates ORDER BY id`,
	balances.AggregatePurchaseOrder: `SELECT id FROM purchase_orders ORDER BY id`,
	balances.AggregateContact:       `SELECT id FROM contacts ORDER BY id`,
}

// PendingPastDue implements Source.
func (s *PGSource) PendingPastDue(ctx context.Context, today time.Time) ([]int64, []int64, error) {
	invoices, err := s.ids(ctx, `SELECT id FROM invoices
WHERE balance > 0 AND payment_status = 'pending' AND due_date < $1::date ORDER BY id`, today)
	if err != nil {
		return nil, nil, err
	}
	orders, err := s.ids(ctx, `SELECT id FROM purchase_orders
WHERE balance > 0 AND payment_status = 'pending' AND expected_date < $1::date ORDER BY id`, today)
	if err != nil {
		return nil, nil, err
	}
	return invoices, orders, nil
}

// AggregateIDs implements Source.
func (s *PGSource) AggregateIDs(ctx context.Context, agg balances.Aggregate) ([]int64, error) {
	query, ok := aggregateQueries[agg]
	if !ok {
		return nil, fmt.Errorf("jobs: no id query for aggregate %q", agg)
	}
	return s.ids(ctx, query)
}

func (s *PGSource) ids(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.MapError(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, db.MapError(err)
	}
	return ids, nil
}
