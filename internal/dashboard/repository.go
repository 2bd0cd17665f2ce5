package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
)

type repository struct {
	db db.DBTX
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) ContactTotals(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	var receivables, payables decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(customer_balance), 0), COALESCE(SUM(vendor_balance), 0) FROM contacts`).
		Scan(&receivables, &payables)
	return receivables, payables, db.MapError(err)
}

func (r *repository) OverdueInvoices(ctx context.Context) (int, decimal.Decimal, error) {
	var count int
	var amount decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(balance), 0) FROM invoices WHERE payment_status='overdue'`).
		Scan(&count, &amount)
	return count, amount, db.MapError(err)
}

func (r *repository) OpenEstimates(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM estimates WHERE status IN ('draft', 'sent') AND NOT converted_to_invoice`).Scan(&count)
	return count, db.MapError(err)
}

func (r *repository) RevenueBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM customer_payments
WHERE status='approved' AND payment_date >= $1 AND payment_date < $2`, from, to).Scan(&sum)
	return sum, db.MapError(err)
}

func (r *repository) ExpensesBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE expense_date >= $1 AND expense_date < $2`, from, to).Scan(&sum)
	return sum, db.MapError(err)
}

func (r *repository) LowStockProducts(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE is_active AND stock_quantity <= reorder_level`).Scan(&count)
	return count, db.MapError(err)
}
