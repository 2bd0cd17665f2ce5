package balances

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

// PGStore implements Store on a pgx transaction. Locks use SELECT ... FOR
// UPDATE and are released when the transaction ends.
type PGStore struct {
	db db.DBTX
}

// NewPGStore binds the store to q, which should be a transaction.
func NewPGStore(q db.DBTX) *PGStore {
	return &PGStore{db: q}
}

// PGRunner opens one RepeatableRead transaction per WithStore call.
type PGRunner struct {
	pool *pgxpool.Pool
}

// NewPGRunner constructs a PGRunner over pool.
func NewPGRunner(pool *pgxpool.Pool) *PGRunner {
	return &PGRunner{pool: pool}
}

// WithStore runs fn with a PGStore bound to a fresh transaction, committing
// when fn returns nil.
func (p *PGRunner) WithStore(ctx context.Context, fn func(context.Context, Store) error) error {
	return db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewPGStore(tx))
	})
}

func notFound(kind string, id int64, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", httpx.ErrNotFound, kind, id)
	}
	return db.MapError(err)
}

func datePtr(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

// LockInvoice implements Store.
func (s *PGStore) LockInvoice(ctx context.Context, id int64) (InvoiceState, error) {
	var st InvoiceState
	var due pgtype.Date
	var status string
	err := s.db.QueryRow(ctx, `SELECT contact_id, due_date, total_amount, total_paid, total_credits, balance, payment_status
FROM invoices WHERE id=$1 FOR UPDATE`, id).Scan(&st.ContactID, &due, &st.TotalAmount, &st.TotalPaid, &st.TotalCredits, &st.Balance, &status)
	if err != nil {
		return InvoiceState{}, notFound("invoice", id, err)
	}
	st.DueDate = datePtr(due)
	st.PaymentStatus = PaymentStatus(status)
	return st, nil
}

// SumInvoice implements Store.
func (s *PGStore) SumInvoice(ctx context.Context, id int64) (InvoiceSums, error) {
	var sums InvoiceSums
	err := s.db.QueryRow(ctx, `SELECT
	COALESCE((SELECT SUM(line_total) FROM invoice_line_items WHERE invoice_id=$1), 0),
	COALESCE((SELECT SUM(amount) FROM customer_payments WHERE invoice_id=$1 AND status='approved'), 0),
	COALESCE((SELECT SUM(amount) FROM customer_credits WHERE invoice_id=$1), 0)`, id).
		Scan(&sums.Lines, &sums.ApprovedPayments, &sums.Credits)
	if err != nil {
		return InvoiceSums{}, db.MapError(err)
	}
	return sums, nil
}

// SaveInvoice implements Store.
func (s *PGStore) SaveInvoice(ctx context.Context, id int64, st InvoiceState) error {
	_, err := s.db.Exec(ctx, `UPDATE invoices
SET total_amount=$2, total_paid=$3, total_credits=$4, balance=$5, payment_status=$6, updated_at=NOW()
WHERE id=$1`, id, st.TotalAmount, st.TotalPaid, st.TotalCredits, st.Balance, string(st.PaymentStatus))
	return db.MapError(err)
}

// LockEstimate implements Store.
func (s *PGStore) LockEstimate(ctx context.Context, id int64) (EstimateState, error) {
	var st EstimateState
	err := s.db.QueryRow(ctx, `SELECT contact_id, total_amount, total_credits, balance
FROM estimates WHERE id=$1 FOR UPDATE`, id).Scan(&st.ContactID, &st.TotalAmount, &st.TotalCredits, &st.Balance)
	if err != nil {
		return EstimateState{}, notFound("estimate", id, err)
	}
	return st, nil
}

// SumEstimate implements Store.
func (s *PGStore) SumEstimate(ctx context.Context, id int64) (EstimateSums, error) {
	var sums EstimateSums
	err := s.db.QueryRow(ctx, `SELECT
	COALESCE((SELECT SUM(line_total) FROM estimate_line_items WHERE estimate_id=$1), 0),
	COALESCE((SELECT SUM(amount) FROM customer_credits WHERE estimate_id=$1), 0)`, id).
		Scan(&sums.Lines, &sums.Credits)
	if err != nil {
		return EstimateSums{}, db.MapError(err)
	}
	return sums, nil
}

// SaveEstimate implements Store.
func (s *PGStore) SaveEstimate(ctx context.Context, id int64, st EstimateState) error {
	_, err := s.db.Exec(ctx, `UPDATE estimates
SET total_amount=$2, total_credits=$3, balance=$4, updated_at=NOW()
WHERE id=$1`, id, st.TotalAmount, st.TotalCredits, st.Balance)
	return db.MapError(err)
}

// LockPurchaseOrder implements Store.
func (s *PGStore) LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrderState, error) {
	var st PurchaseOrderState
	var expected pgtype.Date
	var status string
	err := s.db.QueryRow(ctx, `SELECT contact_id, expected_date, total_amount, total_paid, balance, payment_status, product_count
FROM purchase_orders WHERE id=$1 FOR UPDATE`, id).Scan(&st.ContactID, &expected, &st.TotalAmount, &st.TotalPaid, &st.Balance, &status, &st.ProductCount)
	if err != nil {
		return PurchaseOrderState{}, notFound("purchase order", id, err)
	}
	st.ExpectedDate = datePtr(expected)
	st.PaymentStatus = PaymentStatus(status)
	return st, nil
}

// SumPurchaseOrder implements Store.
func (s *PGStore) SumPurchaseOrder(ctx context.Context, id int64) (PurchaseOrderSums, error) {
	var sums PurchaseOrderSums
	err := s.db.QueryRow(ctx, `SELECT
	COALESCE((SELECT SUM(line_total) FROM purchase_order_lines WHERE purchase_order_id=$1), 0),
	COALESCE((SELECT SUM(amount) FROM vendor_payments WHERE purchase_order_id=$1), 0),
	(SELECT COUNT(*) FROM purchase_order_lines WHERE purchase_order_id=$1)`, id).
		Scan(&sums.Lines, &sums.Payments, &sums.LineCount)
	if err != nil {
		return PurchaseOrderSums{}, db.MapError(err)
	}
	return sums, nil
}

// SavePurchaseOrder implements Store.
func (s *PGStore) SavePurchaseOrder(ctx context.Context, id int64, st PurchaseOrderState) error {
	_, err := s.db.Exec(ctx, `UPDATE purchase_orders
SET total_amount=$2, total_paid=$3, balance=$4, payment_status=$5, product_count=$6, updated_at=NOW()
WHERE id=$1`, id, st.TotalAmount, st.TotalPaid, st.Balance, string(st.PaymentStatus), st.ProductCount)
	return db.MapError(err)
}

// LockContact implements Store.
func (s *PGStore) LockContact(ctx context.Context, id int64) (ContactState, error) {
	var st ContactState
	err := s.db.QueryRow(ctx, `SELECT customer_balance, vendor_balance, net_balance
FROM contacts WHERE id=$1 FOR UPDATE`, id).Scan(&st.CustomerBalance, &st.VendorBalance, &st.NetBalance)
	if err != nil {
		return ContactState{}, notFound("contact", id, err)
	}
	return st, nil
}

// SumContact implements Store.
func (s *PGStore) SumContact(ctx context.Context, id int64) (ContactSums, error) {
	var sums ContactSums
	err := s.db.QueryRow(ctx, `SELECT
	COALESCE((SELECT SUM(balance) FROM invoices WHERE contact_id=$1), 0),
	COALESCE((SELECT SUM(balance) FROM purchase_orders WHERE contact_id=$1), 0)`, id).
		Scan(&sums.Receivable, &sums.Payable)
	if err != nil {
		return ContactSums{}, db.MapError(err)
	}
	return sums, nil
}

// SaveContact implements Store.
func (s *PGStore) SaveContact(ctx context.Context, id int64, st ContactState) error {
	_, err := s.db.Exec(ctx, `UPDATE contacts
SET customer_balance=$2, vendor_balance=$3, net_balance=$4, updated_at=NOW()
WHERE id=$1`, id, st.CustomerBalance, st.VendorBalance, st.NetBalance)
	return db.MapError(err)
}

var (
	_ Store        = (*PGStore)(nil)
	_ MessageStore = (*PGStore)(nil)
)

// LockMessage implements MessageStore.
func (s *PGStore) LockMessage(ctx context.Context, id int64) (MessageState, error) {
	var st MessageState
	err := s.db.QueryRow(ctx, `SELECT product_id, extracted_data FROM messages WHERE id=$1 FOR UPDATE`, id).
		Scan(&st.ProductID, &st.ExtractedData)
	if err != nil {
		return MessageState{}, notFound("message", id, err)
	}
	return st, nil
}

// ProductBySKU implements MessageStore.
func (s *PGStore) ProductBySKU(ctx context.Context, sku string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `SELECT id FROM products WHERE lower(sku) = lower($1) ORDER BY id LIMIT 1`, sku).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: product sku %q", httpx.ErrNotFound, sku)
	}
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

// ProductExists implements MessageStore.
func (s *PGStore) ProductExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id=$1)`, id).Scan(&ok); err != nil {
		return false, db.MapError(err)
	}
	return ok, nil
}

// SaveMessageProduct implements MessageStore.
func (s *PGStore) SaveMessageProduct(ctx context.Context, id, productID int64) error {
	_, err := s.db.Exec(ctx, `UPDATE messages SET product_id=$2, updated_at=NOW() WHERE id=$1`, id, productID)
	return db.MapError(err)
}
