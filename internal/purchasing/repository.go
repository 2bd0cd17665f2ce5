package purchasing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Balances() balances.Store

	GetPurchaseOrder(ctx context.Context, id int64) (*PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, req ListPurchaseOrdersRequest) ([]PurchaseOrder, int, error)
	// CreatePurchaseOrder returns shared.ErrCodeTaken when the po uid exists.
	CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	UpdatePurchaseOrder(ctx context.Context, id int64, updates map[string]any) error
	DeletePurchaseOrder(ctx context.Context, id int64) error

	GetLine(ctx context.Context, id int64) (*Line, error)
	ListLines(ctx context.Context, purchaseOrderID int64) ([]Line, error)
	CreateLine(ctx context.Context, line Line) (int64, error)
	UpdateLine(ctx context.Context, id int64, updates map[string]any) error
	DeleteLine(ctx context.Context, id int64) error

	GetPayment(ctx context.Context, id int64) (*VendorPayment, error)
	ListPayments(ctx context.Context, req ListVendorPaymentsRequest) ([]VendorPayment, int, error)
	CreatePayment(ctx context.Context, p VendorPayment) (int64, error)
	DeletePayment(ctx context.Context, id int64) error
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) Balances() balances.Store {
	return balances.NewPGStore(r.db)
}

func notFound(kind string, id int64, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", httpx.ErrNotFound, kind, id)
	}
	return db.MapError(err)
}

func execOne(ctx context.Context, q db.DBTX, kind string, id int64, sql string, args ...any) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %d", httpx.ErrNotFound, kind, id)
	}
	return nil
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conditions, " AND ")
}

// ---- purchase orders ----

const poColumns = `p.id, p.po_uid, p.contact_id, c.name, p.order_date, p.expected_date,
	p.total_amount, p.total_paid, p.balance, p.payment_status, p.product_count, p.notes,
	COALESCE(p.created_by, 0), p.created_at, p.updated_at`

const poFrom = `FROM purchase_orders p JOIN contacts c ON c.id = p.contact_id`

func scanPurchaseOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.POUID, &po.ContactID, &po.ContactName, &po.OrderDate, &po.ExpectedDate,
		&po.TotalAmount, &po.TotalPaid, &po.Balance, &status, &po.ProductCount, &po.Notes,
		&po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	po.PaymentStatus = balances.PaymentStatus(status)
	return po, err
}

func (r *repository) GetPurchaseOrder(ctx context.Context, id int64) (*PurchaseOrder, error) {
	po, err := scanPurchaseOrder(r.db.QueryRow(ctx, `SELECT `+poColumns+` `+poFrom+` WHERE p.id=$1`, id))
	if err != nil {
		return nil, notFound("purchase order", id, err)
	}
	return &po, nil
}

func (r *repository) ListPurchaseOrders(ctx context.Context, req ListPurchaseOrdersRequest) ([]PurchaseOrder, int, error) {
	var conditions []string
	var args []any
	if req.ContactID > 0 {
		args = append(args, req.ContactID)
		conditions = append(conditions, fmt.Sprintf("p.contact_id = $%d", len(args)))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		conditions = append(conditions, fmt.Sprintf("p.payment_status = $%d", len(args)))
	}
	where := whereClause(conditions)

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM purchase_orders p "+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	page := req.Page.Normalized()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s %s %s ORDER BY p.order_date DESC, p.id DESC LIMIT $%d OFFSET $%d`,
		poColumns, poFrom, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, po)
	}
	return out, total, rows.Err()
}

func (r *repository) CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO purchase_orders (po_uid, contact_id, order_date, expected_date, notes, payment_status, created_by)
VALUES ($1, $2, $3, $4, $5, 'pending', NULLIF($6, 0))
ON CONFLICT (po_uid) DO NOTHING
RETURNING id`, po.POUID, po.ContactID, po.OrderDate, po.ExpectedDate, po.Notes, po.CreatedBy).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrCodeTaken
	}
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

var poUpdatable = map[string]struct{}{
	"contact_id": {}, "order_date": {}, "expected_date": {}, "notes": {},
}

func (r *repository) UpdatePurchaseOrder(ctx context.Context, id int64, updates map[string]any) error {
	set, args, err := db.BuildSet(updates, poUpdatable)
	if err != nil {
		return err
	}
	args = append(args, id)
	return execOne(ctx, r.db, "purchase order", id, fmt.Sprintf("UPDATE purchase_orders SET %s, updated_at=NOW() WHERE id=$%d", set, len(args)), args...)
}

func (r *repository) DeletePurchaseOrder(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "purchase order", id, `DELETE FROM purchase_orders WHERE id=$1`, id)
}

// ---- lines ----

const lineColumns = `id, purchase_order_id, product_id, description, quantity, unit_cost, line_total, created_at`

func scanLine(row pgx.Row) (Line, error) {
	var l Line
	err := row.Scan(&l.ID, &l.PurchaseOrderID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitCost, &l.LineTotal, &l.CreatedAt)
	return l, err
}

func (r *repository) GetLine(ctx context.Context, id int64) (*Line, error) {
	l, err := scanLine(r.db.QueryRow(ctx, `SELECT `+lineColumns+` FROM purchase_order_lines WHERE id=$1`, id))
	if err != nil {
		return nil, notFound("purchase order line", id, err)
	}
	return &l, nil
}

func (r *repository) ListLines(ctx context.Context, purchaseOrderID int64) ([]Line, error) {
	rows, err := r.db.Query(ctx, `SELECT `+lineColumns+` FROM purchase_order_lines WHERE purchase_order_id=$1 ORDER BY id`, purchaseOrderID)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	var out []Line
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) CreateLine(ctx context.Context, l Line) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO purchase_order_lines (purchase_order_id, product_id, description, quantity, unit_cost, line_total)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		l.PurchaseOrderID, l.ProductID, l.Description, l.Quantity, l.UnitCost, l.LineTotal).Scan(&id)
	return id, db.MapError(err)
}

var lineUpdatable = map[string]struct{}{
	"product_id": {}, "description": {}, "quantity": {}, "unit_cost": {}, "line_total": {},
}

func (r *repository) UpdateLine(ctx context.Context, id int64, updates map[string]any) error {
	set, args, err := db.BuildSet(updates, lineUpdatable)
	if err != nil {
		return err
	}
	args = append(args, id)
	return execOne(ctx, r.db, "purchase order line", id, fmt.Sprintf("UPDATE purchase_order_lines SET %s WHERE id=$%d", set, len(args)), args...)
}

func (r *repository) DeleteLine(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "purchase order line", id, `DELETE FROM purchase_order_lines WHERE id=$1`, id)
}

// ---- vendor payments ----

const paymentColumns = `id, purchase_order_id, contact_id, amount, payment_date, method, reference, notes, created_at`

func scanPayment(row pgx.Row) (VendorPayment, error) {
	var p VendorPayment
	err := row.Scan(&p.ID, &p.PurchaseOrderID, &p.ContactID, &p.Amount, &p.PaymentDate, &p.Method, &p.Reference, &p.Notes, &p.CreatedAt)
	return p, err
}

func (r *repository) GetPayment(ctx context.Context, id int64) (*VendorPayment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM vendor_payments WHERE id=$1`, id))
	if err != nil {
		return nil, notFound("vendor payment", id, err)
	}
	return &p, nil
}

func (r *repository) ListPayments(ctx context.Context, req ListVendorPaymentsRequest) ([]VendorPayment, int, error) {
	var conditions []string
	var args []any
	if req.PurchaseOrderID > 0 {
		args = append(args, req.PurchaseOrderID)
		conditions = append(conditions, fmt.Sprintf("purchase_order_id = $%d", len(args)))
	}
	if req.ContactID > 0 {
		args = append(args, req.ContactID)
		conditions = append(conditions, fmt.Sprintf("contact_id = $%d", len(args)))
	}
	where := whereClause(conditions)

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM vendor_payments "+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	page := req.Page.Normalized()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM vendor_payments %s ORDER BY payment_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var out []VendorPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repository) CreatePayment(ctx context.Context, p VendorPayment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO vendor_payments (purchase_order_id, contact_id, amount, payment_date, method, reference, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.PurchaseOrderID, p.ContactID, p.Amount, p.PaymentDate, p.Method, p.Reference, p.Notes).Scan(&id)
	return id, db.MapError(err)
}

func (r *repository) DeletePayment(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "vendor payment", id, `DELETE FROM vendor_payments WHERE id=$1`, id)
}
