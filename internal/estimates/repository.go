package estimates

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

	GetEstimate(ctx context.Context, id int64) (*Estimate, error)
	// LockEstimate reads the estimate holding a row lock until the
	// transaction ends.
	LockEstimate(ctx context.Context, id int64) (*Estimate, error)
	ListEstimates(ctx context.Context, req ListEstimatesRequest) ([]Estimate, int, error)
	// CreateEstimate returns shared.ErrCodeTaken when the estimate uid exists.
	CreateEstimate(ctx context.Context, e Estimate) (int64, error)
	UpdateEstimate(ctx context.Context, id int64, updates map[string]any) error
	DeleteEstimate(ctx context.Context, id int64) error
	MarkConverted(ctx context.Context, id, invoiceID int64) error

	GetLine(ctx context.Context, id int64) (*LineItem, error)
	ListLines(ctx context.Context, estimateID int64) ([]LineItem, error)
	CreateLine(ctx context.Context, line LineItem) (int64, error)
	UpdateLine(ctx context.Context, id int64, updates map[string]any) error
	DeleteLine(ctx context.Context, id int64) error

	// CreateInvoice returns shared.ErrCodeTaken when the invoice uid exists.
	CreateInvoice(ctx context.Context, draft InvoiceDraft) (int64, error)
	CreateInvoiceLine(ctx context.Context, invoiceID int64, line LineItem) (int64, error)
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

const estimateColumns = `e.id, e.estimate_uid, e.contact_id, c.name, e.issue_date, e.expiry_date, e.status,
	e.total_amount, e.total_credits, e.balance, e.converted_to_invoice, e.invoice_id, e.notes,
	COALESCE(e.created_by, 0), e.created_at, e.updated_at`

const estimateFrom = `FROM estimates e JOIN contacts c ON c.id = e.contact_id`

func scanEstimate(row pgx.Row) (Estimate, error) {
	var e Estimate
	var status string
	err := row.Scan(&e.ID, &e.EstimateUID, &e.ContactID, &e.ContactName, &e.IssueDate, &e.ExpiryDate, &status,
		&e.TotalAmount, &e.TotalCredits, &e.Balance, &e.ConvertedToInvoice, &e.InvoiceID, &e.Notes,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	e.Status = Status(status)
	return e, err
}

func (r *repository) GetEstimate(ctx context.Context, id int64) (*Estimate, error) {
	e, err := scanEstimate(r.db.QueryRow(ctx, `SELECT `+estimateColumns+` `+estimateFrom+` WHERE e.id=$1`, id))
	if err != nil {
		return nil, notFound("estimate", id, err)
	}
	return &e, nil
}

func (r *repository) LockEstimate(ctx context.Context, id int64) (*Estimate, error) {
	e, err := scanEstimate(r.db.QueryRow(ctx, `SELECT `+estimateColumns+` `+estimateFrom+` WHERE e.id=$1 FOR UPDATE OF e`, id))
	if err != nil {
		return nil, notFound("estimate", id, err)
	}
	return &e, nil
}

func (r *repository) ListEstimates(ctx context.Context, req ListEstimatesRequest) ([]Estimate, int, error) {
	var conditions []string
	var args []any
	if req.ContactID > 0 {
		args = append(args, req.ContactID)
		conditions = append(conditions, fmt.Sprintf("e.contact_id = $%d", len(args)))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM estimates e "+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	page := req.Page.Normalized()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s %s %s ORDER BY e.issue_date DESC, e.id DESC LIMIT $%d OFFSET $%d`,
		estimateColumns, estimateFrom, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var out []Estimate
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *repository) CreateEstimate(ctx context.Context, e Estimate) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO estimates (estimate_uid, contact_id, issue_date, expiry_date, status, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0))
ON CONFLICT (estimate_uid) DO NOTHING
RETURNING id`, e.EstimateUID, e.ContactID, e.IssueDate, e.ExpiryDate, string(e.Status), e.Notes, e.CreatedBy).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrCodeTaken
	}
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

var estimateUpdatable = map[string]struct{}{
	"contact_id": {}, "issue_date": {}, "expiry_date": {}, "status": {}, "notes": {},
}

func (r *repository) UpdateEstimate(ctx context.Context, id int64, updates map[string]any) error {
	set, args, err := db.BuildSet(updates, estimateUpdatable)
	if err != nil {
		return err
	}
	args = append(args, id)
	return execOne(ctx, r.db, "estimate", id, fmt.Sprintf("UPDATE estimates SET %s, updated_at=NOW() WHERE id=$%d", set, len(args)), args...)
}

func (r *repository) DeleteEstimate(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "estimate", id, `DELETE FROM estimates WHERE id=$1`, id)
}

func (r *repository) MarkConverted(ctx context.Context, id, invoiceID int64) error {
	return execOne(ctx, r.db, "estimate", id, `UPDATE estimates
SET converted_to_invoice = TRUE, invoice_id = $2, status = $3, updated_at = NOW()
WHERE id = $1`, id, invoiceID, string(StatusAccepted))
}

// ---- line items ----

const lineColumns = `id, estimate_id, product_id, description, quantity, unit_price, line_total, created_at`

func scanLine(row pgx.Row) (LineItem, error) {
	var l LineItem
	err := row.Scan(&l.ID, &l.EstimateID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice, &l.LineTotal, &l.CreatedAt)
	return l, err
}

func (r *repository) GetLine(ctx context.Context, id int64) (*LineItem, error) {
	l, err := scanLine(r.db.QueryRow(ctx, `SELECT `+lineColumns+` FROM estimate_line_items WHERE id=$1`, id))
	if err != nil {
		return nil, notFound("estimate line item", id, err)
	}
	return &l, nil
}

func (r *repository) ListLines(ctx context.Context, estimateID int64) ([]LineItem, error) {
	rows, err := r.db.Query(ctx, `SELECT `+lineColumns+` FROM estimate_line_items WHERE estimate_id=$1 ORDER BY id`, estimateID)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	var out []LineItem
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) CreateLine(ctx context.Context, l LineItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO estimate_line_items (estimate_id, product_id, description, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		l.EstimateID, l.ProductID, l.Description, l.Quantity, l.UnitPrice, l.LineTotal).Scan(&id)
	return id, db.MapError(err)
}

var lineUpdatable = map[string]struct{}{
	"product_id": {}, "description": {}, "quantity": {}, "unit_price": {}, "line_total": {},
}

func (r *repository) UpdateLine(ctx context.Context, id int64, updates map[string]any) error {
	set, args, err := db.BuildSet(updates, lineUpdatable)
	if err != nil {
		return err
	}
	args = append(args, id)
	return execOne(ctx, r.db, "estimate line item", id, fmt.Sprintf("UPDATE estimate_line_items SET %s WHERE id=$%d", set, len(args)), args...)
}

func (r *repository) DeleteLine(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "estimate line item", id, `DELETE FROM estimate_line_items WHERE id=$1`, id)
}

// ---- conversion targets ----

func (r *repository) CreateInvoice(ctx context.Context, d InvoiceDraft) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO invoices (invoice_uid, contact_id, estimate_id, issue_date, due_date, notes, payment_status, created_by)
VALUES ($1, $2, $3, $4, $5, $6, 'pending', NULLIF($7, 0))
ON CONFLICT (invoice_uid) DO NOTHING
RETURNING id`, d.InvoiceUID, d.ContactID, d.EstimateID, d.IssueDate, d.DueDate, d.Notes, d.CreatedBy).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrCodeTaken
	}
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

func (r *repository) CreateInvoiceLine(ctx context.Context, invoiceID int64, l LineItem) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO invoice_line_items (invoice_id, product_id, description, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		invoiceID, l.ProductID, l.Description, l.Quantity, l.UnitPrice, l.LineTotal).Scan(&id)
	return id, db.MapError(err)
}
