package invoices

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

// idempotencyModule scopes Idempotency-Key values of payment creation.
const idempotencyModule = "customer_payments"

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Balances() balances.Store

	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	// CreateInvoice returns shared.ErrCodeTaken when inv.InvoiceUID exists.
	CreateInvoice(ctx context.Context, inv Invoice) (int64, error)
	UpdateInvoice(ctx context.Context, id int64, updates map[string]any) error
	DeleteInvoice(ctx context.Context, id int64) error

	GetLine(ctx context.Context, id int64) (*LineItem, error)
	ListLines(ctx context.Context, invoiceID int64) ([]LineItem, error)
	CreateLine(ctx context.Context, line LineItem) (int64, error)
	UpdateLine(ctx context.Context, id int64, updates map[string]any) error
	DeleteLine(ctx context.Context, id int64) error

	GetPayment(ctx context.Context, id int64) (*CustomerPayment, error)
	ListPayments(ctx context.Context, req ListPaymentsRequest) ([]CustomerPayment, int, error)
	CreatePayment(ctx context.Context, p CustomerPayment) (int64, error)
	UpdatePayment(ctx context.Context, id int64, updates map[string]any) error
	DeletePayment(ctx context.Context, id int64) error

	GetCredit(ctx context.Context, id int64) (*CustomerCredit, error)
	ListCredits(ctx context.Context, req ListCreditsRequest) ([]CustomerCredit, int, error)
	CreateCredit(ctx context.Context, c CustomerCredit) (int64, error)
	DeleteCredit(ctx context.Context, id int64) error
	// EstimateContact returns the contact of an estimate.
	EstimateContact(ctx context.Context, estimateID int64) (int64, error)
	// ReleaseEstimate clears the conversion mark of the estimate that was
	// converted into invoiceID, if any.
	ReleaseEstimate(ctx context.Context, invoiceID int64) error

	// ClaimIdempotencyKey reserves key; claimed=false returns the payment
	// created by the earlier request.
	ClaimIdempotencyKey(ctx context.Context, key string) (paymentID int64, claimed bool, err error)
	BindIdempotencyKey(ctx context.Context, key string, paymentID int64) error
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

// ---- invoices ----

const invoiceColumns = `i.id, i.invoice_uid, i.contact_id, c.name, i.estimate_id, i.issue_date, i.due_date,
	i.total_amount, i.total_paid, i.total_credits, i.balance, i.payment_status, i.notes,
	COALESCE(i.created_by, 0), i.created_at, i.updated_at`

const invoiceFrom = `FROM invoices i JOIN contacts c ON c.id = i.contact_id`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.InvoiceUID, &inv.ContactID, &inv.ContactName, &inv.EstimateID, &inv.IssueDate, &inv.DueDate,
		&inv.TotalAmount, &inv.TotalPaid, &inv.TotalCredits, &inv.Balance, &status, &inv.Notes,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	inv.PaymentStatus = balances.PaymentStatus(status)
	return inv, err
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` `+invoiceFrom+` WHERE i.id=$1`, id))
	if err != nil {
		return nil, notFound("invoice", id, err)
	}
	return &inv, nil
}

func (r *repository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	var conditions []string
	var args []any
	if req.ContactID > 0 {
		args = append(args, req.ContactID)
		conditions = append(conditions, fmt.Sprintf("i.contact_id = $%d", len(args)))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		conditions = append(conditions, fmt.Sprintf("i.payment_status = $%d", len(args)))
	}
	where := whereClause(conditions)

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM invoices i "+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	page := req.Page.Normalized()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s %s %s ORDER BY i.issue_date DESC, i.id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, invoiceFrom, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

func (r *repository) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO invoices (invoice_uid, contact_id, estimate_id, issue_date, due_date, notes, payment_status, created_by)
VALUES ($1, $2, $3, $4, $5, $6, 'pending', NULLIF($7, 0))
ON CONFLICT (invoice_uid) DO NOTHING
RETURNING id`, inv.InvoiceUID, inv.ContactID, inv.EstimateID, inv.IssueDate, inv.DueDate, inv.Notes, inv.CreatedBy).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrCodeTaken
	}
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

var invoiceUpdatable = map[string]struct{}{
	"contact_id": {}, "issue_date": {}, "due_date": {}, "notes": {},
}

func (r *repository) UpdateInvoice(ctx context.Context, id int64, updates map[string]any) error {
	set, args, err := db.BuildSet(updates, invoiceUpdatable)
	if err != nil {
		return err
	}
	args = append(args, id)
	return execOne(ctx, r.db, "invoice", id, fmt.Sprintf("UPDATE invoices SET %s, updated_at=NOW() WHERE id=$%d", set, len(args)), args...)
}

func (r *repository) ReleaseEstimate(ctx context.Context, invoiceID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE estimates
SET converted_to_invoice = FALSE, invoice_id = NULL, updated_at = NOW()
WHERE invoice_id = $1`, invoiceID)
	return db.MapError(err)
}

func (r *repository) DeleteInvoice(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "invoice", id, `DELETE FROM invoices WHERE id=$1`, id)
}

// ---- line items ----

const lineColumns = `id, invoice_id, product_id, description, quantity, unit_price, line_total, created_at`

func scanLine(row pgx.Row) (LineItem, error) {
	var l LineItem
	err := row.Scan(&l.ID, &l.InvoiceID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice, &l.LineTotal, &l.CreatedAt)
	return l, err
}

func (r *repository) GetLine(ctx context.Context, id int64) (*LineItem, error) {
	l, err := scanLine(r.db.QueryRow(ctx, `SELECT `+lineColumns+` FROM invoice_line_items WHERE id=$1`, id))
	if err != nil {
		return nil, notFound("invoice line item", id, err)
	}
	return &l, nil
}

func (r *repository) ListLines(ctx context.Context, invoiceID int64) ([]LineItem, error) {
	rows, err := r.db.Query(ctx, `SELECT `+lineColumns+` FROM invoice_line_items WHERE invoice_id=$1 ORDER BY id`, invoiceID)
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
	err := r.db.QueryRow(ctx, `INSERT INTO invoice_line_items (invoice_id, product_id, description, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		l.InvoiceID, l.ProductID, l.Description, l.Quantity, l.UnitPrice, l.LineTotal).Scan(&id)
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
	return execOne(ctx, r.db, "invoice line item", id, fmt.Sprintf("UPDATE invoice_line_items SET %s WHERE id=$%d", set, len(args)), args...)
}

func (r *repository) DeleteLine(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "invoice line item", id, `DELETE FROM invoice_line_items WHERE id=$1`, id)
}

// ---- customer payments ----

const paymentColumns = `id, invoice_id, contact_id, amount, payment_date, method, reference, status, approved_by, approved_at, notes, created_at`

func scanPayment(row pgx.Row) (CustomerPayment, error) {
	var p CustomerPayment
	var status string
	err := row.Scan(&p.ID, &p.InvoiceID, &p.ContactID, &p.Amount, &p.PaymentDate, &p.Method, &p.Reference,
		&status, &p.ApprovedBy, &p.ApprovedAt, &p.Notes, &p.CreatedAt)
	p.Status = PaymentState(status)
	return p, err
}

func (r *repository) GetPayment(ctx context.Context, id int64) (*CustomerPayment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM customer_payments WHERE id=$1`, id))
	if err != nil {
		return nil, notFound("customer payment", id, err)
	}
	return &p, nil
}

func (r *repository) ListPayments(ctx context.Context, req ListPaymentsRequest) ([]CustomerPayment, int, error) {
	var conditions []string
	var args []any
	if req.InvoiceID > 0 {
		args = append(args, req.InvoiceID)
		conditions = append(conditions, fmt.Sprintf("invoice_id = $%d", len(args)))
	}
	if req.ContactID > 0 {
		args = append(args, req.ContactID)
		conditions = append(conditions, fmt.Sprintf("contact_id = $%d", len(args)))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := whereClause(conditions)

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customer_payments "+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	page := req.Page.Normalized()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM customer_payments %s ORDER BY payment_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var out []CustomerPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repository) CreatePayment(ctx context.Context, p CustomerPayment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO customer_payments (invoice_id, contact_id, amount, payment_date, method, reference, status, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.InvoiceID, p.ContactID, p.Amount, p.PaymentDate, p.Method, p.Reference, string(p.Status), p.Notes).Scan(&id)
	return id, db.MapError(err)
}

var paymentUpdatable = map[string]struct{}{
	"amount": {}, "payment_date": {}, "method": {}, "reference": {}, "notes": {},
	"status": {}, "approved_by": {}, "approved_at": {},
}

func (r *repository) UpdatePayment(ctx context.Context, id int64, updates map[string]any) error {
	set, args, err := db.BuildSet(updates, paymentUpdatable)
	if err != nil {
		return err
	}
	args = append(args, id)
	return execOne(ctx, r.db, "customer payment", id, fmt.Sprintf("UPDATE customer_payments SET %s WHERE id=$%d", set, len(args)), args...)
}

func (r *repository) DeletePayment(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "customer payment", id, `DELETE FROM customer_payments WHERE id=$1`, id)
}

// ---- credits ----

const creditColumns = `id, contact_id, invoice_id, estimate_id, amount, reason, created_at`

func scanCredit(row pgx.Row) (CustomerCredit, error) {
	var c CustomerCredit
	err := row.Scan(&c.ID, &c.ContactID, &c.InvoiceID, &c.EstimateID, &c.Amount, &c.Reason, &c.CreatedAt)
	return c, err
}

func (r *repository) GetCredit(ctx context.Context, id int64) (*CustomerCredit, error) {
	c, err := scanCredit(r.db.QueryRow(ctx, `SELECT `+creditColumns+` FROM customer_credits WHERE id=$1`, id))
	if err != nil {
		return nil, notFound("customer credit", id, err)
	}
	return &c, nil
}

func (r *repository) ListCredits(ctx context.Context, req ListCreditsRequest) ([]CustomerCredit, int, error) {
	var conditions []string
	var args []any
	if req.InvoiceID > 0 {
		args = append(args, req.InvoiceID)
		conditions = append(conditions, fmt.Sprintf("invoice_id = $%d", len(args)))
	}
	if req.EstimateID > 0 {
		args = append(args, req.EstimateID)
		conditions = append(conditions, fmt.Sprintf("estimate_id = $%d", len(args)))
	}
	if req.ContactID > 0 {
		args = append(args, req.ContactID)
		conditions = append(conditions, fmt.Sprintf("contact_id = $%d", len(args)))
	}
	where := whereClause(conditions)

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customer_credits "+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	page := req.Page.Normalized()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM customer_credits %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		creditColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var out []CustomerCredit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) CreateCredit(ctx context.Context, c CustomerCredit) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO customer_credits (contact_id, invoice_id, estimate_id, amount, reason)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, c.ContactID, c.InvoiceID, c.EstimateID, c.Amount, c.Reason).Scan(&id)
	return id, db.MapError(err)
}

func (r *repository) DeleteCredit(ctx context.Context, id int64) error {
	return execOne(ctx, r.db, "customer credit", id, `DELETE FROM customer_credits WHERE id=$1`, id)
}

func (r *repository) EstimateContact(ctx context.Context, estimateID int64) (int64, error) {
	var contactID int64
	if err := r.db.QueryRow(ctx, `SELECT contact_id FROM estimates WHERE id=$1`, estimateID).Scan(&contactID); err != nil {
		return 0, notFound("estimate", estimateID, err)
	}
	return contactID, nil
}

// ---- idempotency ----

func (r *repository) ClaimIdempotencyKey(ctx context.Context, key string) (int64, bool, error) {
	return shared.NewIdempotencyStore(r.db).Claim(ctx, key, idempotencyModule)
}

func (r *repository) BindIdempotencyKey(ctx context.Context, key string, paymentID int64) error {
	return shared.NewIdempotencyStore(r.db).Bind(ctx, key, idempotencyModule, paymentID)
}
