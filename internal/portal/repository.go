package portal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

// Repository reads portal data. Every view takes the signed-in contact id.
type Repository interface {
	// FindCredentials looks up a contact by case-folded contact uid or email.
	FindCredentials(ctx context.Context, identifier string) (*Credentials, error)
	TouchLogin(ctx context.Context, contactID int64) error
	Account(ctx context.Context, contactID int64) (*Account, error)
	Invoices(ctx context.Context, contactID int64) ([]Invoice, error)
	Estimates(ctx context.Context, contactID int64) ([]Estimate, error)
	PurchaseOrders(ctx context.Context, contactID int64) ([]PurchaseOrder, error)
	Payments(ctx context.Context, contactID int64) ([]Payment, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) FindCredentials(ctx context.Context, identifier string) (*Credentials, error) {
	var c Credentials
	err := r.db.QueryRow(ctx, `SELECT pa.contact_id, pa.pin_hash, pa.is_active
FROM portal_access pa
JOIN contacts c ON c.id = pa.contact_id
WHERE lower(c.contact_uid) = $1 OR lower(c.email) = $1
ORDER BY pa.contact_id
LIMIT 1`, identifier).Scan(&c.ContactID, &c.PinHash, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: portal account", httpx.ErrNotFound)
		}
		return nil, db.MapError(err)
	}
	return &c, nil
}

func (r *repository) TouchLogin(ctx context.Context, contactID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE portal_access SET last_login_at=NOW() WHERE contact_id=$1`, contactID)
	return db.MapError(err)
}

func (r *repository) Account(ctx context.Context, contactID int64) (*Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `SELECT id, contact_uid, name, email, phone, address, customer_balance, vendor_balance, net_balance
FROM contacts WHERE id=$1`, contactID).Scan(&a.ID, &a.ContactUID, &a.Name, &a.Email, &a.Phone, &a.Address,
		&a.CustomerBalance, &a.VendorBalance, &a.NetBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: contact %d", httpx.ErrNotFound, contactID)
		}
		return nil, db.MapError(err)
	}
	return &a, nil
}

func (r *repository) Invoices(ctx context.Context, contactID int64) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `SELECT id, invoice_uid, issue_date, due_date, total_amount, total_paid, total_credits, balance, payment_status
FROM invoices WHERE contact_id=$1 ORDER BY issue_date DESC, id DESC`, contactID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Invoice, error) {
		var i Invoice
		err := row.Scan(&i.ID, &i.InvoiceUID, &i.IssueDate, &i.DueDate, &i.TotalAmount, &i.TotalPaid, &i.TotalCredits, &i.Balance, &i.PaymentStatus)
		return i, err
	})
}

func (r *repository) Estimates(ctx context.Context, contactID int64) ([]Estimate, error) {
	rows, err := r.db.Query(ctx, `SELECT id, estimate_uid, issue_date, expiry_date, status, total_amount, balance, converted_to_invoice
FROM estimates WHERE contact_id=$1 ORDER BY issue_date DESC, id DESC`, contactID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Estimate, error) {
		var e Estimate
		err := row.Scan(&e.ID, &e.EstimateUID, &e.IssueDate, &e.ExpiryDate, &e.Status, &e.TotalAmount, &e.Balance, &e.ConvertedToInvoice)
		return e, err
	})
}

func (r *repository) PurchaseOrders(ctx context.Context, contactID int64) ([]PurchaseOrder, error) {
	rows, err := r.db.Query(ctx, `SELECT id, po_uid, order_date, expected_date, total_amount, total_paid, balance, payment_status
FROM purchase_orders WHERE contact_id=$1 ORDER BY order_date DESC, id DESC`, contactID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PurchaseOrder, error) {
		var po PurchaseOrder
		err := row.Scan(&po.ID, &po.POUID, &po.OrderDate, &po.ExpectedDate, &po.TotalAmount, &po.TotalPaid, &po.Balance, &po.PaymentStatus)
		return po, err
	})
}

// Payments lists approved customer payments and all vendor payments of the
// contact, newest first. Pending and rejected customer payments stay internal.
func (r *repository) Payments(ctx context.Context, contactID int64) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT p.id, 'received', i.id, i.invoice_uid, p.amount, p.payment_date, p.method, p.status
FROM customer_payments p JOIN invoices i ON i.id = p.invoice_id
WHERE i.contact_id=$1 AND p.status='approved'
UNION ALL
SELECT v.id, 'sent', po.id, po.po_uid, v.amount, v.payment_date, v.method, 'approved'
FROM vendor_payments v JOIN purchase_orders po ON po.id = v.purchase_order_id
WHERE po.contact_id=$1
ORDER BY 6 DESC, 1 DESC`, contactID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		var p Payment
		err := row.Scan(&p.ID, &p.Kind, &p.DocumentID, &p.DocumentUID, &p.Amount, &p.PaymentDate, &p.Method, &p.Status)
		return p, err
	})
}
