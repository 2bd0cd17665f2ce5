package contacts

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
	Get(ctx context.Context, id int64) (*Contact, error)
	List(ctx context.Context, req ListContactsRequest) ([]Contact, int, error)
	// Create inserts c and returns its id, or shared.ErrCodeTaken when
	// c.ContactUID already exists.
	Create(ctx context.Context, c Contact) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
	Delete(ctx context.Context, id int64) error
	// DocumentCount counts invoices, estimates and purchase orders of a contact.
	DocumentCount(ctx context.Context, id int64) (int, error)
	UpsertPortalAccess(ctx context.Context, contactID int64, pinHash string, active bool) error
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

const contactColumns = `c.id, c.contact_uid, c.name, c.email, c.phone, c.address, c.is_customer, c.is_vendor,
	c.customer_balance, c.vendor_balance, c.net_balance, c.notes,
	COALESCE(pa.is_active, FALSE), c.created_at, c.updated_at`

const contactFrom = `FROM contacts c LEFT JOIN portal_access pa ON pa.contact_id = c.id`

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.ContactUID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.IsCustomer, &c.IsVendor,
		&c.CustomerBalance, &c.VendorBalance, &c.NetBalance, &c.Notes,
		&c.PortalEnabled, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *repository) Get(ctx context.Context, id int64) (*Contact, error) {
	c, err := scanContact(r.db.QueryRow(ctx, `SELECT `+contactColumns+` `+contactFrom+` WHERE c.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: contact %d", httpx.ErrNotFound, id)
		}
		return nil, db.MapError(err)
	}
	return &c, nil
}

func (r *repository) List(ctx context.Context, req ListContactsRequest) ([]Contact, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(c.name ILIKE $%d OR c.email ILIKE $%d OR c.contact_uid ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	switch req.Kind {
	case "customer":
		conditions = append(conditions, "c.is_customer")
	case "vendor":
		conditions = append(conditions, "c.is_vendor")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM contacts c "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}

	page := req.Page.Normalized()
	query := fmt.Sprintf(`SELECT %s %s %s ORDER BY c.name, c.id LIMIT $%d OFFSET $%d`,
		contactColumns, contactFrom, whereClause, argPos, argPos+1)
	args = append(args, page.Limit(), page.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Contact) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO contacts (contact_uid, name, email, phone, address, is_customer, is_vendor, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (contact_uid) DO NOTHING
RETURNING id`, c.ContactUID, c.Name, c.Email, c.Phone, c.Address, c.IsCustomer, c.IsVendor, c.Notes).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrCodeTaken
	}
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

// updatableColumns guards the dynamic SET clause.
var updatableColumns = map[string]struct{}{
	"name": {}, "email": {}, "phone": {}, "address": {},
	"is_customer": {}, "is_vendor": {}, "notes": {},
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]any) error {
	set, args, err := db.BuildSet(updates, updatableColumns)
	if err != nil {
		return err
	}
	args = append(args, id)
	tag, err := r.db.Exec(ctx, fmt.Sprintf("UPDATE contacts SET %s, updated_at=NOW() WHERE id=$%d", set, len(args)), args...)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: contact %d", httpx.ErrNotFound, id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM contacts WHERE id=$1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: contact %d", httpx.ErrNotFound, id)
	}
	return nil
}

func (r *repository) DocumentCount(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT
	(SELECT COUNT(*) FROM invoices WHERE contact_id=$1) +
	(SELECT COUNT(*) FROM estimates WHERE contact_id=$1) +
	(SELECT COUNT(*) FROM purchase_orders WHERE contact_id=$1)`, id).Scan(&n)
	return n, db.MapError(err)
}

func (r *repository) UpsertPortalAccess(ctx context.Context, contactID int64, pinHash string, active bool) error {
	_, err := r.db.Exec(ctx, `INSERT INTO portal_access (contact_id, pin_hash, is_active)
VALUES ($1, $2, $3)
ON CONFLICT (contact_id) DO UPDATE SET pin_hash=EXCLUDED.pin_hash, is_active=EXCLUDED.is_active, updated_at=NOW()`,
		contactID, pinHash, active)
	return db.MapError(err)
}
