package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Product, error)
	List(ctx context.Context, req ListProductsRequest) ([]Product, int, error)
	All(ctx context.Context) ([]Product, error)
	Create(ctx context.Context, p Product) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
	Delete(ctx context.Context, id int64) error
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

const productColumns = `id, sku, name, description, unit_price, unit_cost, stock_quantity, reorder_level, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.UnitPrice, &p.UnitCost,
		&p.StockQuantity, &p.ReorderLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) Get(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %d", httpx.ErrNotFound, id)
		}
		return nil, db.MapError(err)
	}
	return &p, nil
}

func (r *repository) List(ctx context.Context, req ListProductsRequest) ([]Product, int, error) {
	var conditions []string
	var args []any
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(sku ILIKE $%d OR name ILIKE $%d)", len(args), len(args)))
	}
	if req.ActiveOnly {
		conditions = append(conditions, "is_active")
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM products "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}

	page := req.Page.Normalized()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM products %s ORDER BY name, id LIMIT $%d OFFSET $%d`,
		productColumns, whereClause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *repository) All(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE is_active ORDER BY sku`)
	if err != nil {
		return nil, db.MapError(err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO products (sku, name, description, unit_price, unit_cost, stock_quantity, reorder_level, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.SKU, p.Name, p.Description, p.UnitPrice, p.UnitCost, p.StockQuantity, p.ReorderLevel, p.IsActive).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, "products_sku_key") {
			return 0, fmt.Errorf("%w: sku %s already exists", httpx.ErrDuplicate, p.SKU)
		}
		return 0, db.MapError(err)
	}
	return id, nil
}

var updatableColumns = map[string]struct{}{
	"sku": {}, "name": {}, "description": {}, "unit_price": {}, "unit_cost": {},
	"stock_quantity": {}, "reorder_level": {}, "is_active": {},
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]any) error {
	set, args, err := db.BuildSet(updates, updatableColumns)
	if err != nil {
		return err
	}
	args = append(args, id)
	tag, err := r.db.Exec(ctx, fmt.Sprintf("UPDATE products SET %s, updated_at=NOW() WHERE id=$%d", set, len(args)), args...)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", httpx.ErrNotFound, id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", httpx.ErrNotFound, id)
	}
	return nil
}
