package expenses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Expense, error)
	List(ctx context.Context, req ListExpensesRequest) ([]Expense, int, error)
	Create(ctx context.Context, e Expense) (int64, error)
	Delete(ctx context.Context, id int64) error
	// SumBetween totals expenses dated in [from, to).
	SumBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
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

const expenseColumns = `e.id, e.category, e.amount, e.expense_date, e.contact_id, c.name, e.notes, COALESCE(e.created_by, 0), e.created_at`

const expenseFrom = ` FROM expenses e LEFT JOIN contacts c ON c.id = e.contact_id`

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.Category, &e.Amount, &e.ExpenseDate, &e.ContactID, &e.ContactName, &e.Notes, &e.CreatedBy, &e.CreatedAt)
	return e, err
}

func (r *repository) Get(ctx context.Context, id int64) (*Expense, error) {
	e, err := scanExpense(r.db.QueryRow(ctx, `SELECT `+expenseColumns+expenseFrom+` WHERE e.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: expense %d", httpx.ErrNotFound, id)
		}
		return nil, db.MapError(err)
	}
	return &e, nil
}

func (r *repository) List(ctx context.Context, req ListExpensesRequest) ([]Expense, int, error) {
	var conditions []string
	var args []any
	if req.Category != "" {
		args = append(args, req.Category)
		conditions = append(conditions, fmt.Sprintf("e.category = $%d", len(args)))
	}
	if req.ContactID > 0 {
		args = append(args, req.ContactID)
		conditions = append(conditions, fmt.Sprintf("e.contact_id = $%d", len(args)))
	}
	if req.From != nil {
		args = append(args, *req.From)
		conditions = append(conditions, fmt.Sprintf("e.expense_date >= $%d", len(args)))
	}
	if req.To != nil {
		args = append(args, *req.To)
		conditions = append(conditions, fmt.Sprintf("e.expense_date < $%d", len(args)))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*)"+expenseFrom+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}

	page := req.Page.Normalized()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s%s%s ORDER BY e.expense_date DESC, e.id DESC LIMIT $%d OFFSET $%d`,
		expenseColumns, expenseFrom, whereClause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, e Expense) (int64, error) {
	var createdBy *int64
	if e.CreatedBy > 0 {
		createdBy = &e.CreatedBy
	}
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO expenses (category, amount, expense_date, contact_id, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		e.Category, e.Amount, e.ExpenseDate, e.ContactID, e.Notes, createdBy).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM expenses WHERE id=$1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expense %d", httpx.ErrNotFound, id)
	}
	return nil
}

func (r *repository) SumBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE expense_date >= $1 AND expense_date < $2`, from, to).Scan(&sum)
	if err != nil {
		return decimal.Zero, db.MapError(err)
	}
	return sum, nil
}
