package messages

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
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Balances() balances.Store
	Get(ctx context.Context, id int64) (*Message, error)
	List(ctx context.Context, req ListMessagesRequest) ([]Message, int, error)
	// Create wraps httpx.ErrDuplicate when source and messageId were seen before.
	Create(ctx context.Context, m Message) (int64, error)
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

func (r *repository) Balances() balances.Store {
	return balances.NewPGStore(r.db)
}

const messageColumns = `m.id, m.source, m.message_id, m.content, m.extracted_data, m.product_id, p.name, m.created_at, m.updated_at`

const messageFrom = ` FROM messages m LEFT JOIN products p ON p.id = m.product_id`

var messageUpdatable = map[string]struct{}{"content": {}, "extracted_data": {}, "product_id": {}}

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.Source, &m.MessageID, &m.Content, &m.ExtractedData, &m.ProductID, &m.ProductName, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (r *repository) Get(ctx context.Context, id int64) (*Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, `SELECT `+messageColumns+messageFrom+` WHERE m.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: message %d", httpx.ErrNotFound, id)
		}
		return nil, db.MapError(err)
	}
	return &m, nil
}

func (r *repository) List(ctx context.Context, req ListMessagesRequest) ([]Message, int, error) {
	var conditions []string
	var args []any
	if req.Source != "" {
		args = append(args, req.Source)
		conditions = append(conditions, fmt.Sprintf("m.source = $%d", len(args)))
	}
	if req.ProductID > 0 {
		args = append(args, req.ProductID)
		conditions = append(conditions, fmt.Sprintf("m.product_id = $%d", len(args)))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*)"+messageFrom+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}

	page := req.Page.Normalized()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s%s%s ORDER BY m.created_at DESC, m.id DESC LIMIT $%d OFFSET $%d`,
		messageColumns, messageFrom, whereClause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, m Message) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO messages (source, message_id, content, extracted_data, product_id)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		m.Source, m.MessageID, m.Content, m.ExtractedData, m.ProductID).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]any) error {
	set, args, err := db.BuildSet(updates, messageUpdatable)
	if err != nil {
		return err
	}
	args = append(args, id)
	tag, err := r.db.Exec(ctx, fmt.Sprintf("UPDATE messages SET %s, updated_at=NOW() WHERE id=$%d", set, len(args)), args...)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %d", httpx.ErrNotFound, id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id=$1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %d", httpx.ErrNotFound, id)
	}
	return nil
}
