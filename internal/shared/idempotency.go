package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

// ErrIdempotencyConflict means the key is claimed by a request that has not
// produced its resource yet.
var ErrIdempotencyConflict = fmt.Errorf("%w: request with this idempotency key is still in flight", httpx.ErrDuplicate)

type idempotencyDB interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// IdempotencyStore persists processed request keys together with the id of
// the resource they produced. It runs on whatever connection or transaction it
// is handed, so a rolled back request releases its key.
type IdempotencyStore struct {
	db idempotencyDB
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db idempotencyDB) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Claim reserves key for module. When the key was already used it returns the
// resource id recorded for it and claimed=false.
func (s *IdempotencyStore) Claim(ctx context.Context, key, module string) (resourceID int64, claimed bool, err error) {
	if s == nil || s.db == nil {
		return 0, false, errors.New("idempotency store not initialised")
	}
	if key == "" {
		return 0, false, errors.New("idempotency key required")
	}
	if module == "" {
		return 0, false, errors.New("idempotency module required")
	}
	tag, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3) ON CONFLICT (key, module) DO NOTHING`, key, module, time.Now())
	if err != nil {
		return 0, false, err
	}
	if tag.RowsAffected() == 1 {
		return 0, true, nil
	}
	var existing *int64
	if err := s.db.QueryRow(ctx, `SELECT resource_id FROM idempotency_keys WHERE key=$1 AND module=$2`, key, module).Scan(&existing); err != nil {
		return 0, false, err
	}
	if existing == nil {
		return 0, false, ErrIdempotencyConflict
	}
	return *existing, false, nil
}

// Bind records the resource produced for a claimed key.
func (s *IdempotencyStore) Bind(ctx context.Context, key, module string, resourceID int64) error {
	if s == nil || s.db == nil {
		return errors.New("idempotency store not initialised")
	}
	_, err := s.db.Exec(ctx, `UPDATE idempotency_keys SET resource_id=$3 WHERE key=$1 AND module=$2`, key, module, resourceID)
	return err
}
