package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

func TestMapErrorTaxonomy(t *testing.T) {
	cases := map[string]struct {
		err  error
		want error
	}{
		"no rows":       {pgx.ErrNoRows, httpx.ErrNotFound},
		"check":         {&pgconn.PgError{Code: CodeCheckViolation, ConstraintName: "customer_payments_amount_check"}, httpx.ErrValidation},
		"foreign key":   {&pgconn.PgError{Code: CodeForeignKeyViolation}, httpx.ErrValidation},
		"unique":        {&pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "products_sku_key"}, httpx.ErrDuplicate},
		"serialization": {&pgconn.PgError{Code: CodeSerializationFailure}, httpx.ErrConcurrencyConflict},
		"deadlock":      {fmt.Errorf("save: %w", &pgconn.PgError{Code: CodeDeadlockDetected}), httpx.ErrConcurrencyConflict},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, MapError(tc.err), tc.want)
		})
	}
}

func TestMapErrorCheckViolationIsClientError(t *testing.T) {
	err := MapError(&pgconn.PgError{Code: CodeCheckViolation, ConstraintName: "expenses_amount_check"})
	assert.Equal(t, 400, httpx.StatusFor(err))
	assert.ErrorContains(t, err, "expenses_amount_check")
}

func TestMapErrorPassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("boom")
	assert.Same(t, plain, MapError(plain))
	assert.NoError(t, MapError(nil))
}
