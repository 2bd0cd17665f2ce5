package balances

import (
	"context"
	"errors"
	"log/slog"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

// WithRetry runs fn, normally a whole mutation transaction including its
// recompute chain. A concurrency conflict re-runs it exactly once; a second
// conflict is returned to the caller.
func (d *Dispatcher) WithRetry(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err != nil && errors.Is(err, httpx.ErrConcurrencyConflict) && ctx.Err() == nil {
		d.logger.Warn("retrying after concurrency conflict", slog.Any("error", err))
		d.metrics.retried()
		err = fn(ctx)
	}
	if err != nil {
		return err
	}
	for _, hook := range d.committed {
		hook(ctx)
	}
	return nil
}
