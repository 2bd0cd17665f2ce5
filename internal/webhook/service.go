// Package webhook receives change notifications from internal callers and
// feeds them to the balance dispatcher.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

// Payload is the notification body. OldRow is sent as old_row.
type Payload struct {
	Table  string         `json:"table" validate:"required,max=64"`
	ID     json.Number    `json:"id"`
	Op     string         `json:"op" validate:"required"`
	Row    map[string]any `json:"row,omitempty"`
	OldRow map[string]any `json:"old_row,omitempty"`
}

// Event converts the payload, normalising the operation to upper case.
func (p Payload) Event() (balances.Event, error) {
	op := balances.Op(strings.ToUpper(strings.TrimSpace(p.Op)))
	if !op.Valid() {
		return balances.Event{}, fmt.Errorf("%w: op must be INSERT, UPDATE or DELETE", httpx.ErrValidation)
	}
	var id int64
	if p.ID != "" {
		n, err := p.ID.Int64()
		if err != nil {
			return balances.Event{}, fmt.Errorf("%w: id must be an integer", httpx.ErrValidation)
		}
		id = n
	}
	return balances.Event{
		Table:  balances.Table(strings.TrimSpace(p.Table)),
		ID:     id,
		Op:     op,
		Row:    p.Row,
		OldRow: p.OldRow,
	}, nil
}

// StoreRunner opens a transaction and hands its balances store to fn.
type StoreRunner interface {
	WithStore(ctx context.Context, fn func(context.Context, balances.Store) error) error
}

type Service struct {
	stores     StoreRunner
	dispatcher *balances.Dispatcher
	logger     *slog.Logger
}

func NewService(stores StoreRunner, dispatcher *balances.Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{stores: stores, dispatcher: dispatcher, logger: logger}
}

// Process dispatches ev in its own transaction, retried once on a
// concurrency conflict. Replays are harmless since recomputes read current
// state.
func (s *Service) Process(ctx context.Context, ev balances.Event) error {
	s.logger.Info("processing webhook", slog.String("event", ev.String()))
	err := s.dispatcher.WithRetry(ctx, func(ctx context.Context) error {
		return s.stores.WithStore(ctx, func(ctx context.Context, store balances.Store) error {
			return s.dispatcher.Dispatch(ctx, store, ev)
		})
	})
	if err != nil {
		return fmt.Errorf("webhook %s: %w", ev, err)
	}
	return nil
}
