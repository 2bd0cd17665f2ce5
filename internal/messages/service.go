package messages

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo       Repository
	dispatcher *balances.Dispatcher
	audit      AuditPort
	logger     *slog.Logger
}

func NewService(repo Repository, dispatcher *balances.Dispatcher, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, dispatcher: dispatcher, audit: audit, logger: logger}
}

func (s *Service) mutate(ctx context.Context, fn func(context.Context, Repository) error) error {
	return s.dispatcher.WithRetry(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, fn)
	})
}

func (s *Service) dispatch(ctx context.Context, repo Repository, id int64, op balances.Op, row, old balances.Row) error {
	return s.dispatcher.Dispatch(ctx, repo.Balances(), balances.Event{Table: balances.TableMessages, ID: id, Op: op, Row: row, OldRow: old})
}

// Create stores a message and links it to the product its extracted data
// names, in the same transaction.
func (s *Service) Create(ctx context.Context, req CreateMessageRequest) (*Message, error) {
	m := Message{
		Source:        strings.ToLower(strings.TrimSpace(req.Source)),
		MessageID:     strings.TrimSpace(req.MessageID),
		Content:       req.Content,
		ExtractedData: req.ExtractedData,
		ProductID:     req.ProductID,
	}
	if m.Source == "" || m.MessageID == "" {
		return nil, fmt.Errorf("%w: source and messageId are required", httpx.ErrValidation)
	}
	var id int64
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		id, err = repo.Create(ctx, m)
		if err != nil {
			return err
		}
		return s.dispatch(ctx, repo, id, balances.OpInsert, m.eventRow(), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	s.recordAudit(ctx, "message.create", id, map[string]any{"source": m.Source})
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Message, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListMessagesRequest) ([]Message, int, error) {
	req.Source = strings.ToLower(strings.TrimSpace(req.Source))
	return s.repo.List(ctx, req)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateMessageRequest) (*Message, error) {
	updates := make(map[string]any)
	if req.Content != nil {
		updates["content"] = *req.Content
	}
	if req.ExtractedData != nil {
		updates["extracted_data"] = req.ExtractedData
	}
	if req.ProductID != nil {
		updates["product_id"] = *req.ProductID
	}
	if len(updates) == 0 {
		return s.repo.Get(ctx, id)
	}
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, id, updates); err != nil {
			return err
		}
		after, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		return s.dispatch(ctx, repo, id, balances.OpUpdate, after.eventRow(), before.eventRow())
	})
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		return s.dispatch(ctx, repo, id, balances.OpDelete, nil, before.eventRow())
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	s.recordAudit(ctx, "message.delete", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "message",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("message audit failed", slog.String("action", action), slog.Any("error", err))
	}
}
