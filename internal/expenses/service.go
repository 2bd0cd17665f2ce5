package expenses

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// Committer runs a mutation and reports it once committed.
type Committer interface {
	WithRetry(ctx context.Context, fn func(context.Context) error) error
}

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo      Repository
	committer Committer
	audit     AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, committer Committer, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, committer: committer, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) mutate(ctx context.Context, fn func(context.Context, Repository) error) error {
	return s.committer.WithRetry(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, fn)
	})
}

func (s *Service) Create(ctx context.Context, req CreateExpenseRequest) (*Expense, error) {
	expenseDate := shared.NewDate(s.now())
	if req.ExpenseDate != nil {
		expenseDate = *req.ExpenseDate
	}
	amount, err := shared.PositiveAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	e := Expense{
		Category:    strings.ToLower(strings.TrimSpace(req.Category)),
		Amount:      amount,
		ExpenseDate: expenseDate.Time,
		ContactID:   req.ContactID,
		Notes:       req.Notes,
		CreatedBy:   shared.ActorID(ctx),
	}
	var id int64
	err = s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		id, err = repo.Create(ctx, e)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	s.recordAudit(ctx, "expense.create", id, map[string]any{"amount": e.Amount.StringFixed(2), "category": e.Category})
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Expense, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListExpensesRequest) ([]Expense, int, error) {
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	return s.repo.List(ctx, req)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.recordAudit(ctx, "expense.delete", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "expense",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("expense audit failed", slog.String("action", action), slog.Any("error", err))
	}
}
