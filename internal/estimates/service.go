package estimates

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

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
	now        func() time.Time
}

func NewService(repo Repository, dispatcher *balances.Dispatcher, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, dispatcher: dispatcher, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) mutate(ctx context.Context, fn func(context.Context, Repository) error) error {
	return s.dispatcher.WithRetry(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, fn)
	})
}

func (s *Service) dispatch(ctx context.Context, repo Repository, table balances.Table, id int64, op balances.Op, row, old balances.Row) error {
	return s.dispatcher.Dispatch(ctx, repo.Balances(), balances.Event{Table: table, ID: id, Op: op, Row: row, OldRow: old})
}

func readOnly(e *Estimate) error {
	if e.ConvertedToInvoice {
		return fmt.Errorf("%w: estimate %s was converted and is read-only", httpx.ErrValidation, e.EstimateUID)
	}
	return nil
}

// ---- estimates ----

func (s *Service) Create(ctx context.Context, req CreateEstimateRequest) (*Estimate, error) {
	issue := shared.NewDate(s.now())
	if req.IssueDate != nil {
		issue = *req.IssueDate
	}
	est := Estimate{
		ContactID:  req.ContactID,
		IssueDate:  issue.Time,
		ExpiryDate: req.ExpiryDate.Ptr(),
		Status:     StatusDraft,
		Notes:      req.Notes,
		CreatedBy:  shared.ActorID(ctx),
	}

	var id int64
	err := shared.WithDocumentCode(shared.PrefixEstimate, func(code string) error {
		est.EstimateUID = code
		return s.mutate(ctx, func(ctx context.Context, repo Repository) error {
			var err error
			id, err = repo.CreateEstimate(ctx, est)
			if err != nil {
				return err
			}
			for _, in := range req.LineItems {
				if _, err := s.insertLine(ctx, repo, id, in); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create estimate: %w", err)
	}
	s.recordAudit(ctx, "estimate.create", id, map[string]any{"lines": len(req.LineItems)})
	return s.Get(ctx, id)
}

// Get returns the estimate with its line items.
func (s *Service) Get(ctx context.Context, id int64) (*Estimate, error) {
	est, err := s.repo.GetEstimate(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListLines(ctx, id)
	if err != nil {
		return nil, err
	}
	est.LineItems = lines
	return est, nil
}

func (s *Service) List(ctx context.Context, req ListEstimatesRequest) ([]Estimate, int, error) {
	return s.repo.ListEstimates(ctx, req)
}

// Update edits the header and moves the lifecycle status along
// draft -> sent -> accepted | rejected | expired.
func (s *Service) Update(ctx context.Context, id int64, req UpdateEstimateRequest) (*Estimate, error) {
	updates := make(map[string]any)
	if req.ContactID != nil {
		updates["contact_id"] = *req.ContactID
	}
	if req.IssueDate != nil {
		updates["issue_date"] = req.IssueDate.Time
	}
	if req.ExpiryDate != nil {
		updates["expiry_date"] = req.ExpiryDate.Time
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) == 0 && req.Status == nil {
		return s.Get(ctx, id)
	}

	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.LockEstimate(ctx, id)
		if err != nil {
			return err
		}
		if err := readOnly(before); err != nil {
			return err
		}
		if req.Status != nil && *req.Status != before.Status {
			if !before.Status.CanTransition(*req.Status) {
				return fmt.Errorf("%w: estimate cannot move from %s to %s", httpx.ErrValidation, before.Status, *req.Status)
			}
			updates["status"] = string(*req.Status)
		}
		if len(updates) == 0 {
			return nil
		}
		return repo.UpdateEstimate(ctx, id, updates)
	})
	if err != nil {
		return nil, fmt.Errorf("update estimate: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes the estimate; its lines and credits go with it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		return repo.DeleteEstimate(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete estimate: %w", err)
	}
	s.recordAudit(ctx, "estimate.delete", id, nil)
	return nil
}

// ---- line items ----

func (s *Service) Lines(ctx context.Context, estimateID int64) ([]LineItem, error) {
	if _, err := s.repo.GetEstimate(ctx, estimateID); err != nil {
		return nil, err
	}
	return s.repo.ListLines(ctx, estimateID)
}

func (s *Service) insertLine(ctx context.Context, repo Repository, estimateID int64, in LineInput) (LineItem, error) {
	line := LineItem{
		EstimateID:  estimateID,
		ProductID:   in.ProductID,
		Description: strings.TrimSpace(in.Description),
		Quantity:    in.Quantity,
		UnitPrice:   shared.RoundMoney(in.UnitPrice),
	}
	line.LineTotal = shared.LineTotal(line.Quantity, line.UnitPrice)
	id, err := repo.CreateLine(ctx, line)
	if err != nil {
		return LineItem{}, err
	}
	line.ID = id
	return line, s.dispatch(ctx, repo, balances.TableEstimateLineItems, id, balances.OpInsert, line.eventRow(), nil)
}

// editableParent locks the estimate of a line and refuses converted ones.
func editableParent(ctx context.Context, repo Repository, estimateID int64) error {
	est, err := repo.LockEstimate(ctx, estimateID)
	if err != nil {
		return err
	}
	return readOnly(est)
}

func (s *Service) AddLine(ctx context.Context, req CreateLineRequest) (*LineItem, error) {
	var id int64
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		if err := editableParent(ctx, repo, req.EstimateID); err != nil {
			return err
		}
		line, err := s.insertLine(ctx, repo, req.EstimateID, req.LineInput)
		id = line.ID
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add estimate line: %w", err)
	}
	return s.repo.GetLine(ctx, id)
}

func (s *Service) UpdateLine(ctx context.Context, id int64, req UpdateLineRequest) (*LineItem, error) {
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.GetLine(ctx, id)
		if err != nil {
			return err
		}
		if err := editableParent(ctx, repo, before.EstimateID); err != nil {
			return err
		}
		after := *before
		updates := make(map[string]any)
		if req.ProductID != nil {
			updates["product_id"] = *req.ProductID
		}
		if req.Description != nil {
			updates["description"] = strings.TrimSpace(*req.Description)
		}
		if req.Quantity != nil {
			after.Quantity = *req.Quantity
			updates["quantity"] = after.Quantity
		}
		if req.UnitPrice != nil {
			after.UnitPrice = shared.RoundMoney(*req.UnitPrice)
			updates["unit_price"] = after.UnitPrice
		}
		if len(updates) == 0 {
			return nil
		}
		after.LineTotal = shared.LineTotal(after.Quantity, after.UnitPrice)
		updates["line_total"] = after.LineTotal
		if err := repo.UpdateLine(ctx, id, updates); err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TableEstimateLineItems, id, balances.OpUpdate, after.eventRow(), before.eventRow())
	})
	if err != nil {
		return nil, fmt.Errorf("update estimate line: %w", err)
	}
	return s.repo.GetLine(ctx, id)
}

func (s *Service) DeleteLine(ctx context.Context, id int64) error {
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.GetLine(ctx, id)
		if err != nil {
			return err
		}
		if err := editableParent(ctx, repo, before.EstimateID); err != nil {
			return err
		}
		if err := repo.DeleteLine(ctx, id); err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TableEstimateLineItems, id, balances.OpDelete, nil, before.eventRow())
	})
	if err != nil {
		return fmt.Errorf("delete estimate line: %w", err)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "estimate",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("estimate audit failed", slog.String("action", action), slog.Any("error", err))
	}
}
