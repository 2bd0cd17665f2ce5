package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// DefaultTermsDays is the due date offset applied when none is given.
const DefaultTermsDays = 30

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

// mutate runs fn in one transaction and re-runs it once on a concurrency
// conflict. Recomputes dispatched inside fn commit or roll back with it.
func (s *Service) mutate(ctx context.Context, fn func(context.Context, Repository) error) error {
	return s.dispatcher.WithRetry(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, fn)
	})
}

func (s *Service) dispatch(ctx context.Context, repo Repository, table balances.Table, id int64, op balances.Op, row, old balances.Row) error {
	return s.dispatcher.Dispatch(ctx, repo.Balances(), balances.Event{Table: table, ID: id, Op: op, Row: row, OldRow: old})
}

// ---- invoices ----

func (s *Service) Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	issue := shared.NewDate(s.now())
	if req.IssueDate != nil {
		issue = *req.IssueDate
	}
	due := req.DueDate.Ptr()
	if due == nil {
		d := issue.AddDate(0, 0, DefaultTermsDays)
		due = &d
	}
	inv := Invoice{
		ContactID: req.ContactID,
		IssueDate: issue.Time,
		DueDate:   due,
		Notes:     req.Notes,
		CreatedBy: shared.ActorID(ctx),
	}

	var id int64
	err := shared.WithDocumentCode(shared.PrefixInvoice, func(code string) error {
		inv.InvoiceUID = code
		return s.mutate(ctx, func(ctx context.Context, repo Repository) error {
			var err error
			id, err = repo.CreateInvoice(ctx, inv)
			if err != nil {
				return err
			}
			if err := s.dispatch(ctx, repo, balances.TableInvoices, id, balances.OpInsert, inv.eventRow(), nil); err != nil {
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
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	s.recordAudit(ctx, "invoice.create", "invoice", id, map[string]any{"lines": len(req.LineItems)})
	return s.Get(ctx, id)
}

// Get returns the invoice with its line items.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListLines(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.LineItems = lines
	return inv, nil
}

func (s *Service) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	return s.repo.ListInvoices(ctx, req)
}

// Update edits the header. A changed due date re-derives the payment status; a
// changed contact moves the balance between the two contacts.
func (s *Service) Update(ctx context.Context, id int64, req UpdateInvoiceRequest) (*Invoice, error) {
	updates := make(map[string]any)
	if req.ContactID != nil {
		updates["contact_id"] = *req.ContactID
	}
	if req.IssueDate != nil {
		updates["issue_date"] = req.IssueDate.Time
	}
	if req.DueDate != nil {
		updates["due_date"] = req.DueDate.Time
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.UpdateInvoice(ctx, id, updates); err != nil {
			return err
		}
		if err := s.dispatcher.RecomputeInvoice(ctx, repo.Balances(), id); err != nil {
			return err
		}
		after, err := repo.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TableInvoices, id, balances.OpUpdate, after.eventRow(), before.eventRow())
	})
	if err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes the invoice with its children and recomputes its contact.
// An estimate converted into the invoice becomes convertible again.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.ReleaseEstimate(ctx, id); err != nil {
			return err
		}
		if err := repo.DeleteInvoice(ctx, id); err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TableInvoices, id, balances.OpDelete, nil, before.eventRow())
	})
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	s.recordAudit(ctx, "invoice.delete", "invoice", id, nil)
	return nil
}

// ---- line items ----

func (s *Service) Lines(ctx context.Context, invoiceID int64) ([]LineItem, error) {
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListLines(ctx, invoiceID)
}

func (s *Service) insertLine(ctx context.Context, repo Repository, invoiceID int64, in LineInput) (LineItem, error) {
	line := LineItem{
		InvoiceID:   invoiceID,
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
	return line, s.dispatch(ctx, repo, balances.TableInvoiceLineItems, id, balances.OpInsert, line.eventRow(), nil)
}

func (s *Service) AddLine(ctx context.Context, req CreateLineRequest) (*LineItem, error) {
	var id int64
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.GetInvoice(ctx, req.InvoiceID); err != nil {
			return err
		}
		line, err := s.insertLine(ctx, repo, req.InvoiceID, req.LineInput)
		id = line.ID
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add invoice line: %w", err)
	}
	return s.repo.GetLine(ctx, id)
}

func (s *Service) UpdateLine(ctx context.Context, id int64, req UpdateLineRequest) (*LineItem, error) {
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.GetLine(ctx, id)
		if err != nil {
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
		return s.dispatch(ctx, repo, balances.TableInvoiceLineItems, id, balances.OpUpdate, after.eventRow(), before.eventRow())
	})
	if err != nil {
		return nil, fmt.Errorf("update invoice line: %w", err)
	}
	return s.repo.GetLine(ctx, id)
}

func (s *Service) DeleteLine(ctx context.Context, id int64) error {
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.GetLine(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.DeleteLine(ctx, id); err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TableInvoiceLineItems, id, balances.OpDelete, nil, before.eventRow())
	})
	if err != nil {
		return fmt.Errorf("delete invoice line: %w", err)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("invoice audit failed", slog.String("action", action), slog.Any("error", err))
	}
}
