package purchasing

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

// ---- purchase orders ----

func (s *Service) Create(ctx context.Context, req CreatePurchaseOrderRequest) (*PurchaseOrder, error) {
	orderDate := shared.NewDate(s.now())
	if req.OrderDate != nil {
		orderDate = *req.OrderDate
	}
	po := PurchaseOrder{
		ContactID:    req.ContactID,
		OrderDate:    orderDate.Time,
		ExpectedDate: req.ExpectedDate.Ptr(),
		Notes:        req.Notes,
		CreatedBy:    shared.ActorID(ctx),
	}

	var id int64
	err := shared.WithDocumentCode(shared.PrefixPurchaseOrder, func(code string) error {
		po.POUID = code
		return s.mutate(ctx, func(ctx context.Context, repo Repository) error {
			var err error
			id, err = repo.CreatePurchaseOrder(ctx, po)
			if err != nil {
				return err
			}
			if err := s.dispatch(ctx, repo, balances.TablePurchaseOrders, id, balances.OpInsert, po.eventRow(), nil); err != nil {
				return err
			}
			for _, in := range req.Lines {
				if _, err := s.insertLine(ctx, repo, id, in); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create purchase order: %w", err)
	}
	s.recordAudit(ctx, "purchase_order.create", "purchase_order", id, map[string]any{"lines": len(req.Lines)})
	return s.Get(ctx, id)
}

// Get returns the purchase order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*PurchaseOrder, error) {
	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListLines(ctx, id)
	if err != nil {
		return nil, err
	}
	po.Lines = lines
	return po, nil
}

func (s *Service) List(ctx context.Context, req ListPurchaseOrdersRequest) ([]PurchaseOrder, int, error) {
	return s.repo.ListPurchaseOrders(ctx, req)
}

// Update edits the header. The expected date plays the role of a due date for
// the derived payment status.
func (s *Service) Update(ctx context.Context, id int64, req UpdatePurchaseOrderRequest) (*PurchaseOrder, error) {
	updates := make(map[string]any)
	if req.ContactID != nil {
		updates["contact_id"] = *req.ContactID
	}
	if req.OrderDate != nil {
		updates["order_date"] = req.OrderDate.Time
	}
	if req.ExpectedDate != nil {
		updates["expected_date"] = req.ExpectedDate.Time
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.GetPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.UpdatePurchaseOrder(ctx, id, updates); err != nil {
			return err
		}
		if err := s.dispatcher.RecomputePurchaseOrder(ctx, repo.Balances(), id); err != nil {
			return err
		}
		after, err := repo.GetPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TablePurchaseOrders, id, balances.OpUpdate, after.eventRow(), before.eventRow())
	})
	if err != nil {
		return nil, fmt.Errorf("update purchase order: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.GetPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.DeletePurchaseOrder(ctx, id); err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TablePurchaseOrders, id, balances.OpDelete, nil, before.eventRow())
	})
	if err != nil {
		return fmt.Errorf("delete purchase order: %w", err)
	}
	s.recordAudit(ctx, "purchase_order.delete", "purchase_order", id, nil)
	return nil
}

// ---- lines ----

func (s *Service) Lines(ctx context.Context, purchaseOrderID int64) ([]Line, error) {
	if _, err := s.repo.GetPurchaseOrder(ctx, purchaseOrderID); err != nil {
		return nil, err
	}
	return s.repo.ListLines(ctx, purchaseOrderID)
}

func (s *Service) insertLine(ctx context.Context, repo Repository, purchaseOrderID int64, in LineInput) (Line, error) {
	line := Line{
		PurchaseOrderID: purchaseOrderID,
		ProductID:       in.ProductID,
		Description:     strings.TrimSpace(in.Description),
		Quantity:        in.Quantity,
		UnitCost:        shared.RoundMoney(in.UnitCost),
	}
	line.LineTotal = shared.LineTotal(line.Quantity, line.UnitCost)
	id, err := repo.CreateLine(ctx, line)
	if err != nil {
		return Line{}, err
	}
	line.ID = id
	return line, s.dispatch(ctx, repo, balances.TablePurchaseOrderLines, id, balances.OpInsert, line.eventRow(), nil)
}

func (s *Service) AddLine(ctx context.Context, req CreateLineRequest) (*Line, error) {
	var id int64
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.GetPurchaseOrder(ctx, req.PurchaseOrderID); err != nil {
			return err
		}
		line, err := s.insertLine(ctx, repo, req.PurchaseOrderID, req.LineInput)
		id = line.ID
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add purchase order line: %w", err)
	}
	return s.repo.GetLine(ctx, id)
}

func (s *Service) UpdateLine(ctx context.Context, id int64, req UpdateLineRequest) (*Line, error) {
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
		if req.UnitCost != nil {
			after.UnitCost = shared.RoundMoney(*req.UnitCost)
			updates["unit_cost"] = after.UnitCost
		}
		if len(updates) == 0 {
			return nil
		}
		after.LineTotal = shared.LineTotal(after.Quantity, after.UnitCost)
		updates["line_total"] = after.LineTotal
		if err := repo.UpdateLine(ctx, id, updates); err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TablePurchaseOrderLines, id, balances.OpUpdate, after.eventRow(), before.eventRow())
	})
	if err != nil {
		return nil, fmt.Errorf("update purchase order line: %w", err)
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
		return s.dispatch(ctx, repo, balances.TablePurchaseOrderLines, id, balances.OpDelete, nil, before.eventRow())
	})
	if err != nil {
		return fmt.Errorf("delete purchase order line: %w", err)
	}
	return nil
}

// ---- vendor payments ----

// RecordPayment stores a vendor payment. There is no approval step, so it
// counts towards the purchase order immediately.
func (s *Service) RecordPayment(ctx context.Context, req CreateVendorPaymentRequest) (*VendorPayment, error) {
	paymentDate := shared.NewDate(s.now())
	if req.PaymentDate != nil {
		paymentDate = *req.PaymentDate
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = "transfer"
	}
	amount, err := shared.PositiveAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		po, err := repo.GetPurchaseOrder(ctx, req.PurchaseOrderID)
		if err != nil {
			return err
		}
		payment := VendorPayment{
			PurchaseOrderID: po.ID,
			ContactID:       po.ContactID,
			Amount:          amount,
			PaymentDate:     paymentDate.Time,
			Method:          method,
			Reference:       req.Reference,
			Notes:           req.Notes,
		}
		id, err = repo.CreatePayment(ctx, payment)
		if err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TableVendorPayments, id, balances.OpInsert, payment.eventRow(), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("record vendor payment: %w", err)
	}
	s.recordAudit(ctx, "vendor_payment.create", "vendor_payment", id, nil)
	return s.repo.GetPayment(ctx, id)
}

func (s *Service) Payments(ctx context.Context, req ListVendorPaymentsRequest) ([]VendorPayment, int, error) {
	return s.repo.ListPayments(ctx, req)
}

func (s *Service) DeletePayment(ctx context.Context, id int64) error {
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.DeletePayment(ctx, id); err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TableVendorPayments, id, balances.OpDelete, nil, before.eventRow())
	})
	if err != nil {
		return fmt.Errorf("delete vendor payment: %w", err)
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
		s.logger.Warn("purchasing audit failed", slog.String("action", action), slog.Any("error", err))
	}
}
