package invoices

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// ---- customer payments ----

// RecordPayment stores a pending payment against an invoice. A repeated
// Idempotency-Key returns the payment created by the first request.
func (s *Service) RecordPayment(ctx context.Context, req CreatePaymentRequest) (*CustomerPayment, bool, error) {
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
		return nil, false, err
	}

	var id int64
	replayed := false
	err = s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		replayed = false
		if req.IdempotencyKey != "" {
			existing, claimed, err := repo.ClaimIdempotencyKey(ctx, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if !claimed {
				id, replayed = existing, true
				return nil
			}
		}
		inv, err := repo.GetInvoice(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		payment := CustomerPayment{
			InvoiceID:   inv.ID,
			ContactID:   inv.ContactID,
			Amount:      amount,
			PaymentDate: paymentDate.Time,
			Method:      method,
			Reference:   req.Reference,
			Status:      PaymentPending,
			Notes:       req.Notes,
		}
		id, err = repo.CreatePayment(ctx, payment)
		if err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			if err := repo.BindIdempotencyKey(ctx, req.IdempotencyKey, id); err != nil {
				return err
			}
		}
		return s.dispatch(ctx, repo, balances.TableCustomerPayments, id, balances.OpInsert, payment.eventRow(), nil)
	})
	if err != nil {
		return nil, false, fmt.Errorf("record payment: %w", err)
	}
	p, err := s.repo.GetPayment(ctx, id)
	return p, replayed, err
}

func (s *Service) Payment(ctx context.Context, id int64) (*CustomerPayment, error) {
	return s.repo.GetPayment(ctx, id)
}

func (s *Service) Payments(ctx context.Context, req ListPaymentsRequest) ([]CustomerPayment, int, error) {
	return s.repo.ListPayments(ctx, req)
}

func (s *Service) UpdatePayment(ctx context.Context, id int64, req UpdatePaymentRequest) (*CustomerPayment, error) {
	updates := make(map[string]any)
	if req.Amount != nil {
		amount, err := shared.PositiveAmount("amount", *req.Amount)
		if err != nil {
			return nil, err
		}
		updates["amount"] = amount
	}
	if req.PaymentDate != nil {
		updates["payment_date"] = req.PaymentDate.Time
	}
	if req.Method != nil {
		updates["method"] = *req.Method
	}
	if req.Reference != nil {
		updates["reference"] = *req.Reference
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) == 0 {
		return s.repo.GetPayment(ctx, id)
	}
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if before.Status == PaymentRejected {
			return fmt.Errorf("%w: rejected payments cannot be edited", httpx.ErrValidation)
		}
		if err := repo.UpdatePayment(ctx, id, updates); err != nil {
			return err
		}
		after, err := repo.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TableCustomerPayments, id, balances.OpUpdate, after.eventRow(), before.eventRow())
	})
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	return s.repo.GetPayment(ctx, id)
}

// ApprovePayment counts a pending payment towards its invoice. Approving an
// approved payment is a no-op.
func (s *Service) ApprovePayment(ctx context.Context, id int64) (*CustomerPayment, error) {
	return s.transitionPayment(ctx, id, PaymentApproved, "customer_payment.approve")
}

// RejectPayment discards a payment; an approved payment stops counting.
func (s *Service) RejectPayment(ctx context.Context, id int64) (*CustomerPayment, error) {
	return s.transitionPayment(ctx, id, PaymentRejected, "customer_payment.reject")
}

func (s *Service) transitionPayment(ctx context.Context, id int64, target PaymentState, action string) (*CustomerPayment, error) {
	changed := false
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		changed = false
		before, err := repo.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if before.Status == target {
			return nil
		}
		if before.Status == PaymentRejected {
			return fmt.Errorf("%w: payment %d was rejected", httpx.ErrValidation, id)
		}
		updates := map[string]any{"status": string(target)}
		if target == PaymentApproved {
			if actor := shared.ActorID(ctx); actor > 0 {
				updates["approved_by"] = actor
			}
			updates["approved_at"] = s.now()
		}
		if err := repo.UpdatePayment(ctx, id, updates); err != nil {
			return err
		}
		after := *before
		after.Status = target
		changed = true
		return s.dispatch(ctx, repo, balances.TableCustomerPayments, id, balances.OpUpdate, after.eventRow(), before.eventRow())
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	if changed {
		s.recordAudit(ctx, action, "customer_payment", id, nil)
	}
	return s.repo.GetPayment(ctx, id)
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
		return s.dispatch(ctx, repo, balances.TableCustomerPayments, id, balances.OpDelete, nil, before.eventRow())
	})
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return nil
}

// ---- credits ----

// ApplyCredit credits exactly one invoice or estimate of a customer.
func (s *Service) ApplyCredit(ctx context.Context, req CreateCreditRequest) (*CustomerCredit, error) {
	if (req.InvoiceID == nil) == (req.EstimateID == nil) {
		return nil, fmt.Errorf("%w: a credit references exactly one of invoiceId or estimateId", httpx.ErrValidation)
	}
	amount, err := shared.PositiveAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	var id int64
	err = s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		credit := CustomerCredit{
			InvoiceID:  req.InvoiceID,
			EstimateID: req.EstimateID,
			Amount:     amount,
			Reason:     req.Reason,
		}
		if req.InvoiceID != nil {
			inv, err := repo.GetInvoice(ctx, *req.InvoiceID)
			if err != nil {
				return err
			}
			credit.ContactID = inv.ContactID
		} else {
			contactID, err := repo.EstimateContact(ctx, *req.EstimateID)
			if err != nil {
				return err
			}
			credit.ContactID = contactID
		}
		var err error
		id, err = repo.CreateCredit(ctx, credit)
		if err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TableCustomerCredits, id, balances.OpInsert, credit.eventRow(), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("apply credit: %w", err)
	}
	return s.repo.GetCredit(ctx, id)
}

func (s *Service) Credits(ctx context.Context, req ListCreditsRequest) ([]CustomerCredit, int, error) {
	return s.repo.ListCredits(ctx, req)
}

func (s *Service) DeleteCredit(ctx context.Context, id int64) error {
	err := s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		before, err := repo.GetCredit(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.DeleteCredit(ctx, id); err != nil {
			return err
		}
		return s.dispatch(ctx, repo, balances.TableCustomerCredits, id, balances.OpDelete, nil, before.eventRow())
	})
	if err != nil {
		return fmt.Errorf("delete credit: %w", err)
	}
	return nil
}
