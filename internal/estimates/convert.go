package estimates

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// InvoiceTermsDays is the due date offset of invoices created by conversion.
const InvoiceTermsDays = 30

// ConvertToInvoice turns an estimate into an invoice in one transaction: the
// invoice header, a copy of every line, the recompute of the new invoice and
// its contact, and the converted flag on the estimate either all commit or
// none do. A second call fails with httpx.ErrAlreadyConverted.
func (s *Service) ConvertToInvoice(ctx context.Context, estimateID int64) (int64, error) {
	now := s.now()
	issue := shared.NewDate(now).Time

	var invoiceID int64
	var lineCount int
	err := shared.WithDocumentCode(shared.PrefixInvoice, func(code string) error {
		return s.mutate(ctx, func(ctx context.Context, repo Repository) error {
			est, err := repo.LockEstimate(ctx, estimateID)
			if err != nil {
				return err
			}
			if est.ConvertedToInvoice {
				return fmt.Errorf("%w: estimate %s already converted to invoice %d",
					httpx.ErrAlreadyConverted, est.EstimateUID, derefID(est.InvoiceID))
			}
			lines, err := repo.ListLines(ctx, estimateID)
			if err != nil {
				return err
			}

			draft := InvoiceDraft{
				InvoiceUID: code,
				ContactID:  est.ContactID,
				EstimateID: est.ID,
				IssueDate:  issue,
				DueDate:    issue.AddDate(0, 0, InvoiceTermsDays),
				Notes:      est.Notes,
				CreatedBy:  shared.ActorID(ctx),
			}
			invoiceID, err = repo.CreateInvoice(ctx, draft)
			if err != nil {
				return err
			}
			if err := s.dispatch(ctx, repo, balances.TableInvoices, invoiceID, balances.OpInsert, draft.eventRow(), nil); err != nil {
				return err
			}

			for _, line := range lines {
				line.LineTotal = shared.LineTotal(line.Quantity, line.UnitPrice)
				lineID, err := repo.CreateInvoiceLine(ctx, invoiceID, line)
				if err != nil {
					return fmt.Errorf("copy line %d: %w", line.ID, err)
				}
				row := balances.Row{"invoiceId": invoiceID, "lineTotal": line.LineTotal.String()}
				if err := s.dispatch(ctx, repo, balances.TableInvoiceLineItems, lineID, balances.OpInsert, row, nil); err != nil {
					return err
				}
			}
			lineCount = len(lines)
			return repo.MarkConverted(ctx, estimateID, invoiceID)
		})
	})
	if err != nil {
		return 0, fmt.Errorf("convert estimate %d: %w", estimateID, err)
	}

	s.logger.Info("estimate converted",
		slog.Int64("estimate_id", estimateID),
		slog.Int64("invoice_id", invoiceID),
		slog.Int("lines", lineCount))
	s.recordAudit(ctx, "estimate.convert", estimateID, map[string]any{"invoice_id": invoiceID, "lines": lineCount})
	return invoiceID, nil
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
