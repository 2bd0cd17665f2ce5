package invoices

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

type LineInput struct {
	ProductID   *int64          `json:"productId,omitempty" validate:"omitempty,gt=0"`
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    int64           `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unitPrice" validate:"gte=0"`
}

type CreateInvoiceRequest struct {
	ContactID int64        `json:"contactId" validate:"required,gt=0"`
	IssueDate *shared.Date `json:"issueDate,omitempty"`
	DueDate   *shared.Date `json:"dueDate,omitempty"`
	Notes     *string      `json:"notes,omitempty"`
	LineItems []LineInput  `json:"lineItems,omitempty" validate:"omitempty,dive"`
}

type UpdateInvoiceRequest struct {
	ContactID *int64       `json:"contactId,omitempty" validate:"omitempty,gt=0"`
	IssueDate *shared.Date `json:"issueDate,omitempty"`
	DueDate   *shared.Date `json:"dueDate,omitempty"`
	Notes     *string      `json:"notes,omitempty"`
}

type ListInvoicesRequest struct {
	ContactID int64
	Status    string `validate:"omitempty,oneof=paid partial overdue pending"`
	Page      shared.PageRequest
}

type CreateLineRequest struct {
	InvoiceID int64 `json:"invoiceId" validate:"required,gt=0"`
	LineInput
}

type UpdateLineRequest struct {
	ProductID   *int64           `json:"productId,omitempty" validate:"omitempty,gt=0"`
	Description *string          `json:"description,omitempty" validate:"omitempty,min=1,max=500"`
	Quantity    *int64           `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	UnitPrice   *decimal.Decimal `json:"unitPrice,omitempty" validate:"omitempty,gte=0"`
}

type CreatePaymentRequest struct {
	InvoiceID   int64           `json:"invoiceId" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentDate *shared.Date    `json:"paymentDate,omitempty"`
	Method      string          `json:"method" validate:"omitempty,oneof=cash check card transfer other"`
	Reference   *string         `json:"reference,omitempty" validate:"omitempty,max=100"`
	Notes       *string         `json:"notes,omitempty"`
	// IdempotencyKey comes from the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
}

type UpdatePaymentRequest struct {
	Amount      *decimal.Decimal `json:"amount,omitempty" validate:"omitempty,gt=0"`
	PaymentDate *shared.Date     `json:"paymentDate,omitempty"`
	Method      *string          `json:"method,omitempty" validate:"omitempty,oneof=cash check card transfer other"`
	Reference   *string          `json:"reference,omitempty" validate:"omitempty,max=100"`
	Notes       *string          `json:"notes,omitempty"`
}

type ListPaymentsRequest struct {
	InvoiceID int64
	ContactID int64
	Status    string `validate:"omitempty,oneof=pending approved rejected"`
	Page      shared.PageRequest
}

type CreateCreditRequest struct {
	InvoiceID  *int64          `json:"invoiceId,omitempty" validate:"omitempty,gt=0"`
	EstimateID *int64          `json:"estimateId,omitempty" validate:"omitempty,gt=0"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	Reason     *string         `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type ListCreditsRequest struct {
	InvoiceID  int64
	EstimateID int64
	ContactID  int64
	Page       shared.PageRequest
}
