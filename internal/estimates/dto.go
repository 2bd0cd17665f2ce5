package estimates

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

type CreateEstimateRequest struct {
	ContactID  int64        `json:"contactId" validate:"required,gt=0"`
	IssueDate  *shared.Date `json:"issueDate,omitempty"`
	ExpiryDate *shared.Date `json:"expiryDate,omitempty"`
	Notes      *string      `json:"notes,omitempty"`
	LineItems  []LineInput  `json:"lineItems,omitempty" validate:"omitempty,dive"`
}

type UpdateEstimateRequest struct {
	ContactID  *int64       `json:"contactId,omitempty" validate:"omitempty,gt=0"`
	IssueDate  *shared.Date `json:"issueDate,omitempty"`
	ExpiryDate *shared.Date `json:"expiryDate,omitempty"`
	Status     *Status      `json:"status,omitempty" validate:"omitempty,oneof=draft sent accepted rejected expired"`
	Notes      *string      `json:"notes,omitempty"`
}

type ListEstimatesRequest struct {
	ContactID int64
	Status    string `validate:"omitempty,oneof=draft sent accepted rejected expired"`
	Page      shared.PageRequest
}

type CreateLineRequest struct {
	EstimateID int64 `json:"estimateId" validate:"required,gt=0"`
	LineInput
}

type UpdateLineRequest struct {
	ProductID   *int64           `json:"productId,omitempty" validate:"omitempty,gt=0"`
	Description *string          `json:"description,omitempty" validate:"omitempty,min=1,max=500"`
	Quantity    *int64           `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	UnitPrice   *decimal.Decimal `json:"unitPrice,omitempty" validate:"omitempty,gte=0"`
}

// ConvertResponse is the body of a successful conversion.
type ConvertResponse struct {
	Success   bool  `json:"success"`
	InvoiceID int64 `json:"invoiceId"`
}
