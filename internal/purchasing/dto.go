package purchasing

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

type LineInput struct {
	ProductID   *int64          `json:"productId,omitempty" validate:"omitempty,gt=0"`
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    int64           `json:"quantity" validate:"gt=0"`
	UnitCost    decimal.Decimal `json:"unitCost" validate:"gte=0"`
}

type CreatePurchaseOrderRequest struct {
	ContactID    int64        `json:"contactId" validate:"required,gt=0"`
	OrderDate    *shared.Date `json:"orderDate,omitempty"`
	ExpectedDate *shared.Date `json:"expectedDate,omitempty"`
	Notes        *string      `json:"notes,omitempty"`
	Lines        []LineInput  `json:"lines,omitempty" validate:"omitempty,dive"`
}

type UpdatePurchaseOrderRequest struct {
	ContactID    *int64       `json:"contactId,omitempty" validate:"omitempty,gt=0"`
	OrderDate    *shared.Date `json:"orderDate,omitempty"`
	ExpectedDate *shared.Date `json:"expectedDate,omitempty"`
	Notes        *string      `json:"notes,omitempty"`
}

type ListPurchaseOrdersRequest struct {
	ContactID int64
	Status    string `validate:"omitempty,oneof=paid partial overdue pending"`
	Page      shared.PageRequest
}

type CreateLineRequest struct {
	PurchaseOrderID int64 `json:"purchaseOrderId" validate:"required,gt=0"`
	LineInput
}

type UpdateLineRequest struct {
	ProductID   *int64           `json:"productId,omitempty" validate:"omitempty,gt=0"`
	Description *string          `json:"description,omitempty" validate:"omitempty,min=1,max=500"`
	Quantity    *int64           `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	UnitCost    *decimal.Decimal `json:"unitCost,omitempty" validate:"omitempty,gte=0"`
}

type CreateVendorPaymentRequest struct {
	PurchaseOrderID int64           `json:"purchaseOrderId" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentDate     *shared.Date    `json:"paymentDate,omitempty"`
	Method          string          `json:"method" validate:"omitempty,oneof=cash check card transfer other"`
	Reference       *string         `json:"reference,omitempty" validate:"omitempty,max=100"`
	Notes           *string         `json:"notes,omitempty"`
}

type ListVendorPaymentsRequest struct {
	PurchaseOrderID int64
	ContactID       int64
	Page            shared.PageRequest
}
