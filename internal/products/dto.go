package products

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

type CreateProductRequest struct {
	SKU           string          `json:"sku" validate:"required,max=64"`
	Name          string          `json:"name" validate:"required,max=200"`
	Description   *string         `json:"description,omitempty"`
	UnitPrice     decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	UnitCost      decimal.Decimal `json:"unitCost" validate:"gte=0"`
	StockQuantity int64           `json:"stockQuantity" validate:"gte=0"`
	ReorderLevel  int64           `json:"reorderLevel" validate:"gte=0"`
}

type UpdateProductRequest struct {
	SKU           *string          `json:"sku,omitempty" validate:"omitempty,min=1,max=64"`
	Name          *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description   *string          `json:"description,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unitPrice,omitempty" validate:"omitempty,gte=0"`
	UnitCost      *decimal.Decimal `json:"unitCost,omitempty" validate:"omitempty,gte=0"`
	StockQuantity *int64           `json:"stockQuantity,omitempty" validate:"omitempty,gte=0"`
	ReorderLevel  *int64           `json:"reorderLevel,omitempty" validate:"omitempty,gte=0"`
	IsActive      *bool            `json:"isActive,omitempty"`
}

type ListProductsRequest struct {
	Search     string
	ActiveOnly bool
	Page       shared.PageRequest
}
