package products

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   *string         `json:"description,omitempty"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	UnitCost      decimal.Decimal `json:"unitCost"`
	StockQuantity int64           `json:"stockQuantity"`
	ReorderLevel  int64           `json:"reorderLevel"`
	IsActive      bool            `json:"isActive"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// InventoryItem is one row of the stock valuation report.
type InventoryItem struct {
	ProductID     int64           `json:"productId"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	StockQuantity int64           `json:"stockQuantity"`
	ReorderLevel  int64           `json:"reorderLevel"`
	UnitCost      decimal.Decimal `json:"unitCost"`
	StockValue    decimal.Decimal `json:"stockValue"`
	LowStock      bool            `json:"lowStock"`
}

// Inventory is the stock valuation report.
type Inventory struct {
	Items         []InventoryItem `json:"items"`
	TotalQuantity int64           `json:"totalQuantity"`
	TotalValue    decimal.Decimal `json:"totalValue"`
	LowStockCount int             `json:"lowStockCount"`
}
