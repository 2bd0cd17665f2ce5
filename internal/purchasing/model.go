package purchasing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
)

// PurchaseOrder totals, balance, payment status and product count are
// derived from its lines and vendor payments.
type PurchaseOrder struct {
	ID            int64                  `json:"id"`
	POUID         string                 `json:"poUid"`
	ContactID     int64                  `json:"contactId"`
	ContactName   string                 `json:"contactName,omitempty"`
	OrderDate     time.Time              `json:"orderDate"`
	ExpectedDate  *time.Time             `json:"expectedDate,omitempty"`
	TotalAmount   decimal.Decimal        `json:"totalAmount"`
	TotalPaid     decimal.Decimal        `json:"totalPaid"`
	Balance       decimal.Decimal        `json:"balance"`
	PaymentStatus balances.PaymentStatus `json:"paymentStatus"`
	ProductCount  int                    `json:"productCount"`
	Notes         *string                `json:"notes,omitempty"`
	CreatedBy     int64                  `json:"createdBy,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
	Lines         []Line                 `json:"lines,omitempty"`
}

func (po PurchaseOrder) eventRow() balances.Row {
	return balances.Row{"contactId": po.ContactID, "balance": po.Balance.String()}
}

type Line struct {
	ID              int64           `json:"id"`
	PurchaseOrderID int64           `json:"purchaseOrderId"`
	ProductID       *int64          `json:"productId,omitempty"`
	Description     string          `json:"description"`
	Quantity        int64           `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	LineTotal       decimal.Decimal `json:"lineTotal"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func (l Line) eventRow() balances.Row {
	return balances.Row{"purchaseOrderId": l.PurchaseOrderID, "lineTotal": l.LineTotal.String()}
}

// VendorPayment counts towards its purchase order as soon as it is recorded.
type VendorPayment struct {
	ID              int64           `json:"id"`
	PurchaseOrderID int64           `json:"purchaseOrderId"`
	ContactID       int64           `json:"contactId"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     time.Time       `json:"paymentDate"`
	Method          string          `json:"method"`
	Reference       *string         `json:"reference,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func (p VendorPayment) eventRow() balances.Row {
	return balances.Row{"purchaseOrderId": p.PurchaseOrderID, "amount": p.Amount.String()}
}
