package balances

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the transactional view the recalculator reads and writes through.
// Lock* methods must take a row lock held until the surrounding transaction
// ends and return an error wrapping httpx.ErrNotFound for missing rows.
type Store interface {
	LockInvoice(ctx context.Context, id int64) (InvoiceState, error)
	SumInvoice(ctx context.Context, id int64) (InvoiceSums, error)
	SaveInvoice(ctx context.Context, id int64, state InvoiceState) error

	LockEstimate(ctx context.Context, id int64) (EstimateState, error)
	SumEstimate(ctx context.Context, id int64) (EstimateSums, error)
	SaveEstimate(ctx context.Context, id int64, state EstimateState) error

	LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrderState, error)
	SumPurchaseOrder(ctx context.Context, id int64) (PurchaseOrderSums, error)
	SavePurchaseOrder(ctx context.Context, id int64, state PurchaseOrderState) error

	LockContact(ctx context.Context, id int64) (ContactState, error)
	SumContact(ctx context.Context, id int64) (ContactSums, error)
	SaveContact(ctx context.Context, id int64, state ContactState) error
}

// InvoiceState is the stored aggregate of an invoice.
type InvoiceState struct {
	ContactID     int64
	DueDate       *time.Time
	TotalAmount   decimal.Decimal
	TotalPaid     decimal.Decimal
	TotalCredits  decimal.Decimal
	Balance       decimal.Decimal
	PaymentStatus PaymentStatus
}

func (s InvoiceState) equal(o InvoiceState) bool {
	return s.TotalAmount.Equal(o.TotalAmount) &&
		s.TotalPaid.Equal(o.TotalPaid) &&
		s.TotalCredits.Equal(o.TotalCredits) &&
		s.Balance.Equal(o.Balance) &&
		s.PaymentStatus == o.PaymentStatus
}

// InvoiceSums are the child totals of an invoice.
type InvoiceSums struct {
	Lines            decimal.Decimal
	ApprovedPayments decimal.Decimal
	Credits          decimal.Decimal
}

// EstimateState is the stored aggregate of an estimate.
type EstimateState struct {
	ContactID    int64
	TotalAmount  decimal.Decimal
	TotalCredits decimal.Decimal
	Balance      decimal.Decimal
}

func (s EstimateState) equal(o EstimateState) bool {
	return s.TotalAmount.Equal(o.TotalAmount) &&
		s.TotalCredits.Equal(o.TotalCredits) &&
		s.Balance.Equal(o.Balance)
}

// EstimateSums are the child totals of an estimate.
type EstimateSums struct {
	Lines   decimal.Decimal
	Credits decimal.Decimal
}

// PurchaseOrderState is the stored aggregate of a purchase order.
type PurchaseOrderState struct {
	ContactID     int64
	ExpectedDate  *time.Time
	TotalAmount   decimal.Decimal
	TotalPaid     decimal.Decimal
	Balance       decimal.Decimal
	PaymentStatus PaymentStatus
	ProductCount  int
}

func (s PurchaseOrderState) equal(o PurchaseOrderState) bool {
	return s.TotalAmount.Equal(o.TotalAmount) &&
		s.TotalPaid.Equal(o.TotalPaid) &&
		s.Balance.Equal(o.Balance) &&
		s.PaymentStatus == o.PaymentStatus &&
		s.ProductCount == o.ProductCount
}

// PurchaseOrderSums are the child totals of a purchase order.
type PurchaseOrderSums struct {
	Lines     decimal.Decimal
	Payments  decimal.Decimal
	LineCount int
}

// ContactState is the stored balance set of a contact.
type ContactState struct {
	CustomerBalance decimal.Decimal
	VendorBalance   decimal.Decimal
	NetBalance      decimal.Decimal
}

// ContactSums are the document balances owed by and to a contact.
type ContactSums struct {
	Receivable decimal.Decimal
	Payable    decimal.Decimal
}
