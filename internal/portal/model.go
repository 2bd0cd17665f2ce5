// Package portal serves contact-scoped read views to customers and vendors
// who sign in with a PIN.
package portal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
)

// Credentials is the stored portal login of a contact.
type Credentials struct {
	ContactID int64
	PinHash   string
	Active    bool
}

// Account is the contact as the portal shows it.
type Account struct {
	ID              int64           `json:"id"`
	ContactUID      string          `json:"contactUid"`
	Name            string          `json:"name"`
	Email           *string         `json:"email,omitempty"`
	Phone           *string         `json:"phone,omitempty"`
	Address         *string         `json:"address,omitempty"`
	CustomerBalance decimal.Decimal `json:"customerBalance"`
	VendorBalance   decimal.Decimal `json:"vendorBalance"`
	NetBalance      decimal.Decimal `json:"netBalance"`
}

type Invoice struct {
	ID            int64                  `json:"id"`
	InvoiceUID    string                 `json:"invoiceUid"`
	IssueDate     time.Time              `json:"issueDate"`
	DueDate       *time.Time             `json:"dueDate,omitempty"`
	TotalAmount   decimal.Decimal        `json:"totalAmount"`
	TotalPaid     decimal.Decimal        `json:"totalPaid"`
	TotalCredits  decimal.Decimal        `json:"totalCredits"`
	Balance       decimal.Decimal        `json:"balance"`
	PaymentStatus balances.PaymentStatus `json:"paymentStatus"`
}

type Estimate struct {
	ID                 int64           `json:"id"`
	EstimateUID        string          `json:"estimateUid"`
	IssueDate          time.Time       `json:"issueDate"`
	ExpiryDate         *time.Time      `json:"expiryDate,omitempty"`
	Status             string          `json:"status"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	Balance            decimal.Decimal `json:"balance"`
	ConvertedToInvoice bool            `json:"convertedToInvoice"`
}

type PurchaseOrder struct {
	ID            int64                  `json:"id"`
	POUID         string                 `json:"poUid"`
	OrderDate     time.Time              `json:"orderDate"`
	ExpectedDate  *time.Time             `json:"expectedDate,omitempty"`
	TotalAmount   decimal.Decimal        `json:"totalAmount"`
	TotalPaid     decimal.Decimal        `json:"totalPaid"`
	Balance       decimal.Decimal        `json:"balance"`
	PaymentStatus balances.PaymentStatus `json:"paymentStatus"`
}

// Payment is a customer payment the contact made or a vendor payment the
// business made to the contact.
type Payment struct {
	ID          int64           `json:"id"`
	Kind        string          `json:"kind"`
	DocumentID  int64           `json:"documentId"`
	DocumentUID string          `json:"documentUid"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"paymentDate"`
	Method      string          `json:"method"`
	Status      string          `json:"status"`
}

// Payment kinds.
const (
	PaymentReceived = "received"
	PaymentSent     = "sent"
)

type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=200"`
	PIN        string `json:"pin" validate:"required,len=6,numeric"`
}

type LoginResponse struct {
	Token   string  `json:"token"`
	Account Account `json:"contact"`
}
