package invoices

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
)

// Invoice totals, balance and payment status are derived; clients never
// write them.
type Invoice struct {
	ID            int64                  `json:"id"`
	InvoiceUID    string                 `json:"invoiceUid"`
	ContactID     int64                  `json:"contactId"`
	ContactName   string                 `json:"contactName,omitempty"`
	EstimateID    *int64                 `json:"estimateId,omitempty"`
	IssueDate     time.Time              `json:"issueDate"`
	DueDate       *time.Time             `json:"dueDate,omitempty"`
	TotalAmount   decimal.Decimal        `json:"totalAmount"`
	TotalPaid     decimal.Decimal        `json:"totalPaid"`
	TotalCredits  decimal.Decimal        `json:"totalCredits"`
	Balance       decimal.Decimal        `json:"balance"`
	PaymentStatus balances.PaymentStatus `json:"paymentStatus"`
	Notes         *string                `json:"notes,omitempty"`
	CreatedBy     int64                  `json:"createdBy,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
	LineItems     []LineItem             `json:"lineItems,omitempty"`
}

func (i Invoice) eventRow() balances.Row {
	return balances.Row{
		"contactId": i.ContactID,
		"balance":   i.Balance.String(),
	}
}

type LineItem struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoiceId"`
	ProductID   *int64          `json:"productId,omitempty"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (l LineItem) eventRow() balances.Row {
	return balances.Row{"invoiceId": l.InvoiceID, "lineTotal": l.LineTotal.String()}
}

// PaymentState is the approval state of a customer payment.
type PaymentState string

const (
	PaymentPending  PaymentState = "pending"
	PaymentApproved PaymentState = "approved"
	PaymentRejected PaymentState = "rejected"
)

type CustomerPayment struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoiceId"`
	ContactID   int64           `json:"contactId"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"paymentDate"`
	Method      string          `json:"method"`
	Reference   *string         `json:"reference,omitempty"`
	Status      PaymentState    `json:"status"`
	ApprovedBy  *int64          `json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time      `json:"approvedAt,omitempty"`
	Notes       *string         `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (p CustomerPayment) eventRow() balances.Row {
	return balances.Row{"invoiceId": p.InvoiceID, "status": string(p.Status), "amount": p.Amount.String()}
}

// CustomerCredit reduces the balance of exactly one invoice or estimate.
type CustomerCredit struct {
	ID         int64           `json:"id"`
	ContactID  int64           `json:"contactId"`
	InvoiceID  *int64          `json:"invoiceId,omitempty"`
	EstimateID *int64          `json:"estimateId,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     *string         `json:"reason,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func (c CustomerCredit) eventRow() balances.Row {
	row := balances.Row{"amount": c.Amount.String()}
	if c.InvoiceID != nil {
		row["invoiceId"] = *c.InvoiceID
	}
	if c.EstimateID != nil {
		row["estimateId"] = *c.EstimateID
	}
	return row
}
