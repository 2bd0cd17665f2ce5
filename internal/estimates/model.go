package estimates

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
)

// Status is the user-managed lifecycle of an estimate. Unlike invoice payment
// status it is never derived.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

var transitions = map[Status][]Status{
	StatusDraft: {StatusSent},
	StatusSent:  {StatusAccepted, StatusRejected, StatusExpired},
}

// CanTransition reports whether an estimate in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Estimate struct {
	ID                 int64           `json:"id"`
	EstimateUID        string          `json:"estimateUid"`
	ContactID          int64           `json:"contactId"`
	ContactName        string          `json:"contactName,omitempty"`
	IssueDate          time.Time       `json:"issueDate"`
	ExpiryDate         *time.Time      `json:"expiryDate,omitempty"`
	Status             Status          `json:"status"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	TotalCredits       decimal.Decimal `json:"totalCredits"`
	Balance            decimal.Decimal `json:"balance"`
	ConvertedToInvoice bool            `json:"convertedToInvoice"`
	InvoiceID          *int64          `json:"invoiceId,omitempty"`
	Notes              *string         `json:"notes,omitempty"`
	CreatedBy          int64           `json:"createdBy,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	LineItems          []LineItem      `json:"lineItems,omitempty"`
}

type LineItem struct {
	ID          int64           `json:"id"`
	EstimateID  int64           `json:"estimateId"`
	ProductID   *int64          `json:"productId,omitempty"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (l LineItem) eventRow() balances.Row {
	return balances.Row{"estimateId": l.EstimateID, "lineTotal": l.LineTotal.String()}
}

// InvoiceDraft is the invoice header written by a conversion.
type InvoiceDraft struct {
	InvoiceUID string
	ContactID  int64
	EstimateID int64
	IssueDate  time.Time
	DueDate    time.Time
	Notes      *string
	CreatedBy  int64
}

func (d InvoiceDraft) eventRow() balances.Row {
	return balances.Row{"contactId": d.ContactID, "balance": "0"}
}
