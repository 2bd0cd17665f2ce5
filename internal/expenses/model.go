package expenses

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a standalone cost. It never feeds a derived balance.
type Expense struct {
	ID          int64           `json:"id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate time.Time       `json:"expenseDate"`
	ContactID   *int64          `json:"contactId,omitempty"`
	ContactName *string         `json:"contactName,omitempty"`
	Notes       *string         `json:"notes,omitempty"`
	CreatedBy   int64           `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
