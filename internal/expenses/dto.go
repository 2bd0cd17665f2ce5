package expenses

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

type CreateExpenseRequest struct {
	Category    string          `json:"category" validate:"required,max=100"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	ExpenseDate *shared.Date    `json:"expenseDate,omitempty"`
	ContactID   *int64          `json:"contactId,omitempty" validate:"omitempty,gt=0"`
	Notes       *string         `json:"notes,omitempty"`
}

type ListExpensesRequest struct {
	Category  string
	ContactID int64
	From, To  *time.Time
	Page      shared.PageRequest
}
