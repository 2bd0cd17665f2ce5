package shared

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

// MoneyScale is the number of decimal places money is stored with.
const MoneyScale = 2

var halfCent = decimal.New(5, -(MoneyScale + 1))

// RoundMoney rounds half-up (towards positive infinity) to MoneyScale places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Add(halfCent).RoundFloor(MoneyScale)
}

// PositiveAmount rounds d for storage and rejects it when nothing is left
// above zero, so 0.004 fails here instead of at the amount > 0 constraint.
func PositiveAmount(field string, d decimal.Decimal) (decimal.Decimal, error) {
	rounded := RoundMoney(d)
	if rounded.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: %s must be at least 0.01", httpx.ErrValidation, field)
	}
	return rounded, nil
}

// LineTotal returns quantity * unitPrice rounded for storage.
func LineTotal(quantity int64, unitPrice decimal.Decimal) decimal.Decimal {
	return RoundMoney(decimal.NewFromInt(quantity).Mul(unitPrice))
}

// SumMoney adds amounts and rounds the result.
func SumMoney(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return RoundMoney(total)
}
