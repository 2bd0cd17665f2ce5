package balances

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is derived from an aggregate's totals and due date.
type PaymentStatus string

// Derived payment statuses.
const (
	StatusPaid    PaymentStatus = "paid"
	StatusPartial PaymentStatus = "partial"
	StatusOverdue PaymentStatus = "overdue"
	StatusPending PaymentStatus = "pending"
)

// DeriveStatus applies, in order: paid, partial, overdue, pending. A document
// becomes overdue the day after its due date.
func DeriveStatus(total, paid, credits, balance decimal.Decimal, due *time.Time, now time.Time) PaymentStatus {
	settled := paid.Add(credits)
	switch {
	case balance.LessThanOrEqual(decimal.Zero) && total.GreaterThan(decimal.Zero):
		return StatusPaid
	case settled.GreaterThan(decimal.Zero) && settled.LessThan(total):
		return StatusPartial
	case balance.GreaterThan(decimal.Zero) && due != nil && pastDue(*due, now):
		return StatusOverdue
	default:
		return StatusPending
	}
}

func pastDue(due, now time.Time) bool {
	due = due.UTC()
	now = now.UTC()
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return dueDay.Before(today)
}
