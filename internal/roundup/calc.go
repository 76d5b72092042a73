package roundup

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/model"
)

// Calculate returns the round-up for a debit magnitude and the amount after
// the multiplier. roundUp is the distance to the smallest multiple of the
// rule's unit that is ≥ amount, so 0 ≤ roundUp < unit and exact multiples
// yield zero.
func Calculate(amount decimal.Decimal, rule model.RoundingRule, m model.Multiplier) (roundUp, multiplied decimal.Decimal) {
	unit, ok := rule.Unit()
	if !ok || !amount.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	target := amount.Div(unit).Ceil().Mul(unit)
	roundUp = target.Sub(amount)
	return roundUp, roundUp.Mul(m.Decimal())
}

// DayWindow returns the UTC calendar day containing t as [start, end).
func DayWindow(t time.Time) (time.Time, time.Time) {
	y, m, d := t.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// WeekWindow returns the ISO week (Monday start, UTC) containing t.
func WeekWindow(t time.Time) (time.Time, time.Time) {
	day, _ := DayWindow(t)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}
