package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurringSeries is a detector working-set cluster: debits at one merchant
// with amounts within tolerance. It is never persisted.
type RecurringSeries struct {
	MerchantKey string
	Merchant    string // most recent raw spelling
	MCC         string // most recent non-empty merchant category code
	Occurrences []Transaction // oldest first
	Intervals   []int         // whole days between consecutive occurrences
	Frequency   Frequency
	Confidence  float64
}

// Amounts returns occurrence magnitudes, oldest first.
func (s RecurringSeries) Amounts() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.Occurrences))
	for i, t := range s.Occurrences {
		out[i] = t.Magnitude()
	}
	return out
}

// Amount is the magnitude of the most recent occurrence.
func (s RecurringSeries) Amount() decimal.Decimal {
	if len(s.Occurrences) == 0 {
		return decimal.Zero
	}
	return s.Occurrences[len(s.Occurrences)-1].Magnitude()
}

// LastOccurrence returns the timestamp of the most recent occurrence.
func (s RecurringSeries) LastOccurrence() time.Time {
	if len(s.Occurrences) == 0 {
		return time.Time{}
	}
	return s.Occurrences[len(s.Occurrences)-1].Timestamp
}

// NextDueDate is the last occurrence plus one period.
func (s RecurringSeries) NextDueDate() time.Time {
	return s.LastOccurrence().AddDate(0, 0, s.Frequency.Days())
}
