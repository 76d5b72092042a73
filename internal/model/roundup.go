package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundingRule selects the unit transactions are rounded up to.
type RoundingRule string

const (
	RoundNearest1 RoundingRule = "nearest-1"
	RoundNearest2 RoundingRule = "nearest-2"
	RoundNearest5 RoundingRule = "nearest-5"
)

// Unit returns the rounding unit in dollars, or false for an unknown rule.
func (r RoundingRule) Unit() (decimal.Decimal, bool) {
	switch r {
	case RoundNearest1:
		return decimal.NewFromInt(1), true
	case RoundNearest2:
		return decimal.NewFromInt(2), true
	case RoundNearest5:
		return decimal.NewFromInt(5), true
	}
	return decimal.Zero, false
}

// Cadence is how often pending round-ups are swept to the goal.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// Valid reports whether c is a known cadence.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return true
	}
	return false
}

// Next returns the earliest time a cycle may run after one ran at last.
func (c Cadence) Next(last time.Time) time.Time {
	switch c {
	case CadenceWeekly:
		return last.AddDate(0, 0, 7)
	case CadenceMonthly:
		return last.AddDate(0, 1, 0)
	default:
		return last.AddDate(0, 0, 1)
	}
}

// Multiplier is a round-up multiplier already clamped into 1..10.
// Only ClampMultiplier produces one, so calculations never re-validate.
type Multiplier struct {
	n int
}

const (
	MinMultiplier = 1
	MaxMultiplier = 10
)

// ClampMultiplier clamps n into the supported multiplier range.
func ClampMultiplier(n int) Multiplier {
	if n < MinMultiplier {
		n = MinMultiplier
	}
	if n > MaxMultiplier {
		n = MaxMultiplier
	}
	return Multiplier{n: n}
}

// Int returns the multiplier value; the zero Multiplier reads as 1.
func (m Multiplier) Int() int {
	if m.n < MinMultiplier {
		return MinMultiplier
	}
	return m.n
}

// Decimal returns the multiplier as a decimal factor.
func (m Multiplier) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m.Int()))
}

// RoundUpConfig is the per-user round-up configuration.
type RoundUpConfig struct {
	UserID          string
	Enabled         bool
	Rule            RoundingRule
	Multiplier      Multiplier
	DailyCap        *decimal.Decimal
	WeeklyCap       *decimal.Decimal
	GoalID          string
	Cadence         Cadence
	MinimumTransfer decimal.Decimal
	EnabledAt       time.Time // when round-ups were last switched on; zero if never
	UpdatedAt       time.Time
}

// RoundUpStatus is the state of a round-up record.
type RoundUpStatus string

const (
	RoundUpPending     RoundUpStatus = "pending"
	RoundUpTransferred RoundUpStatus = "transferred"
	RoundUpCancelled   RoundUpStatus = "cancelled"
	RoundUpFailed      RoundUpStatus = "failed"
)

// CountsTowardCap reports whether records in this status consume cap headroom.
func (s RoundUpStatus) CountsTowardCap() bool {
	return s == RoundUpPending || s == RoundUpTransferred
}

// RoundUpTransaction is the round-up derived from one source transaction.
type RoundUpTransaction struct {
	ID                  string
	UserID              string
	SourceTransactionID string
	OriginalAmount      decimal.Decimal
	RoundUp             decimal.Decimal
	Multiplied          decimal.Decimal
	Status              RoundUpStatus
	GoalID              string // captured from config at creation
	BatchID             string // set once the record joins a transfer batch
	OccurredAt          time.Time
	CreatedAt           time.Time
	TransferredAt       *time.Time
}
