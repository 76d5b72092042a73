package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Goal is a savings target. Current always equals the sum of its contributions.
type Goal struct {
	ID        string
	UserID    string
	Name      string
	Target    decimal.Decimal
	Current   decimal.Decimal
	Deadline  *time.Time
	Priority  int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContributionSource says where money credited to a goal came from.
type ContributionSource string

const (
	SourceManual            ContributionSource = "manual"
	SourceRoundUp           ContributionSource = "round-up"
	SourceRecurringTransfer ContributionSource = "recurring-transfer"
	SourceShadowBanking     ContributionSource = "shadow-banking"
)

// Valid reports whether s is a known source.
func (s ContributionSource) Valid() bool {
	switch s {
	case SourceManual, SourceRoundUp, SourceRecurringTransfer, SourceShadowBanking:
		return true
	}
	return false
}

// GoalContribution is one append-only ledger row.
type GoalContribution struct {
	ID        string
	GoalID    string
	Amount    decimal.Decimal
	Source    ContributionSource
	Reference string // transfer batch id for round-ups
	Timestamp time.Time
}
