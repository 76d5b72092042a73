package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind separates obligatory bills from discretionary subscriptions.
type Kind string

const (
	KindBill         Kind = "bill"
	KindSubscription Kind = "subscription"
)

// DeactivationReason records why a recurring record stopped being active.
type DeactivationReason string

const (
	DeactivatedNone   DeactivationReason = ""
	DeactivatedMissed DeactivationReason = "missed"
	DeactivatedUser   DeactivationReason = "user"
)

// Recurring holds the fields shared by bills and subscriptions.
type Recurring struct {
	ID                 string
	UserID             string
	Merchant           string // display name, most recent spelling
	MerchantKey        string // normalized key used for matching
	Amount             decimal.Decimal
	Frequency          Frequency
	NextDueDate        time.Time
	LastSeen           time.Time
	Confidence         float64
	MissedCount        int
	Active             bool
	DeactivationReason DeactivationReason
	Category           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Bill is an obligatory recurring charge (utilities, rent, insurance).
type Bill struct {
	Recurring
}

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive        SubscriptionStatus = "active"
	SubscriptionTrialEnding   SubscriptionStatus = "trial-ending"
	SubscriptionPriceIncrease SubscriptionStatus = "price-increase"
	SubscriptionPaused        SubscriptionStatus = "paused"
	SubscriptionCancelled     SubscriptionStatus = "cancelled"
)

// Difficulty classifies how hard a subscription is to cancel.
type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyModerate Difficulty = "moderate"
	DifficultyHard     Difficulty = "hard"
)

// Subscription is a discretionary recurring service charge.
type Subscription struct {
	Recurring
	Status                 SubscriptionStatus
	CancellationDifficulty Difficulty
	LastUsedAt             *time.Time
	ValueScore             float64
}
