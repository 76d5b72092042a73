package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus is the state of a transfer batch.
type BatchStatus string

const (
	BatchOpen        BatchStatus = "open"
	BatchTransferred BatchStatus = "transferred"
	BatchFailed      BatchStatus = "failed"
)

// TransferBatch groups pending round-ups swept to one goal in one transfer.
// Membership is frozen at creation; ID doubles as the idempotency key.
type TransferBatch struct {
	ID         string
	UserID     string
	GoalID     string
	Amount     decimal.Decimal
	RoundUpIDs []string
	Status     BatchStatus
	Attempts   int
	TransferID string
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TransferRequest asks the funds-movement collaborator to move money.
type TransferRequest struct {
	UserID         string
	Amount         decimal.Decimal
	GoalID         string
	IdempotencyKey string
}

// TransferReceipt confirms a completed funds movement.
type TransferReceipt struct {
	TransferID string
	Replayed   bool // true when the key had already been processed
}
