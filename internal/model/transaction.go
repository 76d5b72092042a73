package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformedTransaction is returned by Transaction.Validate.
var ErrMalformedTransaction = errors.New("malformed transaction")

// Transaction is a settled, normalized transaction handed to the engine by a
// transaction source. It is never mutated once observed.
type Transaction struct {
	ID        string
	UserID    string
	Timestamp time.Time
	Amount    decimal.Decimal // negative = debit, positive = credit
	Merchant  string
	MCC       string // merchant category code, optional
}

// IsDebit reports whether the transaction moves money out of the account.
func (t Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}

// Magnitude returns the absolute amount.
func (t Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}

// Validate reports whether the transaction carries everything the engine
// needs. Malformed transactions are skipped, never fatal to a run.
func (t Transaction) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: missing id", ErrMalformedTransaction)
	case t.UserID == "":
		return fmt.Errorf("%w [%s]: missing user id", ErrMalformedTransaction, t.ID)
	case t.Timestamp.IsZero():
		return fmt.Errorf("%w [%s]: missing timestamp", ErrMalformedTransaction, t.ID)
	case t.Amount.IsZero():
		return fmt.Errorf("%w [%s]: missing amount", ErrMalformedTransaction, t.ID)
	case t.Merchant == "":
		return fmt.Errorf("%w [%s]: missing merchant", ErrMalformedTransaction, t.ID)
	}
	return nil
}
