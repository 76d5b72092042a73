// Package funds defines the funds-movement contract and the implementations
// the engine ships with.
package funds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/pennywise/internal/id"
	"github.com/cleared-dev/pennywise/internal/model"
)

// ErrInvalidRequest is returned for requests no mover could accept.
var ErrInvalidRequest = errors.New("invalid transfer request")

// Mover moves money toward a savings goal. Implementations must be
// idempotent by IdempotencyKey: a repeated key returns the original receipt
// and moves nothing.
type Mover interface {
	SubmitTransfer(ctx context.Context, req model.TransferRequest) (model.TransferReceipt, error)
}

// Validate checks the fields every mover relies on.
func Validate(req model.TransferRequest) error {
	switch {
	case req.UserID == "":
		return fmt.Errorf("%w: missing user id", ErrInvalidRequest)
	case req.GoalID == "":
		return fmt.Errorf("%w: missing goal id", ErrInvalidRequest)
	case req.IdempotencyKey == "":
		return fmt.Errorf("%w: missing idempotency key", ErrInvalidRequest)
	case !id.IsBatchKey(req.IdempotencyKey):
		return fmt.Errorf("%w: malformed idempotency key %q", ErrInvalidRequest, req.IdempotencyKey)
	case !req.Amount.IsPositive():
		return fmt.Errorf("%w: amount %s is not positive", ErrInvalidRequest, req.Amount)
	}
	return nil
}

// Recorder persists transfers by idempotency key. *store.Store satisfies it.
type Recorder interface {
	RecordFundTransfer(ctx context.Context, req model.TransferRequest, transferID string, at time.Time) (model.TransferReceipt, error)
}

// Sandbox is a Mover that settles instantly by writing to the local
// fund_transfers table. It stands in for a real bank rail.
type Sandbox struct {
	rec    Recorder
	logger zerolog.Logger
	now    func() time.Time
}

// NewSandbox creates a Sandbox backed by rec.
func NewSandbox(rec Recorder, logger zerolog.Logger) *Sandbox {
	return &Sandbox{rec: rec, logger: logger, now: time.Now}
}

// SubmitTransfer implements Mover.
func (s *Sandbox) SubmitTransfer(ctx context.Context, req model.TransferRequest) (model.TransferReceipt, error) {
	if err := Validate(req); err != nil {
		return model.TransferReceipt{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.TransferReceipt{}, err
	}

	receipt, err := s.rec.RecordFundTransfer(ctx, req, "xfer_"+id.New(), s.now().UTC())
	if err != nil {
		return model.TransferReceipt{}, fmt.Errorf("sandbox transfer: %w", err)
	}
	s.logger.Info().
		Str("user_id", req.UserID).
		Str("goal_id", req.GoalID).
		Str("amount", req.Amount.StringFixed(2)).
		Str("idempotency_key", req.IdempotencyKey).
		Str("transfer_id", receipt.TransferID).
		Bool("replayed", receipt.Replayed).
		Msg("sandbox transfer settled")
	return receipt, nil
}
