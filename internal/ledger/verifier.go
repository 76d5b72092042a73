package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/pennywise/internal/model"
)

// Store is the read access the verifier needs. *store.Store satisfies it.
type Store interface {
	ListGoals(ctx context.Context, userID string) ([]model.Goal, error)
	GoalSnapshot(ctx context.Context, goalID string) (model.Goal, []model.GoalContribution, error)
	ListRoundUps(ctx context.Context, userID string, statuses ...model.RoundUpStatus) ([]model.RoundUpTransaction, error)
	ListBatches(ctx context.Context, userID string, statuses ...model.BatchStatus) ([]model.TransferBatch, error)
	ListBills(ctx context.Context, userID string) ([]model.Bill, error)
	ListSubscriptions(ctx context.Context, userID string) ([]model.Subscription, error)
}

// Verifier loads a user's records and validates them.
type Verifier struct {
	store  Store
	logger zerolog.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(store Store, logger zerolog.Logger) *Verifier {
	return &Verifier{store: store, logger: logger}
}

// Collect reads the snapshot Validate checks.
func (v *Verifier) Collect(ctx context.Context, userID string) (Snapshot, error) {
	var s Snapshot
	goals, err := v.store.ListGoals(ctx, userID)
	if err != nil {
		return s, fmt.Errorf("listing goals: %w", err)
	}
	for _, goal := range goals {
		g, contribs, err := v.store.GoalSnapshot(ctx, goal.ID)
		if err != nil {
			return s, fmt.Errorf("reading goal %s: %w", goal.ID, err)
		}
		s.Goals = append(s.Goals, GoalLedger{Goal: g, Contributions: contribs})
	}
	if s.RoundUps, err = v.store.ListRoundUps(ctx, userID); err != nil {
		return s, err
	}
	if s.Batches, err = v.store.ListBatches(ctx, userID); err != nil {
		return s, err
	}
	if s.Bills, err = v.store.ListBills(ctx, userID); err != nil {
		return s, err
	}
	if s.Subscriptions, err = v.store.ListSubscriptions(ctx, userID); err != nil {
		return s, err
	}
	return s, nil
}

// Verify collects and validates one user's records.
func (v *Verifier) Verify(ctx context.Context, userID string) ([]ValidationError, error) {
	s, err := v.Collect(ctx, userID)
	if err != nil {
		return nil, err
	}
	errs := Validate(s)
	for _, e := range errs {
		v.logger.Error().Str("user_id", userID).Int("invariant", e.Invariant).Str("subject", e.Subject).
			Msg(e.Description)
	}
	return errs, nil
}
