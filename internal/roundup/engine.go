// Package roundup turns debit transactions into pending round-up records
// toward a savings goal.
package roundup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/id"
	"github.com/cleared-dev/pennywise/internal/model"
	"github.com/cleared-dev/pennywise/internal/store"
	"github.com/cleared-dev/pennywise/internal/userlock"
)

// Store is the persistence the engine needs. *store.Store satisfies it.
type Store interface {
	GetGoal(ctx context.Context, id string) (model.Goal, error)
	GetRoundUpConfig(ctx context.Context, userID string) (model.RoundUpConfig, error)
	SaveRoundUpConfig(ctx context.Context, c model.RoundUpConfig) error
	RoundUpBySource(ctx context.Context, sourceTransactionID string) (model.RoundUpTransaction, error)
	SumCapped(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error)
	CreateRoundUpTransaction(ctx context.Context, r model.RoundUpTransaction) error
	RoundUpEvaluation(ctx context.Context, sourceTransactionID string) (string, error)
	RecordRoundUpEvaluation(ctx context.Context, userID, sourceTransactionID, outcome string, at time.Time) error
}

// Outcome is what Ingest did with a transaction. None are errors.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeExisting      Outcome = "existing"
	OutcomeDisabled      Outcome = "disabled"
	OutcomeBeforeEnabled Outcome = "before-enabled"
	OutcomeNotDebit      Outcome = "not-debit"
	OutcomeExactAmount   Outcome = "exact-amount"
	OutcomeCapReached    Outcome = "cap-reached"
	OutcomeMalformed     Outcome = "malformed"

	// OutcomeDeclined means an earlier Ingest already declined the
	// transaction; Result.Previous holds what it decided.
	OutcomeDeclined Outcome = "declined"
)

// Result is the outcome of ingesting one transaction.
type Result struct {
	Outcome   Outcome
	Previous  Outcome                   // set for declined
	RoundUp   *model.RoundUpTransaction // set for created and existing
	Truncated bool                      // multiplied amount was cut to cap headroom
	Requested decimal.Decimal           // multiplied amount before caps
}

// Engine computes round-ups and enforces caps under the user lock.
type Engine struct {
	store  Store
	locker *userlock.Locker
	logger zerolog.Logger
}

// NewEngine creates an Engine. locker must be shared with the transfer
// scheduler.
func NewEngine(store Store, locker *userlock.Locker, logger zerolog.Logger) *Engine {
	return &Engine{store: store, locker: locker, logger: logger}
}

// Ingest derives at most one round-up from txn. Every debit is decided
// once: re-ingesting returns the record created the first time, or
// OutcomeDeclined when the first evaluation produced none. Later config
// changes or freed cap headroom never revive a declined transaction.
func (e *Engine) Ingest(ctx context.Context, txn model.Transaction, now time.Time) (Result, error) {
	if err := txn.Validate(); err != nil {
		return Result{Outcome: OutcomeMalformed}, nil
	}
	if !txn.IsDebit() {
		return Result{Outcome: OutcomeNotDebit}, nil
	}

	unlock := e.locker.Lock(txn.UserID)
	defer unlock()

	if existing, err := e.store.RoundUpBySource(ctx, txn.ID); err == nil {
		return Result{Outcome: OutcomeExisting, RoundUp: &existing, Requested: existing.Multiplied}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("checking existing round-up: %w", err)
	}

	if prev, err := e.store.RoundUpEvaluation(ctx, txn.ID); err == nil {
		return Result{Outcome: OutcomeDeclined, Previous: Outcome(prev)}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("checking earlier evaluation: %w", err)
	}

	cfg, err := e.store.GetRoundUpConfig(ctx, txn.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return e.decline(ctx, txn, Result{Outcome: OutcomeDisabled}, now)
	}
	if err != nil {
		return Result{}, fmt.Errorf("loading round-up config: %w", err)
	}
	if !cfg.Enabled {
		return e.decline(ctx, txn, Result{Outcome: OutcomeDisabled}, now)
	}
	if txn.Timestamp.Before(cfg.EnabledAt) {
		return e.decline(ctx, txn, Result{Outcome: OutcomeBeforeEnabled}, now)
	}

	roundUp, multiplied := Calculate(txn.Magnitude(), cfg.Rule, cfg.Multiplier)
	if roundUp.IsZero() {
		return e.decline(ctx, txn, Result{Outcome: OutcomeExactAmount}, now)
	}
	res := Result{Requested: multiplied}

	headroom, capped, err := e.headroom(ctx, cfg, txn.Timestamp)
	if err != nil {
		return Result{}, err
	}
	if capped {
		if !headroom.IsPositive() {
			res.Outcome = OutcomeCapReached
			return e.decline(ctx, txn, res, now)
		}
		if multiplied.GreaterThan(headroom) {
			multiplied = headroom
			res.Truncated = true
		}
	}

	rec := model.RoundUpTransaction{
		ID:                  id.New(),
		UserID:              txn.UserID,
		SourceTransactionID: txn.ID,
		OriginalAmount:      txn.Magnitude(),
		RoundUp:             roundUp,
		Multiplied:          multiplied,
		Status:              model.RoundUpPending,
		GoalID:              cfg.GoalID,
		OccurredAt:          txn.Timestamp,
		CreatedAt:           now,
	}
	if err := e.store.CreateRoundUpTransaction(ctx, rec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			existing, gerr := e.store.RoundUpBySource(ctx, txn.ID)
			if gerr != nil {
				return Result{}, gerr
			}
			return Result{Outcome: OutcomeExisting, RoundUp: &existing, Requested: existing.Multiplied}, nil
		}
		return Result{}, err
	}

	res.Outcome = OutcomeCreated
	res.RoundUp = &rec
	return res, nil
}

// decline records that txn produced no round-up so it is never evaluated
// again. Callers hold the user lock.
func (e *Engine) decline(ctx context.Context, txn model.Transaction, res Result, now time.Time) (Result, error) {
	if err := e.store.RecordRoundUpEvaluation(ctx, txn.UserID, txn.ID, string(res.Outcome), now); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Since returns the earliest transaction time worth ingesting for userID:
// the later of now minus lookbackDays and the moment round-ups were last
// enabled. ok is false when round-ups are not enabled.
func (e *Engine) Since(ctx context.Context, userID string, now time.Time, lookbackDays int) (since time.Time, ok bool, err error) {
	cfg, err := e.store.GetRoundUpConfig(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("loading round-up config: %w", err)
	}
	if !cfg.Enabled {
		return time.Time{}, false, nil
	}
	since = now.AddDate(0, 0, -lookbackDays)
	if cfg.EnabledAt.After(since) {
		since = cfg.EnabledAt
	}
	return since, true, nil
}

// headroom returns the smallest remaining allowance across the configured
// caps for the periods containing at. capped is false when no cap is set.
func (e *Engine) headroom(ctx context.Context, cfg model.RoundUpConfig, at time.Time) (decimal.Decimal, bool, error) {
	type window struct {
		limit    *decimal.Decimal
		from, to time.Time
	}
	dayFrom, dayTo := DayWindow(at)
	weekFrom, weekTo := WeekWindow(at)

	var head decimal.Decimal
	capped := false
	for _, w := range []window{{cfg.DailyCap, dayFrom, dayTo}, {cfg.WeeklyCap, weekFrom, weekTo}} {
		if w.limit == nil {
			continue
		}
		used, err := e.store.SumCapped(ctx, cfg.UserID, w.from, w.to)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("summing cap usage: %w", err)
		}
		left := decimal.Max(w.limit.Sub(used), decimal.Zero)
		if !capped || left.LessThan(head) {
			head = left
		}
		capped = true
	}
	return head, capped, nil
}

// Summary counts Ingest outcomes across a batch of transactions.
type Summary struct {
	Outcomes  map[Outcome]int
	Truncated int
	Total     decimal.Decimal // multiplied amount of newly created round-ups
}

// IngestAll ingests txns in order. Malformed transactions are logged and
// skipped; only store failures abort.
func (e *Engine) IngestAll(ctx context.Context, txns []model.Transaction, now time.Time) (Summary, error) {
	sum := Summary{Outcomes: make(map[Outcome]int), Total: decimal.Zero}
	for _, t := range txns {
		res, err := e.Ingest(ctx, t, now)
		if err != nil {
			return sum, fmt.Errorf("ingesting %s: %w", t.ID, err)
		}
		sum.Outcomes[res.Outcome]++
		switch res.Outcome {
		case OutcomeMalformed:
			e.logger.Warn().Str("transaction_id", t.ID).Err(t.Validate()).Msg("skipping malformed transaction")
		case OutcomeCreated:
			sum.Total = sum.Total.Add(res.RoundUp.Multiplied)
			if res.Truncated {
				sum.Truncated++
			}
		}
	}
	return sum, nil
}
