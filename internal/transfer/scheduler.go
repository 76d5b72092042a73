// Package transfer sweeps pending round-ups into savings goals. Each sweep
// is a batch with frozen membership submitted under a deterministic
// idempotency key, so a retried batch can never move money twice.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/activity"
	"github.com/cleared-dev/pennywise/internal/funds"
	"github.com/cleared-dev/pennywise/internal/id"
	"github.com/cleared-dev/pennywise/internal/logger"
	"github.com/cleared-dev/pennywise/internal/model"
	"github.com/cleared-dev/pennywise/internal/store"
	"github.com/cleared-dev/pennywise/internal/userlock"
)

// Store is the persistence the scheduler needs. *store.Store satisfies it.
type Store interface {
	GetRoundUpConfig(ctx context.Context, userID string) (model.RoundUpConfig, error)
	GetGoal(ctx context.Context, id string) (model.Goal, error)
	OpenBatches(ctx context.Context, userID string) ([]model.TransferBatch, error)
	UnbatchedPending(ctx context.Context, userID string) ([]model.RoundUpTransaction, error)
	CreateBatch(ctx context.Context, b model.TransferBatch) error
	CompleteBatch(ctx context.Context, batchID, transferID string, at time.Time) error
	RecordBatchFailure(ctx context.Context, batchID, reason string, at time.Time) (int, error)
	FailBatch(ctx context.Context, batchID, reason string, at time.Time) error
	TransferState(ctx context.Context, userID string) (time.Time, bool, error)
	SetTransferState(ctx context.Context, userID string, at time.Time) error
}

// Sink receives user-visible events. *activity.Log satisfies it.
type Sink interface {
	Record(entries ...activity.Entry) error
}

// Options is the retry policy.
type Options struct {
	MaxAttempts   int
	SubmitTimeout time.Duration
}

// DefaultOptions returns three attempts with a 30 second submit timeout.
func DefaultOptions() Options {
	return Options{MaxAttempts: 3, SubmitTimeout: 30 * time.Second}
}

// Outcome is what happened to one batch in a cycle.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRetrying  Outcome = "retrying"  // attempt failed, batch stays open
	OutcomeFailed    Outcome = "failed"    // gave up; batch and round-ups failed
	OutcomeUnsettled Outcome = "unsettled" // transfer confirmed but not yet applied
	OutcomeConflict  Outcome = "conflict"  // membership was claimed elsewhere
)

// BatchResult reports one batch.
type BatchResult struct {
	BatchID    string
	GoalID     string
	Amount     decimal.Decimal
	RoundUps   int
	Outcome    Outcome
	Attempts   int
	TransferID string
	Replayed   bool
	Error      string
}

// Deferral is a goal whose pending total is below the minimum transfer.
type Deferral struct {
	GoalID   string
	Amount   decimal.Decimal
	RoundUps int
	Reason   string
}

// CycleReport is the outcome of RunCycle.
type CycleReport struct {
	UserID   string
	Ran      bool
	NextRun  time.Time // set when the cadence gate held the cycle back
	Batches  []BatchResult
	Deferred []Deferral
}

// Completed returns the number of batches applied to goals.
func (r CycleReport) Completed() int {
	n := 0
	for _, b := range r.Batches {
		if b.Outcome == OutcomeCompleted {
			n++
		}
	}
	return n
}

// Scheduler runs transfer cycles.
type Scheduler struct {
	store  Store
	mover  funds.Mover
	locker *userlock.Locker
	sink   Sink
	opts   Options
	logger zerolog.Logger
}

// NewScheduler creates a Scheduler. locker must be the one the round-up
// engine uses; a nil sink discards activity.
func NewScheduler(st Store, mover funds.Mover, locker *userlock.Locker, sink Sink, opts Options, logger zerolog.Logger) *Scheduler {
	if sink == nil {
		sink = activity.Discard{}
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Scheduler{store: st, mover: mover, locker: locker, sink: sink, opts: opts, logger: logger}
}

// RunCycle sweeps the user's pending round-ups. It retries open batches,
// then batches unbatched round-ups per goal. Unless force is set, nothing
// runs until the configured cadence has elapsed since the previous cycle.
func (s *Scheduler) RunCycle(ctx context.Context, userID string, now time.Time, force bool) (CycleReport, error) {
	unlock := s.locker.Lock(userID)
	defer unlock()

	log := logger.ForUser(s.logger, userID)
	report := CycleReport{UserID: userID}

	cfg, err := s.store.GetRoundUpConfig(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("reading round-up config: %w", err)
	}

	if !force {
		last, ok, err := s.store.TransferState(ctx, userID)
		if err != nil {
			return report, err
		}
		if ok && now.Before(cfg.Cadence.Next(last)) {
			report.NextRun = cfg.Cadence.Next(last)
			log.Debug().Time("next_run", report.NextRun).Msg("transfer cycle not due")
			return report, nil
		}
	}
	report.Ran = true

	open, err := s.store.OpenBatches(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("listing open batches: %w", err)
	}
	for _, b := range open {
		res, err := s.process(ctx, b, now, log)
		if err != nil {
			return report, err
		}
		report.Batches = append(report.Batches, res)
	}

	pending, err := s.store.UnbatchedPending(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("listing pending round-ups: %w", err)
	}
	for _, g := range groupByGoal(pending) {
		if g.goalID == "" {
			report.Deferred = append(report.Deferred, Deferral{Amount: g.total, RoundUps: len(g.ids), Reason: "no linked goal"})
			continue
		}
		if g.total.LessThan(cfg.MinimumTransfer) {
			report.Deferred = append(report.Deferred, Deferral{
				GoalID: g.goalID, Amount: g.total, RoundUps: len(g.ids),
				Reason: "below minimum transfer " + cfg.MinimumTransfer.StringFixed(2),
			})
			continue
		}

		b := model.TransferBatch{
			ID:         id.BatchKey(g.ids),
			UserID:     userID,
			GoalID:     g.goalID,
			Amount:     g.total,
			RoundUpIDs: g.ids,
			Status:     model.BatchOpen,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.CreateBatch(ctx, b); err != nil {
			if errors.Is(err, store.ErrConflict) {
				log.Warn().Err(err).Str("batch_id", b.ID).Msg("batch membership already claimed")
				report.Batches = append(report.Batches, BatchResult{
					BatchID: b.ID, GoalID: b.GoalID, Amount: b.Amount, RoundUps: len(b.RoundUpIDs),
					Outcome: OutcomeConflict, Error: err.Error(),
				})
				continue
			}
			return report, fmt.Errorf("creating batch: %w", err)
		}
		log.Info().Str("batch_id", b.ID).Str("goal_id", b.GoalID).Str("amount", b.Amount.StringFixed(2)).
			Int("round_ups", len(b.RoundUpIDs)).Msg("transfer batch created")

		res, err := s.process(ctx, b, now, log)
		if err != nil {
			return report, err
		}
		report.Batches = append(report.Batches, res)
	}

	if err := s.store.SetTransferState(ctx, userID, now); err != nil {
		return report, err
	}
	log.Info().Int("batches", len(report.Batches)).Int("completed", report.Completed()).
		Int("deferred", len(report.Deferred)).Msg("transfer cycle complete")
	return report, nil
}

// process submits one open batch and applies the result. Only errors that
// should stop the whole cycle are returned; per-batch trouble is reported
// in the result.
func (s *Scheduler) process(ctx context.Context, b model.TransferBatch, now time.Time, log zerolog.Logger) (BatchResult, error) {
	res := BatchResult{
		BatchID:  b.ID,
		GoalID:   b.GoalID,
		Amount:   b.Amount,
		RoundUps: len(b.RoundUpIDs),
		Attempts: b.Attempts,
	}
	blog := logger.WithFields(log, map[string]string{"batch_id": b.ID, "goal_id": b.GoalID})

	g, err := s.store.GetGoal(ctx, b.GoalID)
	switch {
	case errors.Is(err, store.ErrNotFound) || (err == nil && g.UserID != b.UserID):
		return s.fail(ctx, b, res, "goal not found", now, blog)
	case err != nil:
		return res, fmt.Errorf("reading goal %s: %w", b.GoalID, err)
	case !g.Active:
		return s.fail(ctx, b, res, "goal is archived", now, blog)
	}

	subCtx := ctx
	if s.opts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		subCtx, cancel = context.WithTimeout(ctx, s.opts.SubmitTimeout)
		defer cancel()
	}
	receipt, err := s.mover.SubmitTransfer(subCtx, model.TransferRequest{
		UserID:         b.UserID,
		Amount:         b.Amount,
		GoalID:         b.GoalID,
		IdempotencyKey: b.ID,
	})
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if errors.Is(err, funds.ErrInvalidRequest) {
			return s.fail(ctx, b, res, err.Error(), now, blog)
		}

		attempts, rerr := s.store.RecordBatchFailure(ctx, b.ID, err.Error(), now)
		if rerr != nil {
			return res, fmt.Errorf("recording failure: %w", rerr)
		}
		res.Attempts = attempts
		if attempts >= s.opts.MaxAttempts {
			return s.fail(ctx, b, res, fmt.Sprintf("%s after %d attempts", err, attempts), now, blog)
		}
		blog.Warn().Err(err).Int("attempts", attempts).Msg("transfer attempt failed")
		res.Outcome = OutcomeRetrying
		res.Error = err.Error()
		return res, nil
	}

	res.TransferID = receipt.TransferID
	res.Replayed = receipt.Replayed
	if err := s.store.CompleteBatch(ctx, b.ID, receipt.TransferID, now); err != nil {
		// The money moved; the next cycle replays the same key and applies it.
		blog.Error().Err(err).Str("transfer_id", receipt.TransferID).Msg("completing batch")
		res.Outcome = OutcomeUnsettled
		res.Error = err.Error()
		return res, nil
	}

	blog.Info().Str("transfer_id", receipt.TransferID).Bool("replayed", receipt.Replayed).
		Str("amount", b.Amount.StringFixed(2)).Msg("transfer batch completed")
	s.record(blog, activity.Entry{
		Timestamp: now, UserID: b.UserID, Component: "transfer", Action: "batch_completed",
		Subject: b.ID, Details: fmt.Sprintf("%s to goal %s (%d round-ups)", b.Amount.StringFixed(2), g.Name, len(b.RoundUpIDs)),
	})
	res.Outcome = OutcomeCompleted
	return res, nil
}

func (s *Scheduler) fail(ctx context.Context, b model.TransferBatch, res BatchResult, reason string, now time.Time, log zerolog.Logger) (BatchResult, error) {
	if err := s.store.FailBatch(ctx, b.ID, reason, now); err != nil {
		return res, fmt.Errorf("failing batch: %w", err)
	}
	log.Error().Str("reason", reason).Msg("transfer batch failed")
	s.record(log, activity.Entry{
		Timestamp: now, UserID: b.UserID, Component: "transfer", Action: "batch_failed",
		Subject: b.ID, Details: reason,
	})
	res.Outcome = OutcomeFailed
	res.Error = reason
	return res, nil
}

func (s *Scheduler) record(log zerolog.Logger, e activity.Entry) {
	if err := s.sink.Record(e); err != nil {
		log.Warn().Err(err).Msg("writing activity log")
	}
}

type goalGroup struct {
	goalID string
	ids    []string
	total  decimal.Decimal
}

// groupByGoal groups round-ups by captured goal id in order of first
// appearance.
func groupByGoal(pending []model.RoundUpTransaction) []*goalGroup {
	var groups []*goalGroup
	byGoal := make(map[string]*goalGroup)
	for _, r := range pending {
		g, ok := byGoal[r.GoalID]
		if !ok {
			g = &goalGroup{goalID: r.GoalID, total: decimal.Zero}
			byGoal[r.GoalID] = g
			groups = append(groups, g)
		}
		g.ids = append(g.ids, r.ID)
		g.total = g.total.Add(r.Multiplied)
	}
	return groups
}
