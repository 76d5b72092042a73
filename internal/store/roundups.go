package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/model"
)

// GetRoundUpConfig returns a user's round-up configuration.
func (s *Store) GetRoundUpConfig(ctx context.Context, userID string) (model.RoundUpConfig, error) {
	var c model.RoundUpConfig
	var enabled, multiplier int
	var rule, cadence, minimum, updatedAt string
	var daily, weekly, enabledAt sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT user_id, enabled, rule, multiplier, daily_cap, weekly_cap,
		goal_id, cadence, minimum_transfer, enabled_at, updated_at FROM roundup_config WHERE user_id = ?`, userID).
		Scan(&c.UserID, &enabled, &rule, &multiplier, &daily, &weekly, &c.GoalID, &cadence, &minimum, &enabledAt, &updatedAt)
	if err == sql.ErrNoRows {
		return model.RoundUpConfig{}, fmt.Errorf("round-up config for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return model.RoundUpConfig{}, fmt.Errorf("reading round-up config: %w", err)
	}

	c.Enabled = enabled != 0
	c.Rule = model.RoundingRule(rule)
	c.Multiplier = model.ClampMultiplier(multiplier)
	c.Cadence = model.Cadence(cadence)
	if c.DailyCap, err = parseDecimalPtr(daily); err != nil {
		return model.RoundUpConfig{}, err
	}
	if c.WeeklyCap, err = parseDecimalPtr(weekly); err != nil {
		return model.RoundUpConfig{}, err
	}
	if c.MinimumTransfer, err = parseDecimal(minimum); err != nil {
		return model.RoundUpConfig{}, err
	}
	since, err := parseTimePtr(enabledAt)
	if err != nil {
		return model.RoundUpConfig{}, err
	}
	if since != nil {
		c.EnabledAt = *since
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.RoundUpConfig{}, err
	}
	return c, nil
}

// SaveRoundUpConfig replaces a user's round-up configuration.
func (s *Store) SaveRoundUpConfig(ctx context.Context, c model.RoundUpConfig) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO roundup_config
		(user_id, enabled, rule, multiplier, daily_cap, weekly_cap, goal_id, cadence, minimum_transfer, enabled_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			enabled = excluded.enabled,
			rule = excluded.rule,
			multiplier = excluded.multiplier,
			daily_cap = excluded.daily_cap,
			weekly_cap = excluded.weekly_cap,
			goal_id = excluded.goal_id,
			cadence = excluded.cadence,
			minimum_transfer = excluded.minimum_transfer,
			enabled_at = excluded.enabled_at,
			updated_at = excluded.updated_at`,
		c.UserID, boolInt(c.Enabled), string(c.Rule), c.Multiplier.Int(),
		formatDecimalPtr(c.DailyCap), formatDecimalPtr(c.WeeklyCap), c.GoalID, string(c.Cadence),
		c.MinimumTransfer.String(), formatTimePtr(nonZero(c.EnabledAt)), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving round-up config: %w", err)
	}
	return nil
}

const roundUpColumns = `id, user_id, source_transaction_id, original_amount, round_up, multiplied,
	status, goal_id, batch_id, occurred_at, created_at, transferred_at`

func scanRoundUp(sc scanner) (model.RoundUpTransaction, error) {
	var r model.RoundUpTransaction
	var original, roundUp, multiplied, status, occurredAt, createdAt string
	var transferredAt sql.NullString
	if err := sc.Scan(&r.ID, &r.UserID, &r.SourceTransactionID, &original, &roundUp, &multiplied,
		&status, &r.GoalID, &r.BatchID, &occurredAt, &createdAt, &transferredAt); err != nil {
		return r, err
	}
	r.Status = model.RoundUpStatus(status)

	var err error
	if r.OriginalAmount, err = parseDecimal(original); err != nil {
		return r, err
	}
	if r.RoundUp, err = parseDecimal(roundUp); err != nil {
		return r, err
	}
	if r.Multiplied, err = parseDecimal(multiplied); err != nil {
		return r, err
	}
	if r.OccurredAt, err = parseTime(occurredAt); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	if r.TransferredAt, err = parseTimePtr(transferredAt); err != nil {
		return r, err
	}
	return r, nil
}

// CreateRoundUpTransaction inserts a round-up. A second round-up for the
// same source transaction returns ErrConflict.
func (s *Store) CreateRoundUpTransaction(ctx context.Context, r model.RoundUpTransaction) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO roundup_transactions (`+roundUpColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_transaction_id) DO NOTHING`,
		r.ID, r.UserID, r.SourceTransactionID, r.OriginalAmount.String(), r.RoundUp.String(),
		r.Multiplied.String(), string(r.Status), r.GoalID, r.BatchID,
		formatTime(r.OccurredAt), formatTime(r.CreatedAt), formatTimePtr(r.TransferredAt))
	if err != nil {
		return fmt.Errorf("creating round-up: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("round-up for transaction %s: %w", r.SourceTransactionID, ErrConflict)
	}
	return nil
}

// RecordRoundUpEvaluation notes that a source transaction was evaluated
// and produced no round-up. The first outcome recorded for a transaction
// is kept.
func (s *Store) RecordRoundUpEvaluation(ctx context.Context, userID, sourceTransactionID, outcome string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO roundup_evaluations
		(source_transaction_id, user_id, outcome, evaluated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(source_transaction_id) DO NOTHING`,
		sourceTransactionID, userID, outcome, formatTime(at))
	if err != nil {
		return fmt.Errorf("recording round-up evaluation: %w", err)
	}
	return nil
}

// RoundUpEvaluation returns the outcome recorded for a source transaction
// that produced no round-up, or ErrNotFound.
func (s *Store) RoundUpEvaluation(ctx context.Context, sourceTransactionID string) (string, error) {
	var outcome string
	err := s.db.QueryRowContext(ctx, `SELECT outcome FROM roundup_evaluations
		WHERE source_transaction_id = ?`, sourceTransactionID).Scan(&outcome)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("evaluation of %s: %w", sourceTransactionID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading round-up evaluation: %w", err)
	}
	return outcome, nil
}

// RoundUpBySource returns the round-up recorded for a source transaction.
func (s *Store) RoundUpBySource(ctx context.Context, sourceTransactionID string) (model.RoundUpTransaction, error) {
	r, err := scanRoundUp(s.db.QueryRowContext(ctx, `SELECT `+roundUpColumns+`
		FROM roundup_transactions WHERE source_transaction_id = ?`, sourceTransactionID))
	if err == sql.ErrNoRows {
		return r, fmt.Errorf("round-up for transaction %s: %w", sourceTransactionID, ErrNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("reading round-up: %w", err)
	}
	return r, nil
}

// SumCapped returns the total multiplied amount of a user's pending and
// transferred round-ups whose source transaction falls in [from, to).
func (s *Store) SumCapped(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT multiplied FROM roundup_transactions
		WHERE user_id = ? AND status IN (?, ?) AND occurred_at >= ? AND occurred_at < ?`,
		userID, string(model.RoundUpPending), string(model.RoundUpTransferred), formatTime(from), formatTime(to))
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing round-ups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sum := decimal.Zero
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return decimal.Zero, err
		}
		d, err := parseDecimal(m)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(d)
	}
	return sum, rows.Err()
}

// ListRoundUps returns a user's round-ups, oldest first. With statuses
// given, only those statuses are returned.
func (s *Store) ListRoundUps(ctx context.Context, userID string, statuses ...model.RoundUpStatus) ([]model.RoundUpTransaction, error) {
	return s.queryRoundUps(ctx, `SELECT `+roundUpColumns+` FROM roundup_transactions
		WHERE user_id = ? ORDER BY occurred_at, id`, statuses, userID)
}

// UnbatchedPending returns a user's pending round-ups not yet in a batch.
func (s *Store) UnbatchedPending(ctx context.Context, userID string) ([]model.RoundUpTransaction, error) {
	return s.queryRoundUps(ctx, `SELECT `+roundUpColumns+` FROM roundup_transactions
		WHERE user_id = ? AND status = ? AND batch_id = '' ORDER BY occurred_at, id`,
		nil, userID, string(model.RoundUpPending))
}

func (s *Store) queryRoundUps(ctx context.Context, query string, statuses []model.RoundUpStatus, args ...any) ([]model.RoundUpTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing round-ups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	want := make(map[model.RoundUpStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	var out []model.RoundUpTransaction
	for rows.Next() {
		r, err := scanRoundUp(rows)
		if err != nil {
			return nil, err
		}
		if len(want) > 0 && !want[r.Status] {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
