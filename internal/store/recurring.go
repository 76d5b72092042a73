package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cleared-dev/pennywise/internal/model"
)

const recurringColumns = `id, user_id, kind, merchant, merchant_key, amount, frequency_days,
	next_due_date, last_seen, confidence, missed_count, active, deactivation_reason,
	category, status, difficulty, last_used_at, value_score, created_at, updated_at`

// recurringRow is the union of bill and subscription columns.
type recurringRow struct {
	kind model.Kind
	rec  model.Recurring
	sub  model.Subscription
}

func scanRecurring(sc scanner) (recurringRow, error) {
	var r recurringRow
	var kind, amount, nextDue, lastSeen, createdAt, updatedAt, status, difficulty, reason string
	var lastUsed sql.NullString
	var freq, active int
	err := sc.Scan(&r.rec.ID, &r.rec.UserID, &kind, &r.rec.Merchant, &r.rec.MerchantKey,
		&amount, &freq, &nextDue, &lastSeen, &r.rec.Confidence, &r.rec.MissedCount, &active,
		&reason, &r.rec.Category, &status, &difficulty, &lastUsed, &r.sub.ValueScore,
		&createdAt, &updatedAt)
	if err != nil {
		return r, err
	}

	r.kind = model.Kind(kind)
	r.rec.Frequency = model.Frequency(freq)
	r.rec.Active = active != 0
	r.rec.DeactivationReason = model.DeactivationReason(reason)
	if r.rec.Amount, err = parseDecimal(amount); err != nil {
		return r, err
	}
	if r.rec.NextDueDate, err = parseTime(nextDue); err != nil {
		return r, err
	}
	if r.rec.LastSeen, err = parseTime(lastSeen); err != nil {
		return r, err
	}
	if r.rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	if r.rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return r, err
	}
	if r.sub.LastUsedAt, err = parseTimePtr(lastUsed); err != nil {
		return r, err
	}
	r.sub.Status = model.SubscriptionStatus(status)
	r.sub.CancellationDifficulty = model.Difficulty(difficulty)
	r.sub.Recurring = r.rec
	return r, nil
}

func (s *Store) listRecurring(ctx context.Context, userID string, kind model.Kind) ([]recurringRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recurringColumns+`
		FROM recurring WHERE user_id = ? AND kind = ? ORDER BY merchant_key, created_at, id`,
		userID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("listing %ss: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out []recurringRow
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListBills returns all of a user's bills, active or not.
func (s *Store) ListBills(ctx context.Context, userID string) ([]model.Bill, error) {
	rows, err := s.listRecurring(ctx, userID, model.KindBill)
	if err != nil {
		return nil, err
	}
	bills := make([]model.Bill, 0, len(rows))
	for _, r := range rows {
		bills = append(bills, model.Bill{Recurring: r.rec})
	}
	return bills, nil
}

// ListSubscriptions returns all of a user's subscriptions, active or not.
func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]model.Subscription, error) {
	rows, err := s.listRecurring(ctx, userID, model.KindSubscription)
	if err != nil {
		return nil, err
	}
	subs := make([]model.Subscription, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.sub)
	}
	return subs, nil
}

func (s *Store) getRecurring(ctx context.Context, id string, kind model.Kind) (recurringRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recurringColumns+` FROM recurring WHERE id = ? AND kind = ?`, id, string(kind))
	r, err := scanRecurring(row)
	if err == sql.ErrNoRows {
		return r, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("reading %s %s: %w", kind, id, err)
	}
	return r, nil
}

// GetBill returns a bill by id.
func (s *Store) GetBill(ctx context.Context, id string) (model.Bill, error) {
	r, err := s.getRecurring(ctx, id, model.KindBill)
	if err != nil {
		return model.Bill{}, err
	}
	return model.Bill{Recurring: r.rec}, nil
}

// GetSubscription returns a subscription by id.
func (s *Store) GetSubscription(ctx context.Context, id string) (model.Subscription, error) {
	r, err := s.getRecurring(ctx, id, model.KindSubscription)
	if err != nil {
		return model.Subscription{}, err
	}
	return r.sub, nil
}

// UpsertBill inserts or replaces a bill by id.
func (s *Store) UpsertBill(ctx context.Context, b model.Bill) error {
	return s.upsertRecurring(ctx, model.KindBill, b.Recurring, model.Subscription{})
}

// UpsertSubscription inserts or replaces a subscription by id.
func (s *Store) UpsertSubscription(ctx context.Context, sub model.Subscription) error {
	return s.upsertRecurring(ctx, model.KindSubscription, sub.Recurring, sub)
}

func (s *Store) upsertRecurring(ctx context.Context, kind model.Kind, r model.Recurring, sub model.Subscription) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO recurring (`+recurringColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			merchant = excluded.merchant,
			merchant_key = excluded.merchant_key,
			amount = excluded.amount,
			frequency_days = excluded.frequency_days,
			next_due_date = excluded.next_due_date,
			last_seen = excluded.last_seen,
			confidence = excluded.confidence,
			missed_count = excluded.missed_count,
			active = excluded.active,
			deactivation_reason = excluded.deactivation_reason,
			category = excluded.category,
			status = excluded.status,
			difficulty = excluded.difficulty,
			last_used_at = excluded.last_used_at,
			value_score = excluded.value_score,
			updated_at = excluded.updated_at`,
		r.ID, r.UserID, string(kind), r.Merchant, r.MerchantKey, r.Amount.String(), int(r.Frequency),
		formatTime(r.NextDueDate), formatTime(r.LastSeen), r.Confidence, r.MissedCount,
		boolInt(r.Active), string(r.DeactivationReason), r.Category,
		string(sub.Status), string(sub.CancellationDifficulty), formatTimePtr(sub.LastUsedAt), sub.ValueScore,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("upserting %s for %q: %w", kind, r.MerchantKey, ErrConflict)
		}
		return fmt.Errorf("upserting %s %s: %w", kind, r.ID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
