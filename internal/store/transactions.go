package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cleared-dev/pennywise/internal/model"
)

// InsertTransactions stores transactions, ignoring ids already present.
// It returns how many rows were new.
func (s *Store) InsertTransactions(ctx context.Context, txns []model.Transaction) (int, error) {
	inserted := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO transactions
			(id, user_id, ts, amount, merchant, mcc) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, t := range txns {
			res, err := stmt.ExecContext(ctx, t.ID, t.UserID, formatTime(t.Timestamp), t.Amount.String(), t.Merchant, t.MCC)
			if err != nil {
				return fmt.Errorf("inserting transaction %s: %w", t.ID, err)
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListTransactions returns a user's transactions at or after since, oldest
// first. Rows whose stored amount or time cannot be parsed are returned
// with a zero value in that field so callers can skip them as malformed.
func (s *Store) ListTransactions(ctx context.Context, userID string, since time.Time) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, ts, amount, merchant, mcc
		FROM transactions WHERE user_id = ? AND ts >= ? ORDER BY ts, id`,
		userID, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var ts, amount string
		if err := rows.Scan(&t.ID, &t.UserID, &ts, &amount, &t.Merchant, &t.MCC); err != nil {
			return nil, err
		}
		t.Timestamp, _ = parseTime(ts)
		t.Amount, _ = parseDecimal(amount)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// GetTransaction returns a single transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (model.Transaction, error) {
	var t model.Transaction
	var ts, amount string
	err := s.db.QueryRowContext(ctx, `SELECT id, user_id, ts, amount, merchant, mcc
		FROM transactions WHERE id = ?`, id).
		Scan(&t.ID, &t.UserID, &ts, &amount, &t.Merchant, &t.MCC)
	if err == sql.ErrNoRows {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Transaction{}, fmt.Errorf("reading transaction %s: %w", id, err)
	}
	if t.Timestamp, err = parseTime(ts); err != nil {
		return model.Transaction{}, err
	}
	if t.Amount, err = parseDecimal(amount); err != nil {
		return model.Transaction{}, err
	}
	return t, nil
}
