package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cleared-dev/pennywise/internal/id"
	"github.com/cleared-dev/pennywise/internal/model"
)

const batchColumns = `id, user_id, goal_id, amount, status, attempts, transfer_id, last_error, created_at, updated_at`

func scanBatch(sc scanner) (model.TransferBatch, error) {
	var b model.TransferBatch
	var amount, status, createdAt, updatedAt string
	if err := sc.Scan(&b.ID, &b.UserID, &b.GoalID, &amount, &status, &b.Attempts,
		&b.TransferID, &b.LastError, &createdAt, &updatedAt); err != nil {
		return b, err
	}
	b.Status = model.BatchStatus(status)

	var err error
	if b.Amount, err = parseDecimal(amount); err != nil {
		return b, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return b, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return b, err
	}
	return b, nil
}

func batchMembers(ctx context.Context, q querier, batchID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM roundup_transactions WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("listing batch members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			return nil, err
		}
		ids = append(ids, rid)
	}
	return ids, rows.Err()
}

// CreateBatch inserts b as an open batch and claims its round-ups. Every
// member must still be pending and unbatched, otherwise nothing is written
// and ErrConflict is returned.
func (s *Store) CreateBatch(ctx context.Context, b model.TransferBatch) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO transfer_batches (`+batchColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.UserID, b.GoalID, b.Amount.String(), string(model.BatchOpen), 0, "", "",
			formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("batch %s: %w", b.ID, ErrConflict)
			}
			return fmt.Errorf("inserting batch: %w", err)
		}

		for _, rid := range b.RoundUpIDs {
			res, err := tx.ExecContext(ctx, `UPDATE roundup_transactions SET batch_id = ?
				WHERE id = ? AND user_id = ? AND status = ? AND batch_id = ''`,
				b.ID, rid, b.UserID, string(model.RoundUpPending))
			if err != nil {
				return fmt.Errorf("claiming round-up %s: %w", rid, err)
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return fmt.Errorf("round-up %s is not pending and unbatched: %w", rid, ErrConflict)
			}
		}
		return nil
	})
}

// GetBatch returns a batch with its members.
func (s *Store) GetBatch(ctx context.Context, batchID string) (model.TransferBatch, error) {
	b, err := scanBatch(s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM transfer_batches WHERE id = ?`, batchID))
	if err == sql.ErrNoRows {
		return b, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return b, fmt.Errorf("reading batch %s: %w", batchID, err)
	}
	if b.RoundUpIDs, err = batchMembers(ctx, s.db, batchID); err != nil {
		return b, err
	}
	return b, nil
}

// ListBatches returns a user's batches, oldest first. With statuses given,
// only those statuses are returned.
func (s *Store) ListBatches(ctx context.Context, userID string, statuses ...model.BatchStatus) ([]model.TransferBatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM transfer_batches
		WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}

	want := make(map[model.BatchStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	var batches []model.TransferBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		if len(want) > 0 && !want[b.Status] {
			continue
		}
		batches = append(batches, b)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, err
	}

	// Members are loaded after the batch rows are closed; the store holds a
	// single connection.
	for i := range batches {
		if batches[i].RoundUpIDs, err = batchMembers(ctx, s.db, batches[i].ID); err != nil {
			return nil, err
		}
	}
	return batches, nil
}

// OpenBatches returns a user's unresolved batches.
func (s *Store) OpenBatches(ctx context.Context, userID string) ([]model.TransferBatch, error) {
	return s.ListBatches(ctx, userID, model.BatchOpen)
}

// CompleteBatch applies a confirmed transfer: every member round-up becomes
// transferred, one round-up contribution for the batch amount is appended,
// the goal's current amount rises by the same value and the batch closes.
// Either all of it happens or none of it does.
func (s *Store) CompleteBatch(ctx context.Context, batchID, transferID string, at time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		b, err := scanBatch(tx.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM transfer_batches WHERE id = ?`, batchID))
		if err == sql.ErrNoRows {
			return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("reading batch %s: %w", batchID, err)
		}
		if b.Status != model.BatchOpen {
			return fmt.Errorf("batch %s is %s: %w", batchID, b.Status, ErrConflict)
		}
		members, err := batchMembers(ctx, tx, batchID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `UPDATE roundup_transactions SET status = ?, transferred_at = ?
			WHERE batch_id = ? AND status = ?`,
			string(model.RoundUpTransferred), formatTime(at), batchID, string(model.RoundUpPending))
		if err != nil {
			return fmt.Errorf("marking round-ups transferred: %w", err)
		}
		if n, _ := res.RowsAffected(); int(n) != len(members) {
			return fmt.Errorf("batch %s: %d of %d round-ups pending: %w", batchID, n, len(members), ErrConflict)
		}
		if err := s.fault("complete.marked"); err != nil {
			return err
		}

		err = s.appendContribution(ctx, tx, model.GoalContribution{
			ID:        id.New(),
			GoalID:    b.GoalID,
			Amount:    b.Amount,
			Source:    model.SourceRoundUp,
			Reference: batchID,
			Timestamp: at,
		})
		if err != nil {
			return fmt.Errorf("crediting goal: %w", err)
		}
		if err := s.fault("complete.credited"); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE transfer_batches SET status = ?, transfer_id = ?, last_error = '', updated_at = ?
			WHERE id = ?`, string(model.BatchTransferred), transferID, formatTime(at), batchID)
		if err != nil {
			return fmt.Errorf("closing batch: %w", err)
		}
		return s.fault("complete.closed")
	})
}

// RecordBatchFailure counts a failed submit attempt and returns the new
// attempt count.
func (s *Store) RecordBatchFailure(ctx context.Context, batchID, reason string, at time.Time) (int, error) {
	var attempts int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE transfer_batches SET attempts = attempts + 1, last_error = ?, updated_at = ?
			WHERE id = ? AND status = ?`, reason, formatTime(at), batchID, string(model.BatchOpen))
		if err != nil {
			return fmt.Errorf("recording batch failure: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("open batch %s: %w", batchID, ErrNotFound)
		}
		return tx.QueryRowContext(ctx, `SELECT attempts FROM transfer_batches WHERE id = ?`, batchID).Scan(&attempts)
	})
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

// FailBatch gives up on a batch: the batch and all its round-ups become
// failed together.
func (s *Store) FailBatch(ctx context.Context, batchID, reason string, at time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE transfer_batches SET status = ?, last_error = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			string(model.BatchFailed), reason, formatTime(at), batchID, string(model.BatchOpen))
		if err != nil {
			return fmt.Errorf("failing batch: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("open batch %s: %w", batchID, ErrNotFound)
		}
		if err := s.fault("fail.batch"); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE roundup_transactions SET status = ? WHERE batch_id = ? AND status = ?`,
			string(model.RoundUpFailed), batchID, string(model.RoundUpPending))
		if err != nil {
			return fmt.Errorf("failing round-ups: %w", err)
		}
		return nil
	})
}

// TransferState returns when the user's last transfer cycle ran. ok is false
// if no cycle has run yet.
func (s *Store) TransferState(ctx context.Context, userID string) (last time.Time, ok bool, err error) {
	var ts string
	err = s.db.QueryRowContext(ctx, `SELECT last_cycle FROM transfer_state WHERE user_id = ?`, userID).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading transfer state: %w", err)
	}
	last, err = parseTime(ts)
	if err != nil {
		return time.Time{}, false, err
	}
	return last, true, nil
}

// SetTransferState records that a transfer cycle ran at at.
func (s *Store) SetTransferState(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO transfer_state (user_id, last_cycle) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_cycle = excluded.last_cycle`, userID, formatTime(at))
	if err != nil {
		return fmt.Errorf("saving transfer state: %w", err)
	}
	return nil
}

// RecordFundTransfer stores a funds movement under its idempotency key. A
// repeated key returns the original receipt with Replayed set; a repeated
// key with a different amount or goal is ErrConflict.
func (s *Store) RecordFundTransfer(ctx context.Context, req model.TransferRequest, transferID string, at time.Time) (model.TransferReceipt, error) {
	var receipt model.TransferReceipt
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var existingID, amount, goalID string
		err := tx.QueryRowContext(ctx, `SELECT transfer_id, amount, goal_id FROM fund_transfers WHERE idempotency_key = ?`,
			req.IdempotencyKey).Scan(&existingID, &amount, &goalID)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return fmt.Errorf("reading fund transfer: %w", err)
		default:
			prev, err := parseDecimal(amount)
			if err != nil {
				return err
			}
			if !prev.Equal(req.Amount) || goalID != req.GoalID {
				return fmt.Errorf("idempotency key %s reused for a different transfer: %w", req.IdempotencyKey, ErrConflict)
			}
			receipt = model.TransferReceipt{TransferID: existingID, Replayed: true}
			return nil
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO fund_transfers
			(idempotency_key, transfer_id, user_id, goal_id, amount, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			req.IdempotencyKey, transferID, req.UserID, req.GoalID, req.Amount.String(), formatTime(at))
		if err != nil {
			return fmt.Errorf("recording fund transfer: %w", err)
		}
		receipt = model.TransferReceipt{TransferID: transferID}
		return nil
	})
	if err != nil {
		return model.TransferReceipt{}, err
	}
	return receipt, nil
}

// CountFundTransfers returns how many distinct transfers were recorded for
// a user.
func (s *Store) CountFundTransfers(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fund_transfers WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}
