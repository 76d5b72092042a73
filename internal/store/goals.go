package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/model"
)

const goalColumns = `id, user_id, name, target, current, deadline, priority, active, created_at, updated_at`

func scanGoal(sc scanner) (model.Goal, error) {
	var g model.Goal
	var target, current, createdAt, updatedAt string
	var deadline sql.NullString
	var active int
	if err := sc.Scan(&g.ID, &g.UserID, &g.Name, &target, &current, &deadline,
		&g.Priority, &active, &createdAt, &updatedAt); err != nil {
		return g, err
	}
	g.Active = active != 0

	var err error
	if g.Target, err = parseDecimal(target); err != nil {
		return g, err
	}
	if g.Current, err = parseDecimal(current); err != nil {
		return g, err
	}
	if g.Deadline, err = parseTimePtr(deadline); err != nil {
		return g, err
	}
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return g, err
	}
	if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return g, err
	}
	return g, nil
}

// CreateGoal inserts a new goal. Current always starts at zero; money only
// reaches a goal through AppendContribution or CompleteBatch.
func (s *Store) CreateGoal(ctx context.Context, g model.Goal) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO goals (`+goalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, g.Target.String(), decimal.Zero.String(), formatTimePtr(g.Deadline),
		g.Priority, boolInt(g.Active), formatTime(g.CreatedAt), formatTime(g.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("goal %s: %w", g.ID, ErrConflict)
		}
		return fmt.Errorf("creating goal %s: %w", g.ID, err)
	}
	return nil
}

// GetGoal returns a goal by id.
func (s *Store) GetGoal(ctx context.Context, id string) (model.Goal, error) {
	return getGoal(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getGoal(ctx context.Context, q queryRower, id string) (model.Goal, error) {
	g, err := scanGoal(q.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return model.Goal{}, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Goal{}, fmt.Errorf("reading goal %s: %w", id, err)
	}
	return g, nil
}

// ListGoals returns a user's goals ordered by priority, then creation.
func (s *Store) ListGoals(ctx context.Context, userID string) ([]model.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+goalColumns+` FROM goals
		WHERE user_id = ? ORDER BY priority DESC, created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing goals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var goals []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// AppendContribution appends c to the ledger and raises the goal's current
// amount by the same value in one transaction.
func (s *Store) AppendContribution(ctx context.Context, c model.GoalContribution) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.appendContribution(ctx, tx, c)
	})
}

func (s *Store) appendContribution(ctx context.Context, tx *sql.Tx, c model.GoalContribution) error {
	g, err := getGoal(ctx, tx, c.GoalID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO goal_contributions (id, goal_id, amount, source, reference, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.GoalID, c.Amount.String(), string(c.Source), c.Reference, formatTime(c.Timestamp))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("contribution %s (ref %q): %w", c.ID, c.Reference, ErrConflict)
		}
		return fmt.Errorf("inserting contribution: %w", err)
	}
	if err := s.fault("contribution.inserted"); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE goals SET current = ?, updated_at = ? WHERE id = ?`,
		g.Current.Add(c.Amount).String(), formatTime(c.Timestamp), c.GoalID)
	if err != nil {
		return fmt.Errorf("updating goal %s: %w", c.GoalID, err)
	}
	return nil
}

// ListContributions returns a goal's ledger, oldest first.
func (s *Store) ListContributions(ctx context.Context, goalID string) ([]model.GoalContribution, error) {
	return listContributions(ctx, s.db, goalID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listContributions(ctx context.Context, q querier, goalID string) ([]model.GoalContribution, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, goal_id, amount, source, reference, ts
		FROM goal_contributions WHERE goal_id = ? ORDER BY ts, id`, goalID)
	if err != nil {
		return nil, fmt.Errorf("listing contributions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.GoalContribution
	for rows.Next() {
		var c model.GoalContribution
		var amount, source, ts string
		if err := rows.Scan(&c.ID, &c.GoalID, &amount, &source, &c.Reference, &ts); err != nil {
			return nil, err
		}
		c.Source = model.ContributionSource(source)
		if c.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if c.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GoalSnapshot reads a goal and its ledger from one consistent snapshot.
func (s *Store) GoalSnapshot(ctx context.Context, goalID string) (model.Goal, []model.GoalContribution, error) {
	var g model.Goal
	var contribs []model.GoalContribution
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if g, err = getGoal(ctx, tx, goalID); err != nil {
			return err
		}
		contribs, err = listContributions(ctx, tx, goalID)
		return err
	})
	if err != nil {
		return model.Goal{}, nil, err
	}
	return g, contribs, nil
}

// SetGoalActive flips a goal's active flag.
func (s *Store) SetGoalActive(ctx context.Context, goalID string, active bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE goals SET active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), formatTime(at), goalID)
	if err != nil {
		return fmt.Errorf("updating goal %s: %w", goalID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("goal %s: %w", goalID, ErrNotFound)
	}
	return nil
}
