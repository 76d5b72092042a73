package goals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/id"
	"github.com/cleared-dev/pennywise/internal/model"
	"github.com/cleared-dev/pennywise/internal/store"
)

var (
	// ErrNotFound is returned for goals that do not exist or belong to
	// another user.
	ErrNotFound = errors.New("goal not found")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid goal input")
)

// Store is the persistence the goal service needs. *store.Store satisfies it.
type Store interface {
	CreateGoal(ctx context.Context, g model.Goal) error
	GetGoal(ctx context.Context, id string) (model.Goal, error)
	ListGoals(ctx context.Context, userID string) ([]model.Goal, error)
	AppendContribution(ctx context.Context, c model.GoalContribution) error
	GoalSnapshot(ctx context.Context, goalID string) (model.Goal, []model.GoalContribution, error)
	SetGoalActive(ctx context.Context, goalID string, active bool, at time.Time) error
}

// NewGoal is the input to CreateGoal.
type NewGoal struct {
	UserID   string
	Name     string
	Target   decimal.Decimal
	Deadline *time.Time
	Priority int
}

// Service manages goals and projects their progress.
type Service struct {
	store  Store
	logger zerolog.Logger
}

// NewService creates a goal Service.
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CreateGoal validates and stores a new, empty goal.
func (s *Service) CreateGoal(ctx context.Context, in NewGoal, now time.Time) (model.Goal, error) {
	switch {
	case in.UserID == "":
		return model.Goal{}, fmt.Errorf("%w: missing user id", ErrInvalid)
	case strings.TrimSpace(in.Name) == "":
		return model.Goal{}, fmt.Errorf("%w: missing name", ErrInvalid)
	case !in.Target.IsPositive():
		return model.Goal{}, fmt.Errorf("%w: target must be positive", ErrInvalid)
	case !in.Target.Equal(in.Target.Round(2)):
		return model.Goal{}, fmt.Errorf("%w: target has more than 2 decimal places", ErrInvalid)
	}

	g := model.Goal{
		ID:        id.New(),
		UserID:    in.UserID,
		Name:      strings.TrimSpace(in.Name),
		Target:    in.Target,
		Current:   decimal.Zero,
		Deadline:  in.Deadline,
		Priority:  in.Priority,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateGoal(ctx, g); err != nil {
		return model.Goal{}, err
	}
	s.logger.Info().Str("user_id", g.UserID).Str("goal_id", g.ID).Str("target", g.Target.StringFixed(2)).
		Msg("goal created")
	return g, nil
}

func (s *Service) owned(ctx context.Context, userID, goalID string) (model.Goal, error) {
	g, err := s.store.GetGoal(ctx, goalID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && g.UserID != userID) {
		return model.Goal{}, fmt.Errorf("%s: %w", goalID, ErrNotFound)
	}
	return g, err
}

// Contribute appends a manual deposit to a goal's ledger.
func (s *Service) Contribute(ctx context.Context, userID, goalID string, amount decimal.Decimal, at time.Time) (model.GoalContribution, error) {
	if !amount.IsPositive() {
		return model.GoalContribution{}, fmt.Errorf("%w: contribution must be positive", ErrInvalid)
	}
	if !amount.Equal(amount.Round(2)) {
		return model.GoalContribution{}, fmt.Errorf("%w: contribution has more than 2 decimal places", ErrInvalid)
	}
	g, err := s.owned(ctx, userID, goalID)
	if err != nil {
		return model.GoalContribution{}, err
	}
	if !g.Active {
		return model.GoalContribution{}, fmt.Errorf("%w: goal %s is archived", ErrInvalid, goalID)
	}

	c := model.GoalContribution{
		ID:        id.New(),
		GoalID:    goalID,
		Amount:    amount,
		Source:    model.SourceManual,
		Timestamp: at,
	}
	if err := s.store.AppendContribution(ctx, c); err != nil {
		return model.GoalContribution{}, err
	}
	return c, nil
}

// Status projects one goal from a consistent snapshot of its ledger.
func (s *Service) Status(ctx context.Context, userID, goalID string, now time.Time) (Projection, error) {
	g, contribs, err := s.store.GoalSnapshot(ctx, goalID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && g.UserID != userID) {
		return Projection{}, fmt.Errorf("%s: %w", goalID, ErrNotFound)
	}
	if err != nil {
		return Projection{}, err
	}
	return Project(g, contribs, now), nil
}

// List projects every goal the user has, highest priority first.
func (s *Service) List(ctx context.Context, userID string, now time.Time) ([]Projection, error) {
	goals, err := s.store.ListGoals(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Projection, 0, len(goals))
	for _, g := range goals {
		p, err := s.Status(ctx, userID, g.ID, now)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Archive deactivates a goal. Its ledger is kept.
func (s *Service) Archive(ctx context.Context, userID, goalID string, now time.Time) error {
	if _, err := s.owned(ctx, userID, goalID); err != nil {
		return err
	}
	return s.store.SetGoalActive(ctx, goalID, false, now)
}
