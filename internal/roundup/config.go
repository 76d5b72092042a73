package roundup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/model"
	"github.com/cleared-dev/pennywise/internal/store"
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid round-up config")

// Settings is a round-up configuration as a user submits it. Configure
// validates it and clamps the multiplier.
type Settings struct {
	Enabled         bool
	Rule            model.RoundingRule
	Multiplier      int
	DailyCap        *decimal.Decimal
	WeeklyCap       *decimal.Decimal
	GoalID          string
	Cadence         model.Cadence
	MinimumTransfer decimal.Decimal
}

// Validate checks everything except the multiplier, which is clamped.
func (s Settings) Validate() error {
	if _, ok := s.Rule.Unit(); !ok {
		return fmt.Errorf("%w: unknown rounding rule %q", ErrInvalidConfig, s.Rule)
	}
	if !s.Cadence.Valid() {
		return fmt.Errorf("%w: unknown cadence %q", ErrInvalidConfig, s.Cadence)
	}
	if s.DailyCap != nil && !s.DailyCap.IsPositive() {
		return fmt.Errorf("%w: daily cap must be positive", ErrInvalidConfig)
	}
	if s.WeeklyCap != nil && !s.WeeklyCap.IsPositive() {
		return fmt.Errorf("%w: weekly cap must be positive", ErrInvalidConfig)
	}
	if s.MinimumTransfer.IsNegative() {
		return fmt.Errorf("%w: minimum transfer must not be negative", ErrInvalidConfig)
	}
	if s.Enabled && s.GoalID == "" {
		return fmt.Errorf("%w: a linked goal is required when enabled", ErrInvalidConfig)
	}
	return nil
}

// Configure validates settings and stores them as the user's round-up
// config. The linked goal must belong to the user.
func (e *Engine) Configure(ctx context.Context, userID string, s Settings, now time.Time) (model.RoundUpConfig, error) {
	if err := s.Validate(); err != nil {
		return model.RoundUpConfig{}, err
	}
	if s.GoalID != "" {
		g, err := e.store.GetGoal(ctx, s.GoalID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && g.UserID != userID) {
			return model.RoundUpConfig{}, fmt.Errorf("%w: goal %s not found", ErrInvalidConfig, s.GoalID)
		}
		if err != nil {
			return model.RoundUpConfig{}, err
		}
	}

	cfg := model.RoundUpConfig{
		UserID:          userID,
		Enabled:         s.Enabled,
		Rule:            s.Rule,
		Multiplier:      model.ClampMultiplier(s.Multiplier),
		DailyCap:        s.DailyCap,
		WeeklyCap:       s.WeeklyCap,
		GoalID:          s.GoalID,
		Cadence:         s.Cadence,
		MinimumTransfer: s.MinimumTransfer,
		UpdatedAt:       now,
	}

	unlock := e.locker.Lock(userID)
	defer unlock()

	// Purchases made before round-ups were switched on are never swept.
	prev, err := e.store.GetRoundUpConfig(ctx, userID)
	switch {
	case err == nil && prev.Enabled && cfg.Enabled:
		cfg.EnabledAt = prev.EnabledAt
	case err == nil || errors.Is(err, store.ErrNotFound):
		if cfg.Enabled {
			cfg.EnabledAt = now
		}
	default:
		return model.RoundUpConfig{}, err
	}

	if err := e.store.SaveRoundUpConfig(ctx, cfg); err != nil {
		return model.RoundUpConfig{}, err
	}
	e.logger.Info().Str("user_id", userID).Str("rule", string(cfg.Rule)).Int("multiplier", cfg.Multiplier.Int()).
		Str("goal_id", cfg.GoalID).Bool("enabled", cfg.Enabled).Msg("round-up config saved")
	return cfg, nil
}
