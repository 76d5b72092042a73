package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/pennywise/internal/logger"
	"github.com/cleared-dev/pennywise/internal/model"
	"github.com/cleared-dev/pennywise/internal/registry"
	"github.com/cleared-dev/pennywise/internal/userlock"
)

// TransactionSource supplies a user's settled transactions.
type TransactionSource interface {
	ListTransactions(ctx context.Context, userID string, since time.Time) ([]model.Transaction, error)
}

// Reconciler applies accepted candidates to durable records.
type Reconciler interface {
	Reconcile(ctx context.Context, userID string, candidates []model.RecurringSeries, now time.Time) (registry.Report, error)
}

// RunReport is the outcome of one user's detection run.
type RunReport struct {
	UserID       string
	Transactions int
	Malformed    int
	Series       int
	Candidates   int
	Registry     registry.Report
}

// Service runs detection for one user at a time.
type Service struct {
	source   TransactionSource
	registry Reconciler
	locker   *userlock.Locker
	opts     Options
	lookback time.Duration
	logger   zerolog.Logger
}

// NewService creates a detection Service.
func NewService(source TransactionSource, reg Reconciler, locker *userlock.Locker, opts Options, lookbackDays int, logger zerolog.Logger) *Service {
	return &Service{
		source:   source,
		registry: reg,
		locker:   locker,
		opts:     opts,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		logger:   logger,
	}
}

// Run detects recurring series in the user's lookback window and
// reconciles them into the registry, holding the user's lock throughout.
// Running it twice with the same transactions and now changes nothing.
func (s *Service) Run(ctx context.Context, userID string, now time.Time) (RunReport, error) {
	unlock := s.locker.Lock(userID)
	defer unlock()

	log := logger.ForUser(s.logger, userID)
	report := RunReport{UserID: userID}

	txns, err := s.source.ListTransactions(ctx, userID, now.Add(-s.lookback))
	if err != nil {
		return report, fmt.Errorf("listing transactions: %w", err)
	}
	report.Transactions = len(txns)

	res := Detect(txns, s.opts)
	for _, skip := range res.Malformed {
		log.Warn().Str("transaction_id", skip.TransactionID).Err(skip.Err).Msg("skipping malformed transaction")
	}
	report.Malformed = len(res.Malformed)
	report.Series = len(res.Series)

	candidates := Accept(res.Series, s.opts)
	report.Candidates = len(candidates)

	reg, err := s.registry.Reconcile(ctx, userID, candidates, now)
	report.Registry = reg
	if err != nil {
		return report, fmt.Errorf("reconciling: %w", err)
	}

	log.Info().
		Int("transactions", report.Transactions).
		Int("series", report.Series).
		Int("candidates", report.Candidates).
		Int("created", reg.Created).
		Int("updated", reg.Updated).
		Int("suppressed", reg.Suppressed).
		Int("decayed", reg.Decayed).
		Int("deactivated", reg.Deactivated).
		Msg("detection run complete")
	return report, nil
}
