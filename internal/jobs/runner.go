// Package jobs runs per-user work across every known user and schedules it
// on fixed intervals.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cleared-dev/pennywise/internal/logger"
)

// Job is one unit of per-user work.
type Job func(ctx context.Context, userID string, now time.Time) error

// UserLister enumerates the users jobs fan out over. *store.Store
// satisfies it.
type UserLister interface {
	ListUsers(ctx context.Context) ([]string, error)
}

// Summary is the outcome of one fan-out.
type Summary struct {
	Job      string
	Users    int
	Failed   map[string]error
	Duration time.Duration
}

// FailedUsers returns the ids of users whose job failed, sorted.
func (s Summary) FailedUsers() []string {
	out := make([]string, 0, len(s.Failed))
	for u := range s.Failed {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Runner fans a Job out over all users with bounded concurrency.
type Runner struct {
	users   UserLister
	workers int
	logger  zerolog.Logger
	now     func() time.Time
}

// NewRunner creates a Runner running at most workers users at once.
func NewRunner(users UserLister, workers int, logger zerolog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{users: users, workers: workers, logger: logger, now: time.Now}
}

// RunAll runs job once for every user. Each job's context carries a logger
// tagged with the user and job name. A user's failure is logged and
// recorded in the summary; it never stops the others. The returned error
// is non-nil only when users cannot be listed or ctx ends.
func (r *Runner) RunAll(ctx context.Context, name string, job Job) (Summary, error) {
	start := r.now()
	sum := Summary{Job: name, Failed: make(map[string]error)}

	users, err := r.users.ListUsers(ctx)
	if err != nil {
		return sum, fmt.Errorf("listing users: %w", err)
	}
	sum.Users = len(users)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, userID := range users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ulog := logger.WithFields(logger.ForUser(r.logger, userID), map[string]string{"job": name})
			if err := job(logger.WithContext(gctx, ulog), userID, r.now().UTC()); err != nil {
				ulog.Error().Err(err).Msg("job failed")
				mu.Lock()
				sum.Failed[userID] = err
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	sum.Duration = r.now().Sub(start)
	r.logger.Info().Str("job", name).Int("users", sum.Users).Int("failed", len(sum.Failed)).
		Dur("duration", sum.Duration).Msg("job run complete")
	return sum, ctx.Err()
}
