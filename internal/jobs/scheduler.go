package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Task is a Job run for all users every Interval.
type Task struct {
	Name     string
	Interval time.Duration
	Job      Job
}

// Scheduler ticks tasks until its context ends.
type Scheduler struct {
	runner *Runner
	tasks  []Task
	logger zerolog.Logger
}

// NewScheduler creates a Scheduler. Tasks with a non-positive interval are
// run once at start only.
func NewScheduler(runner *Runner, logger zerolog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{runner: runner, tasks: tasks, logger: logger}
}

// Run runs every task immediately and then on its interval. Cancelling ctx
// stops scheduling and Run returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range s.tasks {
		g.Go(func() error {
			return s.loop(gctx, task)
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		s.logger.Info().Msg("scheduler stopped")
		return nil
	}
	return err
}

func (s *Scheduler) loop(ctx context.Context, task Task) error {
	log := s.logger.With().Str("job", task.Name).Logger()
	s.tick(ctx, task, log)
	if task.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx, task, log)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, task Task, log zerolog.Logger) {
	if _, err := s.runner.RunAll(ctx, task.Name, task.Job); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("scheduled run failed")
	}
}
