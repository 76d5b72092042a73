package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/pennywise/internal/jobs"
	"github.com/cleared-dev/pennywise/internal/logger"
	"github.com/cleared-dev/pennywise/internal/roundup"
)

func newRunCommand(opts *globalOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run detection, round-ups and transfers on a schedule",
		Long: `Run detection, round-up ingestion and transfer cycles for every user
on the intervals configured under scheduler in pennywise.yaml. Stops on
SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			detectEvery, transferEvery := a.cfg.Scheduler.DetectInterval, a.cfg.Scheduler.TransferInterval
			if once {
				detectEvery, transferEvery = 0, 0
			}

			sched := jobs.NewScheduler(a.runner, a.log.With().Str("component", "scheduler").Logger(),
				jobs.Task{Name: "detect", Interval: detectEvery, Job: func(ctx context.Context, userID string, now time.Time) error {
					rep, err := a.detector.Run(ctx, userID, now)
					if err != nil {
						return err
					}
					logger.FromContext(ctx).Debug().Int("series", rep.Series).Msg("detection finished")
					return nil
				}},
				jobs.Task{Name: "transfer", Interval: transferEvery, Job: func(ctx context.Context, userID string, now time.Time) error {
					sum, ok, err := a.ingestUser(ctx, userID, now)
					if err != nil {
						return fmt.Errorf("round-up ingest: %w", err)
					}
					if ok {
						logger.FromContext(ctx).Debug().Int("created", sum.Outcomes[roundup.OutcomeCreated]).
							Str("total", sum.Total.StringFixed(2)).Msg("round-ups ingested")
					}
					_, err = a.transfers.RunCycle(ctx, userID, now, false)
					return err
				}},
			)

			a.log.Info().Dur("detect_interval", detectEvery).Dur("transfer_interval", transferEvery).
				Msg("scheduler started")
			return sched.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run every task once and exit")

	return cmd
}
