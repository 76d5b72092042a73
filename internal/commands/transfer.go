package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/pennywise/internal/transfer"
)

func newTransferCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move pending round-ups into savings goals",
	}

	var force, all bool
	run := &cobra.Command{
		Use:   "run",
		Short: "Run one transfer cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			now, err := opts.now()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if all {
				sum, err := a.runner.RunAll(cmd.Context(), "transfer", func(ctx context.Context, userID string, _ time.Time) error {
					_, err := a.transfers.RunCycle(ctx, userID, now, force)
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Transfer cycle ran for %d users, %d failed\n", sum.Users, len(sum.Failed))
				return nil
			}

			report, err := a.transfers.RunCycle(cmd.Context(), opts.userID, now, force)
			if err != nil {
				return err
			}
			printCycle(out, report)
			return nil
		},
	}
	run.Flags().BoolVar(&force, "force", false, "ignore the configured cadence")
	run.Flags().BoolVar(&all, "all", false, "run for every known user")

	cmd.AddCommand(run)
	return cmd
}

func printCycle(w io.Writer, r transfer.CycleReport) {
	if !r.Ran {
		if r.NextRun.IsZero() {
			fmt.Fprintln(w, "Round-ups are not configured")
		} else {
			fmt.Fprintf(w, "Not due until %s\n", r.NextRun.Format(time.RFC3339))
		}
		return
	}
	for _, b := range r.Batches {
		fmt.Fprintf(w, "batch %s: %s to goal %s from %d round-ups, %s", b.BatchID, b.Amount.StringFixed(2),
			b.GoalID, b.RoundUps, b.Outcome)
		if b.Error != "" {
			fmt.Fprintf(w, " (%s)", b.Error)
		}
		fmt.Fprintln(w)
	}
	for _, d := range r.Deferred {
		fmt.Fprintf(w, "deferred %s for goal %q: %s\n", d.Amount.StringFixed(2), d.GoalID, d.Reason)
	}
	fmt.Fprintf(w, "%d of %d batches completed\n", r.Completed(), len(r.Batches))
}
