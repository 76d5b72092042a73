package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newDetectCommand(opts *globalOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect recurring bills and subscriptions",
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
				sum, err := a.runner.RunAll(cmd.Context(), "detect", func(ctx context.Context, userID string, _ time.Time) error {
					_, err := a.detector.Run(ctx, userID, now)
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Detection ran for %d users, %d failed\n", sum.Users, len(sum.Failed))
				return nil
			}

			report, err := a.detector.Run(cmd.Context(), opts.userID, now)
			if err != nil {
				return err
			}
			reg := report.Registry
			fmt.Fprintf(out, "%d transactions, %d malformed, %d series, %d candidates\n",
				report.Transactions, report.Malformed, report.Series, report.Candidates)
			fmt.Fprintf(out, "created %d, updated %d, unchanged %d, suppressed %d, decayed %d, deactivated %d\n",
				reg.Created, reg.Updated, reg.Unchanged, reg.Suppressed, reg.Decayed, reg.Deactivated)
			for _, c := range reg.Changes {
				fmt.Fprintf(out, "  %-11s %-12s %s %s\n", c.Action, c.Kind, c.MerchantKey, c.Detail)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "run for every known user")

	return cmd
}
