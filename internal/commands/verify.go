package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newVerifyCommand(opts *globalOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check goal, round-up and transfer records for consistency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if all {
				sum, err := a.runner.RunAll(cmd.Context(), "verify", func(ctx context.Context, userID string, _ time.Time) error {
					violations, err := a.verifier.Verify(ctx, userID)
					if err != nil {
						return err
					}
					if len(violations) > 0 {
						return fmt.Errorf("%d violations", len(violations))
					}
					return nil
				})
				if err != nil {
					return err
				}
				for _, u := range sum.FailedUsers() {
					fmt.Fprintf(out, "%s: %v\n", u, sum.Failed[u])
				}
				if len(sum.Failed) > 0 {
					return fmt.Errorf("verification failed for %d of %d users", len(sum.Failed), sum.Users)
				}
				fmt.Fprintf(out, "ledger OK for %d users\n", sum.Users)
				return nil
			}

			violations, err := a.verifier.Verify(cmd.Context(), opts.userID)
			if err != nil {
				return err
			}
			for _, v := range violations {
				fmt.Fprintln(out, v.Error())
			}
			if len(violations) > 0 {
				return fmt.Errorf("found %d violations", len(violations))
			}
			fmt.Fprintln(out, "ledger OK")
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "verify every known user")

	return cmd
}
