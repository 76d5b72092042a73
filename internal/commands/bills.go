package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newBillsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bills",
		Short: "List active bills and subscriptions by next due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			bills, subs, err := a.registry.ListActive(cmd.Context(), opts.userID)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tID\tMERCHANT\tAMOUNT\tFREQUENCY\tNEXT DUE\tCONFIDENCE\tSTATUS")
			for _, b := range bills {
				fmt.Fprintf(tw, "bill\t%s\t%s\t%s\t%s\t%s\t%.2f\t%s\n", b.ID, b.Merchant, b.Amount.StringFixed(2),
					b.Frequency, b.NextDueDate.Format(time.DateOnly), b.Confidence, b.Category)
			}
			for _, s := range subs {
				fmt.Fprintf(tw, "subscription\t%s\t%s\t%s\t%s\t%s\t%.2f\t%s\n", s.ID, s.Merchant, s.Amount.StringFixed(2),
					s.Frequency, s.NextDueDate.Format(time.DateOnly), s.Confidence, s.Status)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate <id>",
		Short: "Stop tracking a bill or subscription",
		Args:  cobra.ExactArgs(1),
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
			if err := a.registry.Deactivate(cmd.Context(), opts.userID, args[0], now); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func newSubscriptionCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscription",
		Aliases: []string{"sub"},
		Short:   "Manage detected subscriptions",
	}

	type action struct {
		use, short, done string
		run              func(a *app, cmd *cobra.Command, id string, now time.Time) error
	}
	actions := []action{
		{"pause <id>", "Pause a subscription", "Paused", func(a *app, cmd *cobra.Command, id string, now time.Time) error {
			return a.registry.PauseSubscription(cmd.Context(), opts.userID, id, now)
		}},
		{"resume <id>", "Resume a paused subscription", "Resumed", func(a *app, cmd *cobra.Command, id string, now time.Time) error {
			return a.registry.ResumeSubscription(cmd.Context(), opts.userID, id, now)
		}},
		{"cancel <id>", "Mark a subscription cancelled", "Cancelled", func(a *app, cmd *cobra.Command, id string, now time.Time) error {
			return a.registry.CancelSubscription(cmd.Context(), opts.userID, id, now)
		}},
		{"used <id>", "Record that a subscription was used now", "Recorded usage of", func(a *app, cmd *cobra.Command, id string, now time.Time) error {
			return a.registry.RecordUsage(cmd.Context(), opts.userID, id, now, now)
		}},
	}

	for _, act := range actions {
		cmd.AddCommand(&cobra.Command{
			Use:   act.use,
			Short: act.short,
			Args:  cobra.ExactArgs(1),
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
				if err := act.run(a, cmd, args[0], now); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", act.done, args[0])
				return nil
			},
		})
	}

	return cmd
}
