package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newActivityCommand(opts *globalOptions) *cobra.Command {
	var failed bool

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recorded transfer events for the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.activity.ForUser(opts.userID)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tCOMPONENT\tACTION\tSUBJECT\tDETAILS")
			for _, e := range entries {
				if failed && e.Action != "batch_failed" {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Component, e.Action, e.Subject, e.Details)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "only show failed transfer batches")

	return cmd
}
