package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/pennywise/internal/buildinfo"
)

// globalOptions are the persistent flags every subcommand reads.
type globalOptions struct {
	dataDir string
	userID  string
	asOf    string
}

// now returns --as-of when set, else the wall clock, in UTC.
func (o *globalOptions) now() (time.Time, error) {
	if o.asOf == "" {
		return time.Now().UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, o.asOf); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD or RFC 3339", o.asOf)
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "pennywise",
		Short:   "Recurring bills, round-ups and savings goals",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.dataDir, "data-dir", "d", ".", "data directory holding pennywise.yaml")
	rootCmd.PersistentFlags().StringVarP(&opts.userID, "user", "u", "default", "user id to act for")
	rootCmd.PersistentFlags().StringVar(&opts.asOf, "as-of", "", "evaluate as of this date instead of now")
	_ = rootCmd.PersistentFlags().MarkHidden("as-of")

	rootCmd.AddCommand(
		newInitCommand(opts),
		newImportCommand(opts),
		newDetectCommand(opts),
		newBillsCommand(opts),
		newSubscriptionCommand(opts),
		newRoundUpCommand(opts),
		newTransferCommand(opts),
		newGoalCommand(opts),
		newVerifyCommand(opts),
		newActivityCommand(opts),
		newRunCommand(opts),
	)

	return rootCmd
}
