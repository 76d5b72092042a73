package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/pennywise/internal/importer"
)

func newImportCommand(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import bank CSV exports (default: every CSV in import/)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var reports []importer.FileReport
			if len(args) == 0 {
				reports, err = a.importer.ImportDir(cmd.Context(), a.dataDir, format, opts.userID)
				if err != nil {
					return err
				}
			}
			for _, path := range args {
				r, err := a.importer.ImportFile(cmd.Context(), path, format, opts.userID)
				if err != nil {
					return err
				}
				reports = append(reports, r)
			}

			out := cmd.OutOrStdout()
			if len(reports) == 0 {
				fmt.Fprintln(out, "No files to import.")
			}
			for _, r := range reports {
				fmt.Fprintf(out, "%s: %d parsed, %d new, %d skipped\n", r.File, r.Parsed, r.Inserted, len(r.Errors))
				for _, re := range r.Errors {
					fmt.Fprintf(out, "  %v\n", re)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "chase", "bank export format")

	return cmd
}
