package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/pennywise/internal/category"
	"github.com/cleared-dev/pennywise/internal/config"
	"github.com/cleared-dev/pennywise/internal/store"
)

const categoriesFile = "categories.csv"

func newInitCommand(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a pennywise data directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.dataDir
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			if err := runInit(absDir, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized pennywise data directory at %s\n", absDir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing pennywise.yaml")

	return cmd
}

func runInit(dir string, force bool) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
	}

	// Create directory structure.
	dirs := []string{
		"logs",
		"import",
		filepath.Join("import", "processed"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	// Write the editable category map.
	f, err := os.Create(filepath.Join(dir, categoriesFile))
	if err != nil {
		return fmt.Errorf("creating category map: %w", err)
	}
	if err := category.WriteEntries(f, category.DefaultMap()); err != nil {
		f.Close()
		return fmt.Errorf("writing category map: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing category map: %w", err)
	}

	cfg := config.Default()
	cfg.Categories.Path = categoriesFile
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Create the database schema.
	st, err := store.Open(filepath.Join(dir, cfg.Database))
	if err != nil {
		return err
	}
	return st.Close()
}
