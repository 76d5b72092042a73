package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/pennywise/internal/activity"
	"github.com/cleared-dev/pennywise/internal/category"
	"github.com/cleared-dev/pennywise/internal/config"
	"github.com/cleared-dev/pennywise/internal/detect"
	"github.com/cleared-dev/pennywise/internal/funds"
	"github.com/cleared-dev/pennywise/internal/goals"
	"github.com/cleared-dev/pennywise/internal/importer"
	"github.com/cleared-dev/pennywise/internal/jobs"
	"github.com/cleared-dev/pennywise/internal/ledger"
	"github.com/cleared-dev/pennywise/internal/logger"
	"github.com/cleared-dev/pennywise/internal/registry"
	"github.com/cleared-dev/pennywise/internal/roundup"
	"github.com/cleared-dev/pennywise/internal/store"
	"github.com/cleared-dev/pennywise/internal/transfer"
	"github.com/cleared-dev/pennywise/internal/userlock"
)

// app is the wired engine for one data directory.
type app struct {
	dataDir string
	cfg     *config.Config
	log     zerolog.Logger

	store     *store.Store
	activity  *activity.Log
	registry  *registry.Service
	detector  *detect.Service
	roundups  *roundup.Engine
	transfers *transfer.Scheduler
	goals     *goals.Service
	verifier  *ledger.Verifier
	importer  *importer.Importer
	runner    *jobs.Runner
}

// resolve makes p relative to the data directory unless it is absolute.
func resolve(dataDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}

func openApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	dataDir, err := filepath.Abs(opts.dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	cfg, err := config.Load(filepath.Join(dataDir, config.FileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s is not a pennywise data directory; run pennywise init", dataDir)
	}
	if err != nil {
		return nil, err
	}

	log := logger.Configure(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	cats, err := category.Load(resolve(dataDir, cfg.Categories.Path))
	if err != nil {
		return nil, err
	}
	st, err := store.Open(resolve(dataDir, cfg.Database))
	if err != nil {
		return nil, err
	}

	locker := userlock.New()
	component := func(name string) zerolog.Logger {
		return log.With().Str("component", name).Logger()
	}

	a := &app{dataDir: dataDir, cfg: cfg, log: log, store: st, activity: activity.New(dataDir)}
	a.registry = registry.NewService(st, cats, locker, registry.OptionsFromConfig(cfg.Detector), component("registry"))
	a.detector = detect.NewService(st, a.registry, locker, detect.OptionsFromConfig(cfg.Detector),
		cfg.Detector.LookbackDays, component("detector"))
	a.roundups = roundup.NewEngine(st, locker, component("roundup"))
	a.transfers = transfer.NewScheduler(st, funds.NewSandbox(st, component("funds")), locker, a.activity,
		transfer.Options{MaxAttempts: cfg.Transfer.MaxAttempts, SubmitTimeout: cfg.Transfer.SubmitTimeout},
		component("transfer"))
	a.goals = goals.NewService(st, component("goals"))
	a.verifier = ledger.NewVerifier(st, component("ledger"))
	a.importer = importer.New(st, component("importer"))
	a.runner = jobs.NewRunner(st, cfg.Scheduler.Workers, component("jobs"))
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
