package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/pennywise/internal/model"
	"github.com/cleared-dev/pennywise/internal/roundup"
	"github.com/cleared-dev/pennywise/internal/store"
)

func newRoundUpCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "roundup",
		Aliases: []string{"roundups"},
		Short:   "Configure and collect spare-change round-ups",
	}

	cmd.AddCommand(newRoundUpConfigureCommand(opts), newRoundUpIngestCommand(opts), newRoundUpListCommand(opts))

	return cmd
}

// parseOptionalMoney returns nil for an empty flag value.
func parseOptionalMoney(name, v string) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: %w", name, v, err)
	}
	return &d, nil
}

func newRoundUpConfigureCommand(opts *globalOptions) *cobra.Command {
	var (
		rule       string
		multiplier int
		dailyCap   string
		weeklyCap  string
		goalID     string
		cadence    string
		minimum    string
		disable    bool
	)

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Set the round-up rule, caps and target goal",
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

			// Unset flags fall back to the stored config, then to pennywise.yaml defaults.
			s := roundup.Settings{
				Enabled:         !disable,
				Rule:            model.RoundingRule(a.cfg.RoundUp.DefaultRule),
				Multiplier:      a.cfg.RoundUp.DefaultMultiplier,
				Cadence:         model.Cadence(a.cfg.RoundUp.DefaultCadence),
				MinimumTransfer: decimal.NewFromFloat(a.cfg.RoundUp.DefaultMinimum),
			}
			existing, err := a.store.GetRoundUpConfig(cmd.Context(), opts.userID)
			switch {
			case err == nil:
				s.Rule = existing.Rule
				s.Multiplier = existing.Multiplier.Int()
				s.DailyCap = existing.DailyCap
				s.WeeklyCap = existing.WeeklyCap
				s.GoalID = existing.GoalID
				s.Cadence = existing.Cadence
				s.MinimumTransfer = existing.MinimumTransfer
			case !errors.Is(err, store.ErrNotFound):
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("rule") {
				s.Rule = model.RoundingRule(rule)
			}
			if flags.Changed("multiplier") {
				s.Multiplier = multiplier
			}
			if flags.Changed("daily-cap") {
				if s.DailyCap, err = parseOptionalMoney("daily-cap", dailyCap); err != nil {
					return err
				}
			}
			if flags.Changed("weekly-cap") {
				if s.WeeklyCap, err = parseOptionalMoney("weekly-cap", weeklyCap); err != nil {
					return err
				}
			}
			if flags.Changed("goal") {
				s.GoalID = goalID
			}
			if flags.Changed("cadence") {
				s.Cadence = model.Cadence(cadence)
			}
			if flags.Changed("minimum") {
				m, err := decimal.NewFromString(minimum)
				if err != nil {
					return fmt.Errorf("invalid --minimum %q: %w", minimum, err)
				}
				s.MinimumTransfer = m
			}

			cfg, err := a.roundups.Configure(cmd.Context(), opts.userID, s, now)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			state := "enabled"
			if !cfg.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(out, "Round-ups %s: %s x%d to goal %s, %s transfers, minimum %s\n", state,
				cfg.Rule, cfg.Multiplier.Int(), cfg.GoalID, cfg.Cadence, cfg.MinimumTransfer.StringFixed(2))
			if cfg.Multiplier.Int() != s.Multiplier {
				fmt.Fprintf(out, "Multiplier %d clamped to %d\n", s.Multiplier, cfg.Multiplier.Int())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rule, "rule", "", "rounding rule: nearest-1, nearest-2 or nearest-5")
	cmd.Flags().IntVar(&multiplier, "multiplier", 1, "multiply each round-up (1-10)")
	cmd.Flags().StringVar(&dailyCap, "daily-cap", "", "maximum round-ups per day; empty removes the cap")
	cmd.Flags().StringVar(&weeklyCap, "weekly-cap", "", "maximum round-ups per week; empty removes the cap")
	cmd.Flags().StringVar(&goalID, "goal", "", "goal that receives round-ups")
	cmd.Flags().StringVar(&cadence, "cadence", "", "transfer cadence: daily, weekly or monthly")
	cmd.Flags().StringVar(&minimum, "minimum", "", "smallest batch worth transferring")
	cmd.Flags().BoolVar(&disable, "disable", false, "stop creating round-ups")

	return cmd
}

// ingestUser feeds a user's transactions since round-ups were enabled
// through the round-up engine. ok is false when round-ups are off.
func (a *app) ingestUser(ctx context.Context, userID string, now time.Time) (sum roundup.Summary, ok bool, err error) {
	since, ok, err := a.roundups.Since(ctx, userID, now, a.cfg.Detector.LookbackDays)
	if err != nil || !ok {
		return roundup.Summary{}, false, err
	}
	txns, err := a.store.ListTransactions(ctx, userID, since)
	if err != nil {
		return roundup.Summary{}, true, err
	}
	sum, err = a.roundups.IngestAll(ctx, txns, now)
	return sum, true, err
}

func newRoundUpIngestCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Create round-ups for imported debit transactions",
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
			sum, ok, err := a.ingestUser(cmd.Context(), opts.userID, now)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "Round-ups are not enabled")
				return nil
			}
			fmt.Fprintf(out, "Created %d round-ups totalling %s\n", sum.Outcomes[roundup.OutcomeCreated], sum.Total.StringFixed(2))
			if n := sum.Outcomes[roundup.OutcomeCapReached] + sum.Truncated; n > 0 {
				fmt.Fprintf(out, "%d limited by caps\n", n)
			}
			if n := sum.Outcomes[roundup.OutcomeDeclined]; n > 0 {
				fmt.Fprintf(out, "%d already declined earlier\n", n)
			}
			return nil
		},
	}
}

func newRoundUpListCommand(opts *globalOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List round-up records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var statuses []model.RoundUpStatus
			if status != "" {
				statuses = append(statuses, model.RoundUpStatus(status))
			}
			rus, err := a.store.ListRoundUps(cmd.Context(), opts.userID, statuses...)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tSOURCE\tSPENT\tROUND-UP\tAMOUNT\tSTATUS\tBATCH")
			for _, r := range rus {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.OccurredAt.Format(time.DateOnly), r.SourceTransactionID,
					r.OriginalAmount.StringFixed(2), r.RoundUp.StringFixed(2), r.Multiplied.StringFixed(2), r.Status, r.BatchID)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show this status")

	return cmd
}
