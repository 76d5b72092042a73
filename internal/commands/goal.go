package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/pennywise/internal/goals"
)

func newGoalCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "goal",
		Aliases: []string{"goals"},
		Short:   "Manage savings goals",
	}

	cmd.AddCommand(
		newGoalAddCommand(opts),
		newGoalContributeCommand(opts),
		newGoalStatusCommand(opts),
		newGoalListCommand(opts),
		newGoalArchiveCommand(opts),
	)

	return cmd
}

func newGoalAddCommand(opts *globalOptions) *cobra.Command {
	var (
		name     string
		target   string
		deadline string
		priority int
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a savings goal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(target)
			if err != nil {
				return fmt.Errorf("invalid --target %q: %w", target, err)
			}
			in := goals.NewGoal{UserID: opts.userID, Name: name, Target: amount, Priority: priority}
			if deadline != "" {
				d, err := time.Parse(time.DateOnly, deadline)
				if err != nil {
					return fmt.Errorf("invalid --deadline %q: want YYYY-MM-DD", deadline)
				}
				in.Deadline = &d
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			now, err := opts.now()
			if err != nil {
				return err
			}
			g, err := a.goals.CreateGoal(cmd.Context(), in, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created goal %s\n", g.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "goal name")
	cmd.Flags().StringVar(&target, "target", "", "amount to save")
	cmd.Flags().StringVar(&deadline, "deadline", "", "target date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&priority, "priority", 0, "higher sorts first")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func newGoalContributeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "contribute <goal-id> <amount>",
		Short: "Record a manual deposit into a goal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			now, err := opts.now()
			if err != nil {
				return err
			}
			if _, err := a.goals.Contribute(cmd.Context(), opts.userID, args[0], amount, now); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s to goal %s\n", amount.StringFixed(2), args[0])
			return nil
		},
	}
}

func newGoalStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <goal-id>",
		Short: "Show progress and projection for a goal",
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
			p, err := a.goals.Status(cmd.Context(), opts.userID, args[0], now)
			if err != nil {
				return err
			}
			printProjection(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func printProjection(w io.Writer, p goals.Projection) {
	g := p.Goal
	fmt.Fprintf(w, "%s (%s)\n", g.Name, g.ID)
	fmt.Fprintf(w, "  saved:     %s of %s (%s%%)\n", g.Current.StringFixed(2), g.Target.StringFixed(2),
		p.PercentComplete.StringFixed(1))
	fmt.Fprintf(w, "  status:    %s\n", p.Status)
	fmt.Fprintf(w, "  monthly:   %s\n", p.CurrentMonthly.StringFixed(2))
	if p.RequiredMonthly != nil {
		fmt.Fprintf(w, "  required:  %s per month until %s\n", p.RequiredMonthly.StringFixed(2),
			g.Deadline.Format(time.DateOnly))
	}
	if p.ProjectedCompletion != nil {
		fmt.Fprintf(w, "  projected: %s\n", p.ProjectedCompletion.Format(time.DateOnly))
	}
	for _, m := range p.Milestones {
		if m.Reached && m.ReachedAt != nil {
			fmt.Fprintf(w, "  %d%% reached %s\n", m.Percent, m.ReachedAt.Format(time.DateOnly))
		}
	}
	if !g.Active {
		fmt.Fprintln(w, "  archived")
	}
}

func newGoalListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List goals with their status",
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
			ps, err := a.goals.List(cmd.Context(), opts.userID, now)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSAVED\tTARGET\tPERCENT\tSTATUS\tACTIVE")
			for _, p := range ps {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n", p.Goal.ID, p.Goal.Name, p.Goal.Current.StringFixed(2),
					p.Goal.Target.StringFixed(2), p.PercentComplete.StringFixed(1), p.Status, p.Goal.Active)
			}
			return tw.Flush()
		},
	}
}

func newGoalArchiveCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <goal-id>",
		Short: "Stop a goal from receiving contributions",
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
			if err := a.goals.Archive(cmd.Context(), opts.userID, args[0], now); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived goal %s\n", args[0])
			return nil
		},
	}
}
