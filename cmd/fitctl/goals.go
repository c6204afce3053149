package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"example.com/fittrack/internal/domain"
)

func newGoalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "goal", Short: "Manage fitness goals"}

	cmd.AddCommand(&cobra.Command{
		Use:   "set TYPE TARGET",
		Short: "Set weekly-exercise-minutes or daily-calorie-limit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			goalType, err := domain.ParseGoalType(args[0])
			if err != nil {
				return err
			}
			target, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("target must be a number: %w", err)
			}
			goal, err := a.goals.SetGoal(cmd.Context(), domain.Goal{Type: goalType, TargetValue: target})
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "goal %s set to %s per %s\n", goal.Type, formatNumber(goal.TargetValue), goal.Period)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List goals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			goals, err := a.goals.Goals(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(goals) == 0 {
				printf(out, "no goals\n")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			printf(tw, "TYPE\tTARGET\tPERIOD\n")
			for _, g := range goals {
				printf(tw, "%s\t%s\t%s\n", g.Type, formatNumber(g.TargetValue), g.Period)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete TYPE",
		Short: "Remove a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goalType, err := domain.ParseGoalType(args[0])
			if err != nil {
				return err
			}
			if err := a.goals.DeleteGoal(cmd.Context(), goalType); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "deleted goal %s\n", goalType)
			return nil
		},
	})

	var asOf string
	evalCmd := &cobra.Command{
		Use:   "evaluate TYPE",
		Short: "Check progress towards a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goalType, err := domain.ParseGoalType(args[0])
			if err != nil {
				return err
			}
			day, err := parseDayFlag("as-of", asOf)
			if err != nil {
				return err
			}
			eval, err := a.goals.EvaluateType(cmd.Context(), goalType, day)
			if err != nil {
				return err
			}
			return writeEvaluations(cmd.OutOrStdout(), []domain.Evaluation{*eval})
		},
	}
	evalCmd.Flags().StringVar(&asOf, "as-of", "", "Day to evaluate, defaults to today")
	cmd.AddCommand(evalCmd)
	return cmd
}

func newSummaryCmd(a *app) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Evaluate every goal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDayFlag("as-of", asOf)
			if err != nil {
				return err
			}
			if day.IsZero() {
				day = a.goals.Today()
			}
			evals, err := a.goals.Summary(cmd.Context(), day)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(evals) == 0 {
				printf(out, "no goals set\n")
				return nil
			}
			printf(out, "as of %s\n", day.Format(domain.DateLayout))
			return writeEvaluations(out, evals)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Day to evaluate, defaults to today")
	return cmd
}

func writeEvaluations(out io.Writer, evals []domain.Evaluation) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	printf(tw, "GOAL\tWINDOW\tCURRENT\tTARGET\tSTATUS\n")
	for _, e := range evals {
		status := "not met"
		if e.Met {
			status = "met"
		}
		window := e.Window.From.Format(domain.DateLayout)
		if !e.Window.To.Equal(e.Window.From) {
			window += ".." + e.Window.To.Format(domain.DateLayout)
		}
		printf(tw, "%s\t%s\t%s\t%s\t%s\n", e.GoalType, window, formatNumber(e.CurrentValue), formatNumber(e.TargetValue), status)
	}
	return tw.Flush()
}
