package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"example.com/fittrack/internal/domain"
)

func newActivityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "activity", Short: "Activity entries"}

	var name, activityType, intensity, date string
	var duration int
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Log an activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDayFlag("date", date)
			if err != nil {
				return err
			}
			entry, err := a.entries.Add(cmd.Context(), domain.NewEntry{
				Date: day,
				Activity: &domain.Activity{
					Name:        name,
					Type:        domain.ActivityType(activityType),
					DurationMin: duration,
					Intensity:   domain.Intensity(intensity),
				},
			})
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "logged activity %s on %s\n", entry.ID, entry.Date.Format(domain.DateLayout))
			return nil
		},
	}
	addCmd.Flags().StringVarP(&name, "name", "n", "", "Activity name")
	addCmd.Flags().StringVarP(&activityType, "type", "t", "", "running, walking, weight-training or other (required)")
	addCmd.Flags().IntVarP(&duration, "duration", "m", 0, "Duration in minutes (required)")
	addCmd.Flags().StringVarP(&intensity, "intensity", "i", string(domain.IntensityMedium), "low, medium or high")
	addCmd.Flags().StringVarP(&date, "date", "d", "", "Day of the activity, defaults to today")
	_ = addCmd.MarkFlagRequired("type")
	_ = addCmd.MarkFlagRequired("duration")
	cmd.AddCommand(addCmd)
	return cmd
}

func newNutritionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "nutrition", Short: "Nutrition entries"}

	var food, date string
	var calories, carbs, protein, fats float64
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Log a meal or food item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDayFlag("date", date)
			if err != nil {
				return err
			}
			entry, err := a.entries.Add(cmd.Context(), domain.NewEntry{
				Date: day,
				Nutrition: &domain.Nutrition{
					FoodItem:     food,
					Calories:     calories,
					CarbsGrams:   carbs,
					ProteinGrams: protein,
					FatsGrams:    fats,
				},
			})
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "logged nutrition %s on %s\n", entry.ID, entry.Date.Format(domain.DateLayout))
			return nil
		},
	}
	addCmd.Flags().StringVarP(&food, "food", "f", "", "Food item")
	addCmd.Flags().Float64VarP(&calories, "calories", "c", 0, "Calories (required)")
	addCmd.Flags().Float64Var(&carbs, "carbs", 0, "Carbohydrates in grams")
	addCmd.Flags().Float64Var(&protein, "protein", 0, "Protein in grams")
	addCmd.Flags().Float64Var(&fats, "fats", 0, "Fats in grams")
	addCmd.Flags().StringVarP(&date, "date", "d", "", "Day of the meal, defaults to today")
	_ = addCmd.MarkFlagRequired("calories")
	cmd.AddCommand(addCmd)
	return cmd
}

func newEntriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "entries", Short: "Browse and remove logged entries"}

	var from, to, kind string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List entries in chronological order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dateRange, err := parseRangeFlags(from, to)
			if err != nil {
				return err
			}
			var entryKind domain.EntryKind
			if kind != "" {
				if entryKind, err = domain.ParseEntryKind(kind); err != nil {
					return err
				}
			}
			entries, err := a.entries.ListAll(cmd.Context(), dateRange, entryKind)
			if err != nil {
				return err
			}
			return writeEntries(cmd.OutOrStdout(), entries)
		},
	}
	listCmd.Flags().StringVar(&from, "from", "", "First day to include")
	listCmd.Flags().StringVar(&to, "to", "", "Last day to include")
	listCmd.Flags().StringVarP(&kind, "kind", "k", "", "activity or nutrition")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "get ID",
		Short: "Show a single entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := a.entries.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeEntries(cmd.OutOrStdout(), []domain.Entry{*entry})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.entries.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func parseRangeFlags(from, to string) (domain.DateRange, error) {
	var (
		r   domain.DateRange
		err error
	)
	if r.From, err = parseDayFlag("from", from); err != nil {
		return r, err
	}
	if r.To, err = parseDayFlag("to", to); err != nil {
		return r, err
	}
	return r, nil
}

func writeEntries(out io.Writer, entries []domain.Entry) error {
	if len(entries) == 0 {
		printf(out, "no entries\n")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	printf(tw, "DATE\tKIND\tDETAIL\tAMOUNT\tID\n")
	for _, e := range entries {
		date := e.Date.Format(domain.DateLayout)
		switch {
		case e.Activity != nil:
			detail := string(e.Activity.Type)
			if e.Activity.Name != "" {
				detail = fmt.Sprintf("%s (%s)", e.Activity.Name, e.Activity.Type)
			}
			printf(tw, "%s\t%s\t%s\t%d min, %s\t%s\n", date, e.Kind, detail, e.Activity.DurationMin, e.Activity.Intensity, e.ID)
		case e.Nutrition != nil:
			printf(tw, "%s\t%s\t%s\t%s kcal\t%s\n", date, e.Kind, e.Nutrition.FoodItem, formatNumber(e.Nutrition.Calories), e.ID)
		}
	}
	return tw.Flush()
}
