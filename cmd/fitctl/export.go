package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"example.com/fittrack/internal/domain"
)

// exportDocument is the portable form of the whole store.
type exportDocument struct {
	ExportedAt string        `json:"exported_at" yaml:"exported_at"`
	Entries    []exportEntry `json:"entries" yaml:"entries"`
	Goals      []exportGoal  `json:"goals" yaml:"goals"`
}

type exportEntry struct {
	ID        string           `json:"id" yaml:"id"`
	Kind      string           `json:"kind" yaml:"kind"`
	Date      string           `json:"date" yaml:"date"`
	Version   int              `json:"version" yaml:"version"`
	Activity  *exportActivity  `json:"activity,omitempty" yaml:"activity,omitempty"`
	Nutrition *exportNutrition `json:"nutrition,omitempty" yaml:"nutrition,omitempty"`
}

type exportActivity struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"activity_type" yaml:"activity_type"`
	DurationMin int    `json:"duration_min" yaml:"duration_min"`
	Intensity   string `json:"intensity" yaml:"intensity"`
}

type exportNutrition struct {
	FoodItem     string  `json:"food_item" yaml:"food_item"`
	Calories     float64 `json:"calories" yaml:"calories"`
	CarbsGrams   float64 `json:"carbs_grams" yaml:"carbs_grams"`
	ProteinGrams float64 `json:"protein_grams" yaml:"protein_grams"`
	FatsGrams    float64 `json:"fats_grams" yaml:"fats_grams"`
}

type exportGoal struct {
	Type        string  `json:"goal_type" yaml:"goal_type"`
	TargetValue float64 `json:"target_value" yaml:"target_value"`
	Period      string  `json:"period" yaml:"period"`
}

func newExportCmd(a *app) *cobra.Command {
	var format, from, to, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump entries and goals as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dateRange, err := parseRangeFlags(from, to)
			if err != nil {
				return err
			}
			entries, err := a.entries.ListAll(cmd.Context(), dateRange, "")
			if err != nil {
				return err
			}
			goals, err := a.goals.Goals(cmd.Context())
			if err != nil {
				return err
			}
			doc := buildExport(entries, goals, time.Now().UTC())

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return writeExport(out, format, doc)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or yaml")
	cmd.Flags().StringVar(&from, "from", "", "First day to include")
	cmd.Flags().StringVar(&to, "to", "", "Last day to include")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func buildExport(entries []domain.Entry, goals []domain.Goal, now time.Time) exportDocument {
	doc := exportDocument{
		ExportedAt: now.Format(time.RFC3339),
		Entries:    make([]exportEntry, 0, len(entries)),
		Goals:      make([]exportGoal, 0, len(goals)),
	}
	for _, e := range entries {
		item := exportEntry{
			ID:      e.ID,
			Kind:    string(e.Kind),
			Date:    e.Date.Format(domain.DateLayout),
			Version: e.Version,
		}
		if e.Activity != nil {
			item.Activity = &exportActivity{
				Name:        e.Activity.Name,
				Type:        string(e.Activity.Type),
				DurationMin: e.Activity.DurationMin,
				Intensity:   string(e.Activity.Intensity),
			}
		}
		if e.Nutrition != nil {
			item.Nutrition = &exportNutrition{
				FoodItem:     e.Nutrition.FoodItem,
				Calories:     e.Nutrition.Calories,
				CarbsGrams:   e.Nutrition.CarbsGrams,
				ProteinGrams: e.Nutrition.ProteinGrams,
				FatsGrams:    e.Nutrition.FatsGrams,
			}
		}
		doc.Entries = append(doc.Entries, item)
	}
	for _, g := range goals {
		doc.Goals = append(doc.Goals, exportGoal{
			Type:        string(g.Type),
			TargetValue: g.TargetValue,
			Period:      string(g.Period),
		})
	}
	return doc
}

func writeExport(out io.Writer, format string, doc exportDocument) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format %q (want json or yaml)", format)
}
