package api

import (
	"time"

	"example.com/fittrack/internal/domain"
)

// EntryRequest is the payload for POST /v1/entries and PUT /v1/entries/{id}.
// Exactly one of Activity or Nutrition must be present.
type EntryRequest struct {
	Date            string            `json:"date,omitempty"`
	Activity        *ActivityPayload  `json:"activity,omitempty"`
	Nutrition       *NutritionPayload `json:"nutrition,omitempty"`
	ExpectedVersion int               `json:"expected_version,omitempty"`
}

// ActivityPayload describes a workout.
type ActivityPayload struct {
	Name        string `json:"name,omitempty"`
	Type        string `json:"type"`
	DurationMin int    `json:"duration_min"`
	Intensity   string `json:"intensity"`
}

// NutritionPayload describes a meal. Omitted macros count as zero.
type NutritionPayload struct {
	FoodItem     string  `json:"food_item,omitempty"`
	Calories     float64 `json:"calories"`
	CarbsGrams   float64 `json:"carbs_grams"`
	ProteinGrams float64 `json:"protein_grams"`
	FatsGrams    float64 `json:"fats_grams"`
}

func (r EntryRequest) toNewEntry() (domain.NewEntry, error) {
	date, err := parseOptionalDay("date", r.Date)
	if err != nil {
		return domain.NewEntry{}, err
	}
	input := domain.NewEntry{Date: date}
	if a := r.Activity; a != nil {
		input.Activity = &domain.Activity{
			Name:        a.Name,
			Type:        domain.ActivityType(a.Type),
			DurationMin: a.DurationMin,
			Intensity:   domain.Intensity(a.Intensity),
		}
	}
	if n := r.Nutrition; n != nil {
		input.Nutrition = &domain.Nutrition{
			FoodItem:     n.FoodItem,
			Calories:     n.Calories,
			CarbsGrams:   n.CarbsGrams,
			ProteinGrams: n.ProteinGrams,
			FatsGrams:    n.FatsGrams,
		}
	}
	return input, nil
}

// EntryView exposes a stored entry.
type EntryView struct {
	EntryID   string            `json:"entry_id"`
	Kind      string            `json:"kind"`
	Date      string            `json:"date"`
	Activity  *ActivityPayload  `json:"activity,omitempty"`
	Nutrition *NutritionPayload `json:"nutrition,omitempty"`
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ListEntriesResponse packages list results.
type ListEntriesResponse struct {
	Items      []EntryView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// GoalRequest is the payload for PUT /v1/goals/{type}.
type GoalRequest struct {
	TargetValue float64 `json:"target_value"`
}

// GoalView exposes a stored goal.
type GoalView struct {
	GoalID      string    `json:"goal_id"`
	GoalType    string    `json:"goal_type"`
	TargetValue float64   `json:"target_value"`
	Period      string    `json:"period"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListGoalsResponse packages the current goals.
type ListGoalsResponse struct {
	Items []GoalView `json:"items"`
}

// EvaluationView reports progress toward one goal.
type EvaluationView struct {
	GoalType     string  `json:"goal_type"`
	Period       string  `json:"period"`
	WindowStart  string  `json:"window_start"`
	WindowEnd    string  `json:"window_end"`
	CurrentValue float64 `json:"current_value"`
	TargetValue  float64 `json:"target_value"`
	Remaining    float64 `json:"remaining"`
	Progress     float64 `json:"progress"`
	Met          bool    `json:"met"`
}

// SummaryResponse evaluates every goal as of one day.
type SummaryResponse struct {
	AsOf  string           `json:"as_of"`
	Goals []EvaluationView `json:"goals"`
}

func toEntryView(e domain.Entry) EntryView {
	view := EntryView{
		EntryID:   e.ID,
		Kind:      string(e.Kind),
		Date:      e.Date.Format(domain.DateLayout),
		Version:   e.Version,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if a := e.Activity; a != nil {
		view.Activity = &ActivityPayload{
			Name:        a.Name,
			Type:        string(a.Type),
			DurationMin: a.DurationMin,
			Intensity:   string(a.Intensity),
		}
	}
	if n := e.Nutrition; n != nil {
		view.Nutrition = &NutritionPayload{
			FoodItem:     n.FoodItem,
			Calories:     n.Calories,
			CarbsGrams:   n.CarbsGrams,
			ProteinGrams: n.ProteinGrams,
			FatsGrams:    n.FatsGrams,
		}
	}
	return view
}

func toGoalView(g domain.Goal) GoalView {
	return GoalView{
		GoalID:      g.ID,
		GoalType:    string(g.Type),
		TargetValue: g.TargetValue,
		Period:      string(g.Period),
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func toEvaluationView(e domain.Evaluation) EvaluationView {
	return EvaluationView{
		GoalType:     string(e.GoalType),
		Period:       string(e.Period),
		WindowStart:  e.Window.From.Format(domain.DateLayout),
		WindowEnd:    e.Window.To.Format(domain.DateLayout),
		CurrentValue: e.CurrentValue,
		TargetValue:  e.TargetValue,
		Remaining:    e.Remaining,
		Progress:     e.Progress,
		Met:          e.Met,
	}
}
