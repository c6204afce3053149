package domain

import (
	"math"
	"strings"
	"time"
)

// GoalType enumerates the supported targets.
type GoalType string

const (
	GoalWeeklyExerciseMinutes GoalType = "weekly-exercise-minutes"
	GoalDailyCalorieLimit     GoalType = "daily-calorie-limit"
)

// GoalTypes lists every supported goal type in display order.
var GoalTypes = []GoalType{GoalWeeklyExerciseMinutes, GoalDailyCalorieLimit}

// ParseGoalType accepts the canonical names, with underscores tolerated.
func ParseGoalType(value string) (GoalType, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "_", "-")
	switch GoalType(normalized) {
	case GoalWeeklyExerciseMinutes, GoalDailyCalorieLimit:
		return GoalType(normalized), nil
	}
	return "", &ValidationError{Field: "goal_type", Reason: "must be weekly-exercise-minutes or daily-calorie-limit"}
}

// Period is the recurring window a goal is measured over.
type Period string

const (
	PeriodDay  Period = "day"
	PeriodWeek Period = "week"
)

// Period returns the window implied by the goal type.
func (t GoalType) Period() Period {
	if t == GoalWeeklyExerciseMinutes {
		return PeriodWeek
	}
	return PeriodDay
}

// Goal is a user-defined numeric target. There is at most one goal per type.
type Goal struct {
	ID          string
	Type        GoalType
	TargetValue float64
	Period      Period
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the type, the period and a finite, strictly positive target.
func (g Goal) Validate() error {
	switch g.Type {
	case GoalWeeklyExerciseMinutes, GoalDailyCalorieLimit:
	default:
		return &ValidationError{Field: "goal_type", Reason: "must be weekly-exercise-minutes or daily-calorie-limit"}
	}
	if g.Period != "" && g.Period != g.Type.Period() {
		return &ValidationError{Field: "period", Reason: "must be " + string(g.Type.Period()) + " for " + string(g.Type)}
	}
	if math.IsNaN(g.TargetValue) || math.IsInf(g.TargetValue, 0) {
		return &ValidationError{Field: "target_value", Reason: "must be a finite number"}
	}
	if g.TargetValue <= 0 {
		return &ValidationError{Field: "target_value", Reason: "must be > 0"}
	}
	return nil
}

// Evaluation is the progress of a goal over the window ending at an as-of day.
type Evaluation struct {
	GoalType     GoalType
	Period       Period
	Window       DateRange
	CurrentValue float64
	TargetValue  float64
	Met          bool
	// Remaining is how far the current value is from the target: minutes still
	// to exercise, or calories left before the limit. Never negative.
	Remaining float64
	// Progress is CurrentValue / TargetValue.
	Progress float64
}
