package domain

import (
	"context"
	"time"

	"example.com/fittrack/internal/observability"
)

// GoalRepository captures goal persistence. Goals are keyed by type.
type GoalRepository interface {
	UpsertGoal(ctx context.Context, goal Goal) (Goal, error)
	GetGoal(ctx context.Context, goalType GoalType) (*Goal, error)
	ListGoals(ctx context.Context) ([]Goal, error)
	DeleteGoal(ctx context.Context, goalType GoalType) (bool, error)
}

// GoalTracker stores goals and evaluates them against logged entries.
type GoalTracker struct {
	entries   EntryRepository
	goals     GoalRepository
	weekStart time.Weekday
	clock     Clock
}

// TrackerOption configures a GoalTracker.
type TrackerOption func(*GoalTracker)

// WithWeekStart sets the first day of a weekly window. Monday by default.
func WithWeekStart(day time.Weekday) TrackerOption {
	return func(t *GoalTracker) {
		t.weekStart = day
	}
}

// WithTrackerClock overrides time.Now, mostly for tests.
func WithTrackerClock(clock Clock) TrackerOption {
	return func(t *GoalTracker) {
		t.clock = clock
	}
}

// NewGoalTracker constructs a GoalTracker.
func NewGoalTracker(entries EntryRepository, goals GoalRepository, opts ...TrackerOption) *GoalTracker {
	t := &GoalTracker{
		entries:   entries,
		goals:     goals,
		weekStart: time.Monday,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetGoal validates and stores a goal, replacing any goal of the same type.
func (t *GoalTracker) SetGoal(ctx context.Context, goal Goal) (*Goal, error) {
	if err := goal.Validate(); err != nil {
		return nil, err
	}
	now := t.clock().UTC()
	goal.Period = goal.Type.Period()
	if goal.ID == "" {
		goal.ID = newID()
	}
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = now
	}
	goal.UpdatedAt = now

	stored, err := t.goals.UpsertGoal(ctx, goal)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Goal fetches the goal of the given type.
func (t *GoalTracker) Goal(ctx context.Context, goalType GoalType) (*Goal, error) {
	goal, err := t.goals.GetGoal(ctx, goalType)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, &NotFoundError{Resource: "goal", ID: string(goalType)}
	}
	return goal, nil
}

// Goals lists every stored goal.
func (t *GoalTracker) Goals(ctx context.Context) ([]Goal, error) {
	goals, err := t.goals.ListGoals(ctx)
	if err != nil {
		return nil, err
	}
	if goals == nil {
		goals = []Goal{}
	}
	return goals, nil
}

// DeleteGoal removes the goal of the given type.
func (t *GoalTracker) DeleteGoal(ctx context.Context, goalType GoalType) error {
	ok, err := t.goals.DeleteGoal(ctx, goalType)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Resource: "goal", ID: string(goalType)}
	}
	return nil
}

// Today returns the current day according to the tracker clock.
func (t *GoalTracker) Today() time.Time {
	return Day(t.clock())
}

// Window returns the period window of goalType that ends at asOf.
func (t *GoalTracker) Window(goalType GoalType, asOf time.Time) DateRange {
	day := Day(asOf)
	if goalType.Period() == PeriodDay {
		return DateRange{From: day, To: day}
	}
	offset := (int(day.Weekday()) - int(t.weekStart) + 7) % 7
	return DateRange{From: day.AddDate(0, 0, -offset), To: day}
}

// Evaluate sums the entries in the goal's window ending at asOf and compares
// the total to the target. Exercise goals are met at or above the target;
// calorie limits are met at or below it.
func (t *GoalTracker) Evaluate(ctx context.Context, goal Goal, asOf time.Time) (*Evaluation, error) {
	if err := goal.Validate(); err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = t.Today()
	}

	window := t.Window(goal.Type, asOf)
	var kind EntryKind
	if goal.Type == GoalWeeklyExerciseMinutes {
		kind = EntryKindActivity
	} else {
		kind = EntryKindNutrition
	}

	entries, err := listAll(ctx, t.entries, window, kind)
	if err != nil {
		return nil, err
	}

	var current float64
	for _, e := range entries {
		switch {
		case e.Activity != nil:
			current += float64(e.Activity.DurationMin)
		case e.Nutrition != nil:
			current += e.Nutrition.Calories
		}
	}

	eval := &Evaluation{
		GoalType:     goal.Type,
		Period:       goal.Type.Period(),
		Window:       window,
		CurrentValue: current,
		TargetValue:  goal.TargetValue,
		Remaining:    max(goal.TargetValue-current, 0),
		Progress:     current / goal.TargetValue,
	}
	if goal.Type == GoalWeeklyExerciseMinutes {
		eval.Met = current >= goal.TargetValue
	} else {
		eval.Met = current <= goal.TargetValue
	}

	observability.RecordGoalEvaluated(string(goal.Type), eval.Met, eval.Progress)
	return eval, nil
}

// EvaluateType loads the stored goal of goalType and evaluates it.
func (t *GoalTracker) EvaluateType(ctx context.Context, goalType GoalType, asOf time.Time) (*Evaluation, error) {
	goal, err := t.Goal(ctx, goalType)
	if err != nil {
		return nil, err
	}
	return t.Evaluate(ctx, *goal, asOf)
}

// Summary evaluates every stored goal as of the given day.
func (t *GoalTracker) Summary(ctx context.Context, asOf time.Time) ([]Evaluation, error) {
	goals, err := t.Goals(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Evaluation, 0, len(goals))
	for _, goal := range goals {
		eval, err := t.Evaluate(ctx, goal, asOf)
		if err != nil {
			return nil, err
		}
		out = append(out, *eval)
	}
	return out, nil
}
