package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

// EntryKind tags the payload carried by an Entry.
type EntryKind string

const (
	EntryKindActivity  EntryKind = "activity"
	EntryKindNutrition EntryKind = "nutrition"
)

// ParseEntryKind accepts either kind name in any case.
func ParseEntryKind(value string) (EntryKind, error) {
	switch EntryKind(strings.ToLower(strings.TrimSpace(value))) {
	case EntryKindActivity:
		return EntryKindActivity, nil
	case EntryKindNutrition:
		return EntryKindNutrition, nil
	}
	return "", &ValidationError{Field: "kind", Reason: "must be activity or nutrition"}
}

// ActivityType enumerates the supported workout categories.
type ActivityType string

const (
	ActivityRunning        ActivityType = "running"
	ActivityWalking        ActivityType = "walking"
	ActivityWeightTraining ActivityType = "weight-training"
	ActivityOther          ActivityType = "other"
)

// ParseActivityType normalises user input such as "Weight Training" or "weight_training".
func ParseActivityType(value string) (ActivityType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer("_", "-", " ", "-").Replace(normalized)
	switch ActivityType(normalized) {
	case ActivityRunning, ActivityWalking, ActivityWeightTraining, ActivityOther:
		return ActivityType(normalized), nil
	}
	return "", &ValidationError{Field: "activity_type", Reason: "must be one of running, walking, weight-training, other"}
}

// Intensity describes how hard an activity was.
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// ParseIntensity accepts low, medium or high in any case.
func ParseIntensity(value string) (Intensity, error) {
	switch Intensity(strings.ToLower(strings.TrimSpace(value))) {
	case IntensityLow:
		return IntensityLow, nil
	case IntensityMedium:
		return IntensityMedium, nil
	case IntensityHigh:
		return IntensityHigh, nil
	}
	return "", &ValidationError{Field: "intensity", Reason: "must be one of low, medium, high"}
}

// Activity is the payload of an activity entry.
type Activity struct {
	Name        string
	Type        ActivityType
	DurationMin int
	Intensity   Intensity
}

// Nutrition is the payload of a nutrition entry. Macros are grams.
type Nutrition struct {
	FoodItem     string
	Calories     float64
	CarbsGrams   float64
	ProteinGrams float64
	FatsGrams    float64
}

// Entry is a single logged activity or nutrition record. Exactly one of
// Activity or Nutrition is set, matching Kind.
type Entry struct {
	ID        string
	Kind      EntryKind
	Date      time.Time
	Activity  *Activity
	Nutrition *Nutrition
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEntry is the caller-supplied part of an entry.
type NewEntry struct {
	Date      time.Time
	Activity  *Activity
	Nutrition *Nutrition
}

// Kind reports which payload the input carries.
func (n NewEntry) Kind() EntryKind {
	if n.Activity != nil {
		return EntryKindActivity
	}
	return EntryKindNutrition
}

// Validate checks the payload shape and numeric constraints.
func (n NewEntry) Validate() error {
	switch {
	case n.Activity != nil && n.Nutrition != nil:
		return &ValidationError{Field: "entry", Reason: "must carry either an activity or a nutrition payload, not both"}
	case n.Activity != nil:
		return n.Activity.Validate()
	case n.Nutrition != nil:
		return n.Nutrition.Validate()
	}
	return &ValidationError{Field: "entry", Reason: "activity or nutrition payload is required"}
}

// MaxDurationMin caps a single activity at one day.
const MaxDurationMin = 24 * 60

// Validate enforces enumerations and a duration within (0, MaxDurationMin].
func (a Activity) Validate() error {
	switch a.Type {
	case ActivityRunning, ActivityWalking, ActivityWeightTraining, ActivityOther:
	default:
		return &ValidationError{Field: "activity_type", Reason: "must be one of running, walking, weight-training, other"}
	}
	switch a.Intensity {
	case IntensityLow, IntensityMedium, IntensityHigh:
	default:
		return &ValidationError{Field: "intensity", Reason: "must be one of low, medium, high"}
	}
	if a.DurationMin <= 0 {
		return &ValidationError{Field: "duration_min", Reason: "must be > 0"}
	}
	if a.DurationMin > MaxDurationMin {
		return &ValidationError{Field: "duration_min", Reason: fmt.Sprintf("must be <= %d", MaxDurationMin)}
	}
	return nil
}

// Validate rejects negative or non-finite amounts.
func (n Nutrition) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"calories", n.Calories},
		{"carbs_grams", n.CarbsGrams},
		{"protein_grams", n.ProteinGrams},
		{"fats_grams", n.FatsGrams},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &ValidationError{Field: f.name, Reason: "must be a finite number"}
		}
		if f.value < 0 {
			return &ValidationError{Field: f.name, Reason: "must be >= 0"}
		}
	}
	return nil
}

// Day truncates t to the start of its calendar day in UTC. The calendar
// fields of t are kept as-is, so 23:30 in UTC-5 stays on that local day.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a normalised day.
func ParseDay(value string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: "must use YYYY-MM-DD"}
	}
	return parsed, nil
}

// DateRange is an inclusive range of calendar days. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Normalize truncates both bounds to whole days.
func (r DateRange) Normalize() DateRange {
	return DateRange{From: Day(r.From), To: Day(r.To)}
}

// Empty reports whether the range can contain no day at all.
func (r DateRange) Empty() bool {
	n := r.Normalize()
	return !n.From.IsZero() && !n.To.IsZero() && n.From.After(n.To)
}

// Contains reports whether day falls inside the range.
func (r DateRange) Contains(day time.Time) bool {
	n := r.Normalize()
	day = Day(day)
	if !n.From.IsZero() && day.Before(n.From) {
		return false
	}
	if !n.To.IsZero() && day.After(n.To) {
		return false
	}
	return true
}

// Cursor marks the last entry of a page. Entries sort by (Date, ID).
type Cursor struct {
	Date time.Time
	ID   string
}

// After reports whether e sorts strictly after the cursor position.
func (c *Cursor) After(e Entry) bool {
	if c == nil {
		return true
	}
	d := Day(e.Date)
	cd := Day(c.Date)
	if !d.Equal(cd) {
		return d.After(cd)
	}
	return e.ID > c.ID
}

// EntryQuery selects a page of entries.
type EntryQuery struct {
	Range  DateRange
	Kind   EntryKind
	Cursor *Cursor
	Limit  int
}

// Matches reports whether e satisfies the range, kind and cursor filters.
func (q EntryQuery) Matches(e Entry) bool {
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	if !q.Range.Contains(e.Date) {
		return false
	}
	return q.Cursor.After(e)
}

// EntryLess orders entries chronologically, ties broken by ID.
func EntryLess(a, b Entry) bool {
	da, db := Day(a.Date), Day(b.Date)
	if !da.Equal(db) {
		return da.Before(db)
	}
	return a.ID < b.ID
}
