// Package events defines the payloads published through the outbox.
package events

import "time"

// Event types written to the outbox.
const (
	TypeEntryLogged   = "entry.logged"
	TypeEntryReplaced = "entry.replaced"
	TypeEntryDeleted  = "entry.deleted"
	TypeGoalSet       = "goal.set"
	TypeGoalDeleted   = "goal.deleted"
)

// Kafka topics.
const (
	TopicEntryEvents = "fittrack_entry_events"
	TopicGoalEvents  = "fittrack_goal_events"
)

// Kafka headers set on every published record.
const (
	HeaderEventType   = "event_type"
	HeaderAggregateID = "aggregate_id"
)

// EntryLogged is emitted when an entry is added or explicitly overwritten.
// Activity and nutrition fields are filled according to Kind.
type EntryLogged struct {
	EntryID      string    `json:"entry_id"`
	Kind         string    `json:"kind"`
	Date         string    `json:"date"`
	Version      int       `json:"version"`
	ActivityName string    `json:"activity_name,omitempty"`
	ActivityType string    `json:"activity_type,omitempty"`
	DurationMin  int       `json:"duration_min,omitempty"`
	Intensity    string    `json:"intensity,omitempty"`
	FoodItem     string    `json:"food_item,omitempty"`
	Calories     float64   `json:"calories,omitempty"`
	CarbsGrams   float64   `json:"carbs_grams,omitempty"`
	ProteinGrams float64   `json:"protein_grams,omitempty"`
	FatsGrams    float64   `json:"fats_grams,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// EntryDeleted is emitted when an entry is removed.
type EntryDeleted struct {
	EntryID    string    `json:"entry_id"`
	Kind       string    `json:"kind"`
	Date       string    `json:"date"`
	OccurredAt time.Time `json:"occurred_at"`
}

// GoalChanged is emitted when a goal is set or deleted. TargetValue is zero
// for deletions.
type GoalChanged struct {
	GoalID      string    `json:"goal_id"`
	GoalType    string    `json:"goal_type"`
	TargetValue float64   `json:"target_value,omitempty"`
	Period      string    `json:"period"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// TopicFor routes an event type to its topic.
func TopicFor(eventType string) (string, bool) {
	switch eventType {
	case TypeEntryLogged, TypeEntryReplaced, TypeEntryDeleted:
		return TopicEntryEvents, true
	case TypeGoalSet, TypeGoalDeleted:
		return TopicGoalEvents, true
	}
	return "", false
}
