package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
)

// Summarizer evaluates every stored goal as of a day.
type Summarizer interface {
	Summary(ctx context.Context, asOf time.Time) ([]domain.Evaluation, error)
}

// GoalProgressHandler re-evaluates goals whenever an entry or goal changes
// and reports goals that cross their target.
type GoalProgressHandler struct {
	tracker Summarizer
	log     zerolog.Logger
	clock   func() time.Time

	mu   sync.Mutex
	last map[string]bool
}

// NewGoalProgressHandler constructs a handler over the tracker.
func NewGoalProgressHandler(tracker Summarizer, log zerolog.Logger) *GoalProgressHandler {
	return &GoalProgressHandler{
		tracker: tracker,
		log:     log,
		clock:   func() time.Time { return time.Now().UTC() },
		last:    make(map[string]bool),
	}
}

// Handle implements Handler.
func (h *GoalProgressHandler) Handle(ctx context.Context, msg Message) error {
	asOf, err := h.asOf(msg)
	if err != nil {
		return err
	}

	evals, err := h.tracker.Summary(ctx, asOf)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, eval := range evals {
		key := string(eval.GoalType) + "@" + eval.Window.From.Format(domain.DateLayout)
		prev, seen := h.last[key]
		h.last[key] = eval.Met
		if seen && prev == eval.Met {
			continue
		}

		h.log.Info().
			Str("goal_type", string(eval.GoalType)).
			Str("window_from", eval.Window.From.Format(domain.DateLayout)).
			Str("window_to", eval.Window.To.Format(domain.DateLayout)).
			Float64("current", eval.CurrentValue).
			Float64("target", eval.TargetValue).
			Bool("met", eval.Met).
			Str("trigger", msg.EventType).
			Msg("goal status")
		if seen {
			goalFlipCounter.WithLabelValues(string(eval.GoalType), strconv.FormatBool(eval.Met)).Inc()
		}
	}
	return nil
}

// asOf picks the day to evaluate: the entry's own date for entry events,
// today for goal events.
func (h *GoalProgressHandler) asOf(msg Message) (time.Time, error) {
	if !strings.HasPrefix(msg.EventType, "entry.") {
		return domain.Day(h.clock()), nil
	}

	switch msg.EventType {
	case events.TypeEntryLogged, events.TypeEntryReplaced, events.TypeEntryDeleted:
	default:
		return time.Time{}, Permanent(fmt.Errorf("unsupported event type %s", msg.EventType))
	}

	var payload struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return time.Time{}, Permanent(fmt.Errorf("decode %s payload: %w", msg.EventType, err))
	}
	day, err := domain.ParseDay(payload.Date)
	if err != nil {
		return time.Time{}, Permanent(err)
	}
	return day, nil
}
