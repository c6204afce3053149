package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/persistence/memory"
)

func TestGoalProgressHandlerLogsStatusChanges(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	store := domain.NewEntryStore(repo)
	tracker := domain.NewGoalTracker(repo, repo)

	_, err := tracker.SetGoal(ctx, domain.Goal{Type: domain.GoalWeeklyExerciseMinutes, TargetValue: 150})
	require.NoError(t, err)

	var buf bytes.Buffer
	handler := NewGoalProgressHandler(tracker, zerolog.New(&buf))

	wednesday := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	first, err := store.Add(ctx, domain.NewEntry{
		Date:     wednesday,
		Activity: &domain.Activity{Type: domain.ActivityRunning, DurationMin: 80, Intensity: domain.IntensityMedium},
	})
	require.NoError(t, err)
	require.NoError(t, handler.Handle(ctx, entryMessage(t, *first)))
	require.Equal(t, 1, strings.Count(buf.String(), `"met":false`))

	second, err := store.Add(ctx, domain.NewEntry{
		Date:     wednesday.AddDate(0, 0, 1),
		Activity: &domain.Activity{Type: domain.ActivityWalking, DurationMin: 90, Intensity: domain.IntensityLow},
	})
	require.NoError(t, err)
	require.NoError(t, handler.Handle(ctx, entryMessage(t, *second)))
	require.Equal(t, 1, strings.Count(buf.String(), `"met":true`))
	require.Contains(t, buf.String(), `"current":170`)

	// Re-delivering the same event does not log again.
	lines := strings.Count(buf.String(), "\n")
	require.NoError(t, handler.Handle(ctx, entryMessage(t, *second)))
	require.Equal(t, lines, strings.Count(buf.String(), "\n"))
}

func TestGoalProgressHandlerRejectsBadPayloads(t *testing.T) {
	repo := memory.NewRepository()
	handler := NewGoalProgressHandler(domain.NewGoalTracker(repo, repo), zerolog.Nop())

	err := handler.Handle(context.Background(), Message{
		EventType: events.TypeEntryLogged,
		Payload:   json.RawMessage(`{"date":"03/05/2025"}`),
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	var permanent *backoff.PermanentError
	require.ErrorAs(t, err, &permanent)

	err = handler.Handle(context.Background(), Message{
		EventType: "entry.archived",
		Payload:   json.RawMessage(`{}`),
	})
	require.ErrorAs(t, err, &permanent)
}

func TestGoalProgressHandlerEvaluatesTodayForGoalEvents(t *testing.T) {
	tracker := &recordingSummarizer{}
	handler := NewGoalProgressHandler(tracker, zerolog.Nop())
	handler.clock = func() time.Time { return time.Date(2025, 3, 9, 18, 30, 0, 0, time.UTC) }

	require.NoError(t, handler.Handle(context.Background(), Message{
		EventType: events.TypeGoalSet,
		Payload:   json.RawMessage(`{"goal_type":"daily-calorie-limit"}`),
	}))
	require.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), tracker.asOf)
}

type recordingSummarizer struct {
	asOf time.Time
}

func (r *recordingSummarizer) Summary(_ context.Context, asOf time.Time) ([]domain.Evaluation, error) {
	r.asOf = asOf
	return nil, nil
}

func entryMessage(t *testing.T, e domain.Entry) Message {
	t.Helper()
	payload, err := json.Marshal(events.EntryLogged{
		EntryID: e.ID,
		Kind:    string(e.Kind),
		Date:    e.Date.Format(domain.DateLayout),
		Version: e.Version,
	})
	require.NoError(t, err)
	return Message{
		Topic:       events.TopicEntryEvents,
		EventType:   events.TypeEntryLogged,
		AggregateID: e.ID,
		Payload:     payload,
	}
}
