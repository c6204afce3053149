package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/persistence/memory"
)

var testNow = time.Date(2025, time.March, 7, 15, 0, 0, 0, time.UTC) // a Friday

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	repo := memory.NewRepository()
	clock := func() time.Time { return testNow }
	store := domain.NewEntryStore(repo, domain.WithStoreClock(clock))
	tracker := domain.NewGoalTracker(repo, repo, domain.WithTrackerClock(clock))
	return NewRouter(NewHandler(store, tracker, zerolog.New(zerolog.NewTestWriter(t))), "*")
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func activity(date string, minutes int) EntryRequest {
	return EntryRequest{
		Date:     date,
		Activity: &ActivityPayload{Name: "Run", Type: "running", DurationMin: minutes, Intensity: "medium"},
	}
}

func meal(date string, calories float64) EntryRequest {
	return EntryRequest{
		Date:      date,
		Nutrition: &NutritionPayload{FoodItem: "Pasta", Calories: calories, CarbsGrams: 90},
	}
}

func TestCreateAndListEntries(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/v1/entries", EntryRequest{
		Date:     "2025-03-04",
		Activity: &ActivityPayload{Name: " Leg day ", Type: "Weight Training", DurationMin: 45, Intensity: "HIGH"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[EntryView](t, rr)
	require.Equal(t, "/v1/entries/"+created.EntryID, rr.Header().Get("Location"))
	require.Equal(t, "activity", created.Kind)
	require.Equal(t, "weight-training", created.Activity.Type)
	require.Equal(t, "high", created.Activity.Intensity)
	require.Equal(t, "Leg day", created.Activity.Name)
	require.Equal(t, 1, created.Version)

	rr = do(t, srv, http.MethodGet, "/v1/entries?from=2025-03-01&to=2025-03-31", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[ListEntriesResponse](t, rr)
	require.Len(t, list.Items, 1)
	require.Equal(t, created, list.Items[0])
	require.Empty(t, list.NextCursor)

	rr = do(t, srv, http.MethodGet, "/v1/entries/"+created.EntryID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, created, decode[EntryView](t, rr))
}

func TestCreateEntryDefaultsDateToToday(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/v1/entries", EntryRequest{Nutrition: &NutritionPayload{FoodItem: "Apple", Calories: 95}})
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[EntryView](t, rr)
	require.Equal(t, "2025-03-07", created.Date)
	require.Zero(t, created.Nutrition.ProteinGrams)
}

func TestCreateEntryRejectsInvalidInput(t *testing.T) {
	srv := newTestServer(t)

	cases := map[string]interface{}{
		"negative duration": activity("2025-03-04", -10),
		"zero duration":     activity("2025-03-04", 0),
		"huge duration":     activity("2025-03-04", 100000),
		"negative calories": meal("2025-03-04", -5),
		"unknown type": EntryRequest{
			Activity: &ActivityPayload{Type: "swimming", DurationMin: 10, Intensity: "low"},
		},
		"bad date": meal("04/03/2025", 100),
		"both payloads": EntryRequest{
			Activity:  &ActivityPayload{Type: "running", DurationMin: 10, Intensity: "low"},
			Nutrition: &NutritionPayload{Calories: 100},
		},
		"no payload": EntryRequest{Date: "2025-03-04"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/v1/entries", body)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			require.Equal(t, "validation_failed", decode[map[string]string](t, rr)["type"])
		})
	}

	rr := do(t, srv, http.MethodPost, "/v1/entries", map[string]string{"mood": "great"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_request", decode[map[string]string](t, rr)["type"])

	rr = do(t, srv, http.MethodGet, "/v1/entries", nil)
	require.Empty(t, decode[ListEntriesResponse](t, rr).Items)
}

func TestListEntriesPaginatesAndFilters(t *testing.T) {
	srv := newTestServer(t)

	for i := 1; i <= 3; i++ {
		require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/v1/entries", activity("2025-03-0"+strconv.Itoa(i), 10*i)).Code)
	}
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/v1/entries", meal("2025-03-02", 500)).Code)

	rr := do(t, srv, http.MethodGet, "/v1/entries?kind=activity&limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[ListEntriesResponse](t, rr)
	require.Len(t, page.Items, 2)
	require.Equal(t, "2025-03-01", page.Items[0].Date)
	require.NotEmpty(t, page.NextCursor)

	rr = do(t, srv, http.MethodGet, "/v1/entries?kind=activity&limit=2&cursor="+page.NextCursor, nil)
	next := decode[ListEntriesResponse](t, rr)
	require.Len(t, next.Items, 1)
	require.Equal(t, "2025-03-03", next.Items[0].Date)
	require.Empty(t, next.NextCursor)

	rr = do(t, srv, http.MethodGet, "/v1/entries?kind=nutrition", nil)
	require.Len(t, decode[ListEntriesResponse](t, rr).Items, 1)

	rr = do(t, srv, http.MethodGet, "/v1/entries?from=2025-03-10&to=2025-03-01", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, decode[ListEntriesResponse](t, rr).Items)

	nonUUID := base64.RawURLEncoding.EncodeToString([]byte("2025-01-01|x"))
	for _, query := range []string{"limit=-1", "cursor=garbage!", "cursor=" + nonUUID, "kind=sleep", "from=March"} {
		rr = do(t, srv, http.MethodGet, "/v1/entries?"+query, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestReplaceEntry(t *testing.T) {
	srv := newTestServer(t)

	created := decode[EntryView](t, do(t, srv, http.MethodPost, "/v1/entries", meal("2025-03-04", 600)))

	update := meal("", 650)
	update.ExpectedVersion = 1
	rr := do(t, srv, http.MethodPut, "/v1/entries/"+created.EntryID, update)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	replaced := decode[EntryView](t, rr)
	require.Equal(t, 2, replaced.Version)
	require.Equal(t, "2025-03-04", replaced.Date)
	require.InDelta(t, 650, replaced.Nutrition.Calories, 0.0001)

	rr = do(t, srv, http.MethodPut, "/v1/entries/"+created.EntryID, update)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, srv, http.MethodPut, "/v1/entries/"+created.EntryID, activity("2025-03-04", 30))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodPut, "/v1/entries/does-not-exist", meal("2025-03-04", 1))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteEntry(t *testing.T) {
	srv := newTestServer(t)

	created := decode[EntryView](t, do(t, srv, http.MethodPost, "/v1/entries", activity("2025-03-04", 30)))

	rr := do(t, srv, http.MethodDelete, "/v1/entries/missing-id", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "not_found", decode[map[string]string](t, rr)["type"])
	require.Len(t, decode[ListEntriesResponse](t, do(t, srv, http.MethodGet, "/v1/entries", nil)).Items, 1)

	rr = do(t, srv, http.MethodDelete, "/v1/entries/"+created.EntryID, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, srv, http.MethodGet, "/v1/entries/"+created.EntryID, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWeeklyExerciseGoalMet(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPut, "/v1/goals/weekly-exercise-minutes", GoalRequest{TargetValue: 150})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	goal := decode[GoalView](t, rr)
	require.Equal(t, "week", goal.Period)

	do(t, srv, http.MethodPost, "/v1/entries", activity("2025-03-03", 80))
	do(t, srv, http.MethodPost, "/v1/entries", activity("2025-03-05", 90))
	do(t, srv, http.MethodPost, "/v1/entries", activity("2025-03-02", 200)) // previous week

	rr = do(t, srv, http.MethodGet, "/v1/goals/weekly-exercise-minutes/evaluation?as_of=2025-03-07", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	eval := decode[EvaluationView](t, rr)
	require.Equal(t, "2025-03-03", eval.WindowStart)
	require.Equal(t, "2025-03-07", eval.WindowEnd)
	require.InDelta(t, 170, eval.CurrentValue, 0.0001)
	require.True(t, eval.Met)
	require.Zero(t, eval.Remaining)
}

func TestDailyCalorieLimitExceeded(t *testing.T) {
	srv := newTestServer(t)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/v1/goals/daily-calorie-limit", GoalRequest{TargetValue: 2000}).Code)
	do(t, srv, http.MethodPost, "/v1/entries", meal("2025-03-07", 1200))
	do(t, srv, http.MethodPost, "/v1/entries", meal("2025-03-07", 1000))
	do(t, srv, http.MethodPost, "/v1/entries", meal("2025-03-06", 900))

	rr := do(t, srv, http.MethodGet, "/v1/goals/daily-calorie-limit/evaluation", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	eval := decode[EvaluationView](t, rr)
	require.InDelta(t, 2200, eval.CurrentValue, 0.0001)
	require.False(t, eval.Met)
	require.InDelta(t, 1.1, eval.Progress, 0.0001)
}

func TestGoalEndpointsValidate(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPut, "/v1/goals/daily-calorie-limit", GoalRequest{TargetValue: 0})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodPut, "/v1/goals/daily-calorie-limit", GoalRequest{TargetValue: -100})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodPut, "/v1/goals/monthly-steps", GoalRequest{TargetValue: 10000})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodGet, "/v1/goals/daily-calorie-limit/evaluation", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodDelete, "/v1/goals/daily-calorie-limit", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodGet, "/v1/goals/weekly-exercise-minutes/evaluation?as_of=tomorrow", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSetGoalReplacesPreviousTarget(t *testing.T) {
	srv := newTestServer(t)

	first := decode[GoalView](t, do(t, srv, http.MethodPut, "/v1/goals/daily-calorie-limit", GoalRequest{TargetValue: 2000}))
	second := decode[GoalView](t, do(t, srv, http.MethodPut, "/v1/goals/daily-calorie-limit", GoalRequest{TargetValue: 1800}))
	require.Equal(t, first.GoalID, second.GoalID)
	do(t, srv, http.MethodPut, "/v1/goals/weekly-exercise-minutes", GoalRequest{TargetValue: 150})

	goals := decode[ListGoalsResponse](t, do(t, srv, http.MethodGet, "/v1/goals", nil))
	require.Len(t, goals.Items, 2)
	require.Equal(t, "weekly-exercise-minutes", goals.Items[0].GoalType)
	require.InDelta(t, 1800, goals.Items[1].TargetValue, 0.0001)

	require.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/v1/goals/weekly-exercise-minutes", nil).Code)
	goals = decode[ListGoalsResponse](t, do(t, srv, http.MethodGet, "/v1/goals", nil))
	require.Len(t, goals.Items, 1)
}

func TestSummary(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/v1/summary", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	empty := decode[SummaryResponse](t, rr)
	require.Equal(t, "2025-03-07", empty.AsOf)
	require.Empty(t, empty.Goals)

	do(t, srv, http.MethodPut, "/v1/goals/daily-calorie-limit", GoalRequest{TargetValue: 2000})
	do(t, srv, http.MethodPut, "/v1/goals/weekly-exercise-minutes", GoalRequest{TargetValue: 150})
	do(t, srv, http.MethodPost, "/v1/entries", meal("2025-03-05", 1500))

	rr = do(t, srv, http.MethodGet, "/v1/summary?as_of=2025-03-05", nil)
	summary := decode[SummaryResponse](t, rr)
	require.Len(t, summary.Goals, 2)
	require.Equal(t, "weekly-exercise-minutes", summary.Goals[0].GoalType)
	require.False(t, summary.Goals[0].Met)
	require.InDelta(t, 150, summary.Goals[0].Remaining, 0.0001)
	require.True(t, summary.Goals[1].Met)
	require.InDelta(t, 500, summary.Goals[1].Remaining, 0.0001)
}

func TestRoutingEdges(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())

	rr = do(t, srv, http.MethodPatch, "/v1/entries", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = do(t, srv, http.MethodGet, "/v2/entries", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodOptions, "/v1/entries", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
