// Package persistencetest is a driver-agnostic compliance suite for entry
// and goal repositories.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
)

// Repository is what every driver implements.
type Repository interface {
	domain.EntryRepository
	domain.GoalRepository
}

// Run exercises the contract against a driver. makeRepo must return a clean,
// isolated repository for every call.
func Run(t *testing.T, makeRepo func(t *testing.T) Repository) {
	t.Helper()

	t.Run("CreateGetRoundTrip", func(t *testing.T) {
		repo := makeRepo(t)
		ctx := context.Background()

		activity := activityEntry(day(2025, 3, 3), 45)
		activity.Activity.Name = "Morning run"
		nutrition := nutritionEntry(day(2025, 3, 3), 650.5)

		require.NoError(t, repo.Create(ctx, activity))
		require.NoError(t, repo.Create(ctx, nutrition))

		got, err := repo.Get(ctx, activity.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		requireSameEntry(t, activity, *got)

		got, err = repo.Get(ctx, nutrition.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		requireSameEntry(t, nutrition, *got)

		missing, err := repo.Get(ctx, uuid.NewString())
		require.NoError(t, err)
		require.Nil(t, missing)
	})

	t.Run("ListIsChronologicalAndFiltered", func(t *testing.T) {
		repo := makeRepo(t)
		ctx := context.Background()

		late := activityEntry(day(2025, 3, 5), 30)
		early := activityEntry(day(2025, 3, 1), 20)
		middle := nutritionEntry(day(2025, 3, 3), 400)
		outside := activityEntry(day(2025, 4, 1), 10)
		for _, e := range []domain.Entry{late, early, middle, outside} {
			require.NoError(t, repo.Create(ctx, e))
		}

		page, next, err := repo.List(ctx, domain.EntryQuery{
			Range: domain.DateRange{From: day(2025, 3, 1), To: day(2025, 3, 31)},
			Limit: 10,
		})
		require.NoError(t, err)
		require.Nil(t, next)
		require.Equal(t, []string{early.ID, middle.ID, late.ID}, ids(page))

		page, _, err = repo.List(ctx, domain.EntryQuery{Kind: domain.EntryKindActivity, Limit: 10})
		require.NoError(t, err)
		require.Equal(t, []string{early.ID, late.ID, outside.ID}, ids(page))

		page, next, err = repo.List(ctx, domain.EntryQuery{
			Range: domain.DateRange{From: day(2025, 5, 1), To: day(2025, 5, 31)},
			Limit: 10,
		})
		require.NoError(t, err)
		require.Nil(t, next)
		require.Empty(t, page)
	})

	t.Run("ListPagesAreRestartable", func(t *testing.T) {
		repo := makeRepo(t)
		ctx := context.Background()

		var want []string
		for i := 0; i < 5; i++ {
			e := activityEntry(day(2025, 6, 1+i/2), 10+i)
			require.NoError(t, repo.Create(ctx, e))
			want = append(want, e.ID)
		}

		var got []string
		query := domain.EntryQuery{Limit: 2}
		pages := 0
		for {
			page, next, err := repo.List(ctx, query)
			require.NoError(t, err)
			require.LessOrEqual(t, len(page), 2)
			got = append(got, ids(page)...)
			pages++
			if next == nil {
				break
			}
			query.Cursor = next
		}
		require.Equal(t, want, got)
		require.Equal(t, 3, pages)

		// Restarting from a remembered cursor yields the same tail.
		first, cursor, err := repo.List(ctx, domain.EntryQuery{Limit: 3})
		require.NoError(t, err)
		require.Len(t, first, 3)
		require.NotNil(t, cursor)
		tail, _, err := repo.List(ctx, domain.EntryQuery{Limit: 10, Cursor: cursor})
		require.NoError(t, err)
		require.Equal(t, want[3:], ids(tail))
	})

	t.Run("ReplaceAndDelete", func(t *testing.T) {
		repo := makeRepo(t)
		ctx := context.Background()

		entry := nutritionEntry(day(2025, 2, 2), 300)
		require.NoError(t, repo.Create(ctx, entry))

		updated := entry
		updated.Nutrition = &domain.Nutrition{FoodItem: "Oatmeal", Calories: 350, CarbsGrams: 60}
		updated.Version = 2
		updated.UpdatedAt = entry.UpdatedAt.Add(time.Minute)
		ok, err := repo.Replace(ctx, updated)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := repo.Get(ctx, entry.ID)
		require.NoError(t, err)
		requireSameEntry(t, updated, *got)

		stale := updated
		stale.Nutrition = &domain.Nutrition{FoodItem: "Toast", Calories: 200}
		ok, err = repo.Replace(ctx, stale)
		require.NoError(t, err)
		require.False(t, ok)

		got, err = repo.Get(ctx, entry.ID)
		require.NoError(t, err)
		requireSameEntry(t, updated, *got)

		ghost := nutritionEntry(day(2025, 2, 2), 1)
		ghost.Version = 2
		ok, err = repo.Replace(ctx, ghost)
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = repo.Delete(ctx, uuid.NewString())
		require.NoError(t, err)
		require.False(t, ok)

		still, err := repo.Get(ctx, entry.ID)
		require.NoError(t, err)
		require.NotNil(t, still)

		ok, err = repo.Delete(ctx, entry.ID)
		require.NoError(t, err)
		require.True(t, ok)

		gone, err := repo.Get(ctx, entry.ID)
		require.NoError(t, err)
		require.Nil(t, gone)
	})

	t.Run("GoalsKeyedByType", func(t *testing.T) {
		repo := makeRepo(t)
		ctx := context.Background()

		created := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
		first, err := repo.UpsertGoal(ctx, domain.Goal{
			ID:          uuid.NewString(),
			Type:        domain.GoalDailyCalorieLimit,
			TargetValue: 2000,
			Period:      domain.PeriodDay,
			CreatedAt:   created,
			UpdatedAt:   created,
		})
		require.NoError(t, err)

		second, err := repo.UpsertGoal(ctx, domain.Goal{
			ID:          uuid.NewString(),
			Type:        domain.GoalDailyCalorieLimit,
			TargetValue: 1800,
			Period:      domain.PeriodDay,
			CreatedAt:   created.Add(time.Hour),
			UpdatedAt:   created.Add(time.Hour),
		})
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)
		require.True(t, second.CreatedAt.Equal(created))

		_, err = repo.UpsertGoal(ctx, domain.Goal{
			ID:          uuid.NewString(),
			Type:        domain.GoalWeeklyExerciseMinutes,
			TargetValue: 150,
			Period:      domain.PeriodWeek,
			CreatedAt:   created,
			UpdatedAt:   created,
		})
		require.NoError(t, err)

		got, err := repo.GetGoal(ctx, domain.GoalDailyCalorieLimit)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.InDelta(t, 1800, got.TargetValue, 0.0001)
		require.Equal(t, domain.PeriodDay, got.Period)

		all, err := repo.ListGoals(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.Equal(t, domain.GoalWeeklyExerciseMinutes, all[0].Type)
		require.Equal(t, domain.GoalDailyCalorieLimit, all[1].Type)

		ok, err := repo.DeleteGoal(ctx, domain.GoalDailyCalorieLimit)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = repo.DeleteGoal(ctx, domain.GoalDailyCalorieLimit)
		require.NoError(t, err)
		require.False(t, ok)

		missing, err := repo.GetGoal(ctx, domain.GoalDailyCalorieLimit)
		require.NoError(t, err)
		require.Nil(t, missing)
	})
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// newID mirrors the store: UUIDv7 keeps creation order within a day.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func activityEntry(date time.Time, minutes int) domain.Entry {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Entry{
		ID:   newID(),
		Kind: domain.EntryKindActivity,
		Date: date,
		Activity: &domain.Activity{
			Type:        domain.ActivityRunning,
			DurationMin: minutes,
			Intensity:   domain.IntensityMedium,
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func nutritionEntry(date time.Time, calories float64) domain.Entry {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Entry{
		ID:   newID(),
		Kind: domain.EntryKindNutrition,
		Date: date,
		Nutrition: &domain.Nutrition{
			FoodItem:     "Rice bowl",
			Calories:     calories,
			CarbsGrams:   80,
			ProteinGrams: 25.5,
			FatsGrams:    12,
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func ids(entries []domain.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func requireSameEntry(t *testing.T, want, got domain.Entry) {
	t.Helper()
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Kind, got.Kind)
	require.True(t, domain.Day(want.Date).Equal(domain.Day(got.Date)), "date %s != %s", want.Date, got.Date)
	require.Equal(t, want.Activity, got.Activity)
	require.Equal(t, want.Nutrition, got.Nutrition)
	require.Equal(t, want.Version, got.Version)
	require.WithinDuration(t, want.CreatedAt, got.CreatedAt, time.Millisecond)
	require.WithinDuration(t, want.UpdatedAt, got.UpdatedAt, time.Millisecond)
}
