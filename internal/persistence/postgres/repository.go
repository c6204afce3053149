// Package postgres provides Postgres-backed persistence for entries and goals.
// Every mutation records an outbox event in the same transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
)

// Repository implements the entry and goal repositories on a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `entry_id::text, kind, entry_date, activity_name, activity_type, duration_min, intensity,
        food_item, calories, carbs_grams, protein_grams, fats_grams, version, created_at, updated_at`

// Create persists the entry and its entry.logged event.
func (r *Repository) Create(ctx context.Context, entry domain.Entry) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO entries (entry_id, kind, entry_date, activity_name, activity_type, duration_min, intensity,
        food_item, calories, carbs_grams, protein_grams, fats_grams, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	if _, err = tx.Exec(ctx, stmt, entryArgs(entry)...); err != nil {
		return err
	}
	if err = insertOutbox(ctx, tx, "entry", entry.ID, events.TypeEntryLogged, entry.Version, entryLogged(entry)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Get retrieves an entry by ID, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Entry, error) {
	id, ok := entryKey(id)
	if !ok {
		return nil, nil
	}
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM entries WHERE entry_id = $1`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Replace overwrites an entry still at entry.Version-1 and records
// entry.replaced.
func (r *Repository) Replace(ctx context.Context, entry domain.Entry) (ok bool, err error) {
	if _, valid := entryKey(entry.ID); !valid {
		return false, nil
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !ok {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `UPDATE entries SET kind=$2, entry_date=$3, activity_name=$4, activity_type=$5, duration_min=$6, intensity=$7,
        food_item=$8, calories=$9, carbs_grams=$10, protein_grams=$11, fats_grams=$12, version=$13, created_at=$14, updated_at=$15
        WHERE entry_id = $1 AND version = $16`
	tag, err := tx.Exec(ctx, stmt, append(entryArgs(entry), entry.Version-1)...)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err = insertOutbox(ctx, tx, "entry", entry.ID, events.TypeEntryReplaced, entry.Version, entryLogged(entry)); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes an entry and records entry.deleted.
func (r *Repository) Delete(ctx context.Context, id string) (ok bool, err error) {
	id, valid := entryKey(id)
	if !valid {
		return false, nil
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !ok {
			tx.Rollback(ctx)
		}
	}()

	var (
		kind    string
		date    time.Time
		version int
	)
	err = tx.QueryRow(ctx, `DELETE FROM entries WHERE entry_id = $1 RETURNING kind, entry_date, version`, id).Scan(&kind, &date, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	payload := events.EntryDeleted{
		EntryID:    id,
		Kind:       kind,
		Date:       date.Format(domain.DateLayout),
		OccurredAt: time.Now().UTC(),
	}
	if err = insertOutbox(ctx, tx, "entry", id, events.TypeEntryDeleted, version, payload); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// List returns a page ordered by (entry_date, entry_id).
func (r *Repository) List(ctx context.Context, query domain.EntryQuery) ([]domain.Entry, *domain.Cursor, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !query.Range.From.IsZero() {
		where = append(where, "entry_date >= "+arg(domain.Day(query.Range.From)))
	}
	if !query.Range.To.IsZero() {
		where = append(where, "entry_date <= "+arg(domain.Day(query.Range.To)))
	}
	if query.Kind != "" {
		where = append(where, "kind = "+arg(string(query.Kind)))
	}
	if query.Cursor != nil {
		where = append(where, fmt.Sprintf("(entry_date, entry_id) > (%s::date, %s::uuid)", arg(domain.Day(query.Cursor.Date)), arg(query.Cursor.ID)))
	}

	stmt := `SELECT ` + entryColumns + ` FROM entries`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, " AND ")
	}
	stmt += ` ORDER BY entry_date, entry_id`
	if query.Limit > 0 {
		stmt += ` LIMIT ` + arg(query.Limit+1)
	}

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if query.Limit <= 0 || len(results) <= query.Limit {
		return results, nil, nil
	}
	results = results[:query.Limit]
	last := results[len(results)-1]
	return results, &domain.Cursor{Date: last.Date, ID: last.ID}, nil
}

// UpsertGoal stores the goal and records goal.set. An existing goal of the
// same type keeps its ID and creation time.
func (r *Repository) UpsertGoal(ctx context.Context, goal domain.Goal) (stored domain.Goal, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Goal{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `INSERT INTO goals (goal_type, goal_id, target_value, period, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (goal_type) DO UPDATE SET target_value = EXCLUDED.target_value, period = EXCLUDED.period, updated_at = EXCLUDED.updated_at
        RETURNING goal_id::text, created_at`,
		string(goal.Type), goal.ID, goal.TargetValue, string(goal.Period), goal.CreatedAt, goal.UpdatedAt,
	).Scan(&goal.ID, &goal.CreatedAt)
	if err != nil {
		return domain.Goal{}, err
	}
	goal.CreatedAt = goal.CreatedAt.UTC()

	payload := events.GoalChanged{
		GoalID:      goal.ID,
		GoalType:    string(goal.Type),
		TargetValue: goal.TargetValue,
		Period:      string(goal.Period),
		OccurredAt:  goal.UpdatedAt,
	}
	if err = insertOutbox(ctx, tx, "goal", string(goal.Type), events.TypeGoalSet, int(goal.UpdatedAt.UnixNano()), payload); err != nil {
		return domain.Goal{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.Goal{}, err
	}
	return goal, nil
}

// GetGoal returns the goal of the given type or nil.
func (r *Repository) GetGoal(ctx context.Context, goalType domain.GoalType) (*domain.Goal, error) {
	row := r.pool.QueryRow(ctx, `SELECT goal_id::text, goal_type, target_value, period, created_at, updated_at
        FROM goals WHERE goal_type = $1`, string(goalType))
	goal, err := scanGoal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

// ListGoals returns goals in domain.GoalTypes order.
func (r *Repository) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	rows, err := r.pool.Query(ctx, `SELECT goal_id::text, goal_type, target_value, period, created_at, updated_at
        FROM goals ORDER BY CASE goal_type WHEN 'weekly-exercise-minutes' THEN 0 ELSE 1 END`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	goals := make([]domain.Goal, 0, len(domain.GoalTypes))
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}
	return goals, rows.Err()
}

// DeleteGoal removes the goal of the given type and records goal.deleted.
func (r *Repository) DeleteGoal(ctx context.Context, goalType domain.GoalType) (ok bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !ok {
			tx.Rollback(ctx)
		}
	}()

	var goalID, period string
	err = tx.QueryRow(ctx, `DELETE FROM goals WHERE goal_type = $1 RETURNING goal_id::text, period`, string(goalType)).Scan(&goalID, &period)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	payload := events.GoalChanged{
		GoalID:     goalID,
		GoalType:   string(goalType),
		Period:     period,
		OccurredAt: now,
	}
	if err = insertOutbox(ctx, tx, "goal", string(goalType), events.TypeGoalDeleted, int(now.UnixNano()), payload); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// insertOutbox records an event. The dedupe key makes a retried transaction
// for the same aggregate version a no-op.
func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, eventType string, version int, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	topic, ok := events.TopicFor(eventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	dedupeKey := fmt.Sprintf("%s:%s:%d", aggregateID, eventType, version)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (dedupe_key) DO NOTHING`
	_, err = tx.Exec(ctx, stmt, aggregateType, aggregateID, eventType, topic, aggregateID, body, dedupeKey)
	return err
}

func entryLogged(e domain.Entry) events.EntryLogged {
	evt := events.EntryLogged{
		EntryID:    e.ID,
		Kind:       string(e.Kind),
		Date:       domain.Day(e.Date).Format(domain.DateLayout),
		Version:    e.Version,
		OccurredAt: e.UpdatedAt,
	}
	if a := e.Activity; a != nil {
		evt.ActivityName = a.Name
		evt.ActivityType = string(a.Type)
		evt.DurationMin = a.DurationMin
		evt.Intensity = string(a.Intensity)
	}
	if n := e.Nutrition; n != nil {
		evt.FoodItem = n.FoodItem
		evt.Calories = n.Calories
		evt.CarbsGrams = n.CarbsGrams
		evt.ProteinGrams = n.ProteinGrams
		evt.FatsGrams = n.FatsGrams
	}
	return evt
}

func entryArgs(e domain.Entry) []interface{} {
	var (
		name, activityType, intensity, food *string
		duration                            *int
		calories, carbs, protein, fats      *float64
	)
	if a := e.Activity; a != nil {
		t, i := string(a.Type), string(a.Intensity)
		name, activityType, intensity = &a.Name, &t, &i
		duration = &a.DurationMin
	}
	if n := e.Nutrition; n != nil {
		food = &n.FoodItem
		calories, carbs, protein, fats = &n.Calories, &n.CarbsGrams, &n.ProteinGrams, &n.FatsGrams
	}
	return []interface{}{
		e.ID,
		string(e.Kind),
		domain.Day(e.Date),
		name, activityType, duration, intensity,
		food, calories, carbs, protein, fats,
		e.Version,
		e.CreatedAt,
		e.UpdatedAt,
	}
}

func scanEntry(row pgx.Row) (domain.Entry, error) {
	var (
		e                                   domain.Entry
		kind                                string
		name, activityType, intensity, food *string
		duration                            *int
		calories, carbs, protein, fats      *float64
	)
	if err := row.Scan(&e.ID, &kind, &e.Date, &name, &activityType, &duration, &intensity,
		&food, &calories, &carbs, &protein, &fats, &e.Version, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return domain.Entry{}, err
	}
	e.Kind = domain.EntryKind(kind)
	e.Date = domain.Day(e.Date)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()

	switch e.Kind {
	case domain.EntryKindActivity:
		e.Activity = &domain.Activity{
			Name:        deref(name),
			Type:        domain.ActivityType(deref(activityType)),
			DurationMin: deref(duration),
			Intensity:   domain.Intensity(deref(intensity)),
		}
	case domain.EntryKindNutrition:
		e.Nutrition = &domain.Nutrition{
			FoodItem:     deref(food),
			Calories:     deref(calories),
			CarbsGrams:   deref(carbs),
			ProteinGrams: deref(protein),
			FatsGrams:    deref(fats),
		}
	}
	return e, nil
}

func scanGoal(row pgx.Row) (domain.Goal, error) {
	var (
		g                domain.Goal
		goalType, period string
	)
	if err := row.Scan(&g.ID, &goalType, &g.TargetValue, &period, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return domain.Goal{}, err
	}
	g.Type = domain.GoalType(goalType)
	g.Period = domain.Period(period)
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return g, nil
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

// entryKey returns the canonical form of id, or false for IDs that can never
// match the uuid column.
func entryKey(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
