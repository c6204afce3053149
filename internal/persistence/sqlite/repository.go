// Package sqlite provides a file-backed repository for single-user installs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"example.com/fittrack/internal/domain"
)

// Open opens (or creates) the database file, enables WAL and applies the schema.
// The pool is capped at one connection: the store has a single writer.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return db, nil
}

// EnsureSchema creates tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
            entry_id TEXT PRIMARY KEY,
            kind TEXT NOT NULL CHECK (kind IN ('activity', 'nutrition')),
            entry_date TEXT NOT NULL,
            activity_name TEXT,
            activity_type TEXT,
            duration_min INTEGER CHECK (duration_min IS NULL OR duration_min > 0),
            intensity TEXT,
            food_item TEXT,
            calories REAL CHECK (calories IS NULL OR calories >= 0),
            carbs_grams REAL CHECK (carbs_grams IS NULL OR carbs_grams >= 0),
            protein_grams REAL CHECK (protein_grams IS NULL OR protein_grams >= 0),
            fats_grams REAL CHECK (fats_grams IS NULL OR fats_grams >= 0),
            version INTEGER NOT NULL,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS entries_date_idx ON entries (entry_date, entry_id);`,
		`CREATE TABLE IF NOT EXISTS goals (
            goal_type TEXT PRIMARY KEY,
            goal_id TEXT NOT NULL,
            target_value REAL NOT NULL CHECK (target_value > 0),
            period TEXT NOT NULL,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL
        );`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Repository implements the entry and goal repositories on SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying connection.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

const entryColumns = `entry_id, kind, entry_date, activity_name, activity_type, duration_min, intensity,
        food_item, calories, carbs_grams, protein_grams, fats_grams, version, created_at, updated_at`

// Create implements domain.EntryRepository.
func (r *Repository) Create(ctx context.Context, entry domain.Entry) error {
	args := entryArgs(entry)
	_, err := r.db.ExecContext(ctx, `INSERT INTO entries (`+entryColumns+`)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	return err
}

// Get returns the entry or nil when it does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE entry_id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Replace overwrites every column of an entry still at entry.Version-1.
func (r *Repository) Replace(ctx context.Context, entry domain.Entry) (bool, error) {
	args := entryArgs(entry)
	res, err := r.db.ExecContext(ctx, `UPDATE entries SET kind=?, entry_date=?, activity_name=?, activity_type=?, duration_min=?, intensity=?,
        food_item=?, calories=?, carbs_grams=?, protein_grams=?, fats_grams=?, version=?, created_at=?, updated_at=?
        WHERE entry_id = ? AND version = ?`, append(append([]interface{}{}, args[1:]...), args[0], entry.Version-1)...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes an entry.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE entry_id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns a page ordered by (entry_date, entry_id). One extra row is
// read to decide whether a next cursor exists.
func (r *Repository) List(ctx context.Context, query domain.EntryQuery) ([]domain.Entry, *domain.Cursor, error) {
	var (
		where []string
		args  []interface{}
	)
	if !query.Range.From.IsZero() {
		where = append(where, "entry_date >= ?")
		args = append(args, domain.Day(query.Range.From).Format(domain.DateLayout))
	}
	if !query.Range.To.IsZero() {
		where = append(where, "entry_date <= ?")
		args = append(args, domain.Day(query.Range.To).Format(domain.DateLayout))
	}
	if query.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(query.Kind))
	}
	if query.Cursor != nil {
		where = append(where, "(entry_date, entry_id) > (?, ?)")
		args = append(args, domain.Day(query.Cursor.Date).Format(domain.DateLayout), query.Cursor.ID)
	}

	stmt := `SELECT ` + entryColumns + ` FROM entries`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, " AND ")
	}
	stmt += ` ORDER BY entry_date, entry_id`
	if query.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, query.Limit+1)
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
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

// UpsertGoal stores the goal, keeping the identity of an existing goal of the same type.
func (r *Repository) UpsertGoal(ctx context.Context, goal domain.Goal) (domain.Goal, error) {
	row := r.db.QueryRowContext(ctx, `INSERT INTO goals (goal_type, goal_id, target_value, period, created_at, updated_at)
        VALUES (?,?,?,?,?,?)
        ON CONFLICT(goal_type) DO UPDATE SET target_value=excluded.target_value, period=excluded.period, updated_at=excluded.updated_at
        RETURNING goal_id, created_at`,
		string(goal.Type), goal.ID, goal.TargetValue, string(goal.Period), goal.CreatedAt.UnixNano(), goal.UpdatedAt.UnixNano())

	var created int64
	if err := row.Scan(&goal.ID, &created); err != nil {
		return domain.Goal{}, err
	}
	goal.CreatedAt = time.Unix(0, created).UTC()
	return goal, nil
}

// GetGoal returns the goal of the given type or nil.
func (r *Repository) GetGoal(ctx context.Context, goalType domain.GoalType) (*domain.Goal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT goal_id, goal_type, target_value, period, created_at, updated_at
        FROM goals WHERE goal_type = ?`, string(goalType))
	goal, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

// ListGoals returns goals in domain.GoalTypes order.
func (r *Repository) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT goal_id, goal_type, target_value, period, created_at, updated_at FROM goals`)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortGoals(goals)
	return goals, nil
}

// DeleteGoal removes the goal of the given type.
func (r *Repository) DeleteGoal(ctx context.Context, goalType domain.GoalType) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE goal_type = ?`, string(goalType))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func entryArgs(e domain.Entry) []interface{} {
	var (
		name, activityType, intensity, food sql.NullString
		duration                            sql.NullInt64
		calories, carbs, protein, fats      sql.NullFloat64
	)
	if a := e.Activity; a != nil {
		name = sql.NullString{String: a.Name, Valid: true}
		activityType = sql.NullString{String: string(a.Type), Valid: true}
		intensity = sql.NullString{String: string(a.Intensity), Valid: true}
		duration = sql.NullInt64{Int64: int64(a.DurationMin), Valid: true}
	}
	if n := e.Nutrition; n != nil {
		food = sql.NullString{String: n.FoodItem, Valid: true}
		calories = sql.NullFloat64{Float64: n.Calories, Valid: true}
		carbs = sql.NullFloat64{Float64: n.CarbsGrams, Valid: true}
		protein = sql.NullFloat64{Float64: n.ProteinGrams, Valid: true}
		fats = sql.NullFloat64{Float64: n.FatsGrams, Valid: true}
	}
	return []interface{}{
		e.ID,
		string(e.Kind),
		domain.Day(e.Date).Format(domain.DateLayout),
		name, activityType, duration, intensity,
		food, calories, carbs, protein, fats,
		e.Version,
		e.CreatedAt.UnixNano(),
		e.UpdatedAt.UnixNano(),
	}
}

func scanEntry(row scanner) (domain.Entry, error) {
	var (
		e                                   domain.Entry
		kind, date                          string
		name, activityType, intensity, food sql.NullString
		duration                            sql.NullInt64
		calories, carbs, protein, fats      sql.NullFloat64
		created, updated                    int64
	)
	if err := row.Scan(&e.ID, &kind, &date, &name, &activityType, &duration, &intensity,
		&food, &calories, &carbs, &protein, &fats, &e.Version, &created, &updated); err != nil {
		return domain.Entry{}, err
	}

	day, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("entry %s: bad date %q: %w", e.ID, date, err)
	}
	e.Kind = domain.EntryKind(kind)
	e.Date = day
	e.CreatedAt = time.Unix(0, created).UTC()
	e.UpdatedAt = time.Unix(0, updated).UTC()

	switch e.Kind {
	case domain.EntryKindActivity:
		e.Activity = &domain.Activity{
			Name:        name.String,
			Type:        domain.ActivityType(activityType.String),
			DurationMin: int(duration.Int64),
			Intensity:   domain.Intensity(intensity.String),
		}
	case domain.EntryKindNutrition:
		e.Nutrition = &domain.Nutrition{
			FoodItem:     food.String,
			Calories:     calories.Float64,
			CarbsGrams:   carbs.Float64,
			ProteinGrams: protein.Float64,
			FatsGrams:    fats.Float64,
		}
	}
	return e, nil
}

func scanGoal(row scanner) (domain.Goal, error) {
	var (
		g                domain.Goal
		goalType, period string
		created, updated int64
	)
	if err := row.Scan(&g.ID, &goalType, &g.TargetValue, &period, &created, &updated); err != nil {
		return domain.Goal{}, err
	}
	g.Type = domain.GoalType(goalType)
	g.Period = domain.Period(period)
	g.CreatedAt = time.Unix(0, created).UTC()
	g.UpdatedAt = time.Unix(0, updated).UTC()
	return g, nil
}

func sortGoals(goals []domain.Goal) {
	rank := make(map[domain.GoalType]int, len(domain.GoalTypes))
	for i, t := range domain.GoalTypes {
		rank[t] = i
	}
	sort.Slice(goals, func(i, j int) bool {
		return rank[goals[i].Type] < rank[goals[j].Type]
	})
}
