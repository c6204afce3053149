// Package memory keeps entries and goals in process memory for local
// development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/fittrack/internal/domain"
)

// Repository stores entries and goals in maps guarded by a single lock.
type Repository struct {
	mu      sync.RWMutex
	entries map[string]domain.Entry
	goals   map[domain.GoalType]domain.Goal
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		entries: make(map[string]domain.Entry),
		goals:   make(map[domain.GoalType]domain.Goal),
	}
}

// Create implements domain.EntryRepository.
func (r *Repository) Create(ctx context.Context, entry domain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.ID] = cloneEntry(entry)
	return nil
}

// Get returns the entry or nil when it does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	out := cloneEntry(entry)
	return &out, nil
}

// Replace overwrites an entry whose stored version precedes entry.Version.
func (r *Repository) Replace(ctx context.Context, entry domain.Entry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[entry.ID]
	if !ok || current.Version != entry.Version-1 {
		return false, nil
	}
	r.entries[entry.ID] = cloneEntry(entry)
	return true, nil
}

// Delete removes an entry.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false, nil
	}
	delete(r.entries, id)
	return true, nil
}

// List returns matching entries in (date, id) order.
func (r *Repository) List(ctx context.Context, query domain.EntryQuery) ([]domain.Entry, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Entry, 0)
	for _, entry := range r.entries {
		if query.Matches(entry) {
			matched = append(matched, cloneEntry(entry))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return domain.EntryLess(matched[i], matched[j])
	})

	if query.Limit <= 0 || len(matched) <= query.Limit {
		return matched, nil, nil
	}
	page := matched[:query.Limit]
	last := page[len(page)-1]
	return page, &domain.Cursor{Date: last.Date, ID: last.ID}, nil
}

// UpsertGoal stores the goal, keeping the identity of an existing goal of the same type.
func (r *Repository) UpsertGoal(ctx context.Context, goal domain.Goal) (domain.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.goals[goal.Type]; ok {
		goal.ID = existing.ID
		goal.CreatedAt = existing.CreatedAt
	}
	r.goals[goal.Type] = goal
	return goal, nil
}

// GetGoal returns the goal of the given type or nil.
func (r *Repository) GetGoal(ctx context.Context, goalType domain.GoalType) (*domain.Goal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	goal, ok := r.goals[goalType]
	if !ok {
		return nil, nil
	}
	return &goal, nil
}

// ListGoals returns goals in domain.GoalTypes order.
func (r *Repository) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Goal, 0, len(r.goals))
	for _, goalType := range domain.GoalTypes {
		if goal, ok := r.goals[goalType]; ok {
			out = append(out, goal)
		}
	}
	return out, nil
}

// DeleteGoal removes the goal of the given type.
func (r *Repository) DeleteGoal(ctx context.Context, goalType domain.GoalType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.goals[goalType]; !ok {
		return false, nil
	}
	delete(r.goals, goalType)
	return true, nil
}

func cloneEntry(e domain.Entry) domain.Entry {
	if e.Activity != nil {
		a := *e.Activity
		e.Activity = &a
	}
	if e.Nutrition != nil {
		n := *e.Nutrition
		e.Nutrition = &n
	}
	return e
}
