// Package domain defines the business logic for fitness tracking: logged
// entries, goals, and the evaluation of one against the other.
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/fittrack/internal/observability"
)

const (
	// DefaultPageSize is used when a query does not set a limit.
	DefaultPageSize = 50
	// MaxPageSize caps a single page.
	MaxPageSize = 500
)

// EntryRepository captures entry persistence. Get returns nil, nil for a
// missing entry. Replace writes only when the stored version is exactly
// entry.Version-1 and reports whether it wrote. Delete reports whether the
// entry existed.
type EntryRepository interface {
	Create(ctx context.Context, entry Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	Replace(ctx context.Context, entry Entry) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, query EntryQuery) ([]Entry, *Cursor, error)
}

// Clock returns the current time.
type Clock func() time.Time

// EntryStore validates and persists activity and nutrition entries.
type EntryStore struct {
	repo  EntryRepository
	clock Clock
}

// StoreOption configures an EntryStore.
type StoreOption func(*EntryStore)

// WithStoreClock overrides time.Now, mostly for tests.
func WithStoreClock(clock Clock) StoreOption {
	return func(s *EntryStore) {
		s.clock = clock
	}
}

// NewEntryStore constructs an EntryStore.
func NewEntryStore(repo EntryRepository, opts ...StoreOption) *EntryStore {
	s := &EntryStore{repo: repo, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add validates the input and stores it under a new time-ordered identifier.
// A missing date defaults to today.
func (s *EntryStore) Add(ctx context.Context, input NewEntry) (*Entry, error) {
	input = s.normalize(input)
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	entry := Entry{
		ID:        newID(),
		Kind:      input.Kind(),
		Date:      input.Date,
		Activity:  input.Activity,
		Nutrition: input.Nutrition,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	observability.RecordEntryAdded(string(entry.Kind), now)
	return &entry, nil
}

// Get fetches an entry by ID.
func (s *EntryStore) Get(ctx context.Context, id string) (*Entry, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &NotFoundError{Resource: "entry", ID: id}
	}
	return entry, nil
}

// replaceAttempts bounds how often an unconditional Replace re-reads an entry
// that keeps changing underneath it.
const replaceAttempts = 3

// Replace explicitly overwrites an entry. The kind cannot change and a
// missing date keeps the stored one. When expectedVersion is positive it must
// match the stored version. The version check and the write happen in one
// repository call, so two writers holding the same version cannot both win.
func (s *EntryStore) Replace(ctx context.Context, id string, input NewEntry, expectedVersion int) (*Entry, error) {
	keepDate := input.Date.IsZero()
	input = s.normalize(input)
	if err := input.Validate(); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Kind != input.Kind() {
			return nil, &ValidationError{Field: "kind", Reason: "cannot change from " + string(current.Kind)}
		}
		if expectedVersion > 0 && expectedVersion != current.Version {
			return nil, &ConflictError{ID: id, Expected: expectedVersion, Actual: current.Version}
		}

		updated := *current
		if !keepDate {
			updated.Date = input.Date
		}
		updated.Activity = input.Activity
		updated.Nutrition = input.Nutrition
		updated.Version = current.Version + 1
		updated.UpdatedAt = s.clock().UTC()

		ok, err := s.repo.Replace(ctx, updated)
		if err != nil {
			return nil, err
		}
		if ok {
			return &updated, nil
		}
		// Another writer got in between. The next read reports a deletion as
		// not found and a newer version as a conflict when one was expected.
		if attempt == replaceAttempts {
			return nil, &ConflictError{ID: id, Expected: current.Version, Actual: current.Version + 1}
		}
	}
}

// Delete removes an entry. Deleting a missing ID leaves the store unchanged.
func (s *EntryStore) Delete(ctx context.Context, id string) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Resource: "entry", ID: id}
	}
	observability.RecordEntryDeleted()
	return nil
}

// List returns one chronological page and the cursor for the next one. An
// empty range yields an empty page.
func (s *EntryStore) List(ctx context.Context, query EntryQuery) ([]Entry, *Cursor, error) {
	if query.Range.Empty() {
		return []Entry{}, nil, nil
	}
	query.Range = query.Range.Normalize()
	switch {
	case query.Limit <= 0:
		query.Limit = DefaultPageSize
	case query.Limit > MaxPageSize:
		query.Limit = MaxPageSize
	}
	entries, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, next, nil
}

// ListAll drains every page of the range.
func (s *EntryStore) ListAll(ctx context.Context, dateRange DateRange, kind EntryKind) ([]Entry, error) {
	return listAll(ctx, s.repo, dateRange, kind)
}

func listAll(ctx context.Context, repo EntryRepository, dateRange DateRange, kind EntryKind) ([]Entry, error) {
	out := make([]Entry, 0)
	if dateRange.Empty() {
		return out, nil
	}
	query := EntryQuery{Range: dateRange.Normalize(), Kind: kind, Limit: MaxPageSize}
	for {
		page, next, err := repo.List(ctx, query)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == nil {
			return out, nil
		}
		query.Cursor = next
	}
}

func (s *EntryStore) normalize(input NewEntry) NewEntry {
	if input.Date.IsZero() {
		input.Date = s.clock()
	}
	input.Date = Day(input.Date)
	if input.Activity != nil {
		a := *input.Activity
		a.Name = strings.TrimSpace(a.Name)
		if parsed, err := ParseActivityType(string(a.Type)); err == nil {
			a.Type = parsed
		}
		if parsed, err := ParseIntensity(string(a.Intensity)); err == nil {
			a.Intensity = parsed
		}
		input.Activity = &a
	}
	if input.Nutrition != nil {
		n := *input.Nutrition
		n.FoodItem = strings.TrimSpace(n.FoodItem)
		input.Nutrition = &n
	}
	return input
}

// newID returns a UUIDv7 so that IDs sort in creation order within a day.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
