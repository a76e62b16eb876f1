// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/workoutprocessor/internal/domain"
)

// Store keeps reference data and workouts in memory. It enforces external id uniqueness the
// same way the Postgres constraint does.
type Store struct {
	mu         sync.RWMutex
	periods    []domain.Period
	categories []domain.Category
	users      map[string]int64
	workouts   []domain.StoredWorkout
	byExternal map[string]int
	nextID     int64
	now        func() time.Time

	// Calls counts store operations by name.
	Calls map[string]int
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		users:      make(map[string]int64),
		byExternal: make(map[string]int),
		nextID:     1,
		now:        func() time.Time { return time.Now().UTC() },
		Calls:      make(map[string]int),
	}
}

// AddPeriod seeds a period.
func (s *Store) AddPeriod(p domain.Period) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = append(s.periods, p)
}

// AddCategory seeds a workout type.
func (s *Store) AddCategory(c domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, c)
}

// AddUser seeds a username.
func (s *Store) AddUser(username string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = id
}

// Workouts returns a copy of the stored workouts in insertion order.
func (s *Store) Workouts() []domain.StoredWorkout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StoredWorkout, len(s.workouts))
	copy(out, s.workouts)
	return out
}

// FindExistingExternalIDs implements domain.Store.
func (s *Store) FindExistingExternalIDs(_ context.Context, externalIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["FindExistingExternalIDs"]++

	found := make([]string, 0)
	seen := make(map[string]struct{}, len(externalIDs))
	for _, id := range externalIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := s.byExternal[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

// FindActivePeriods implements domain.Store with an inclusive date overlap, like the SQL query.
func (s *Store) FindActivePeriods(_ context.Context, query domain.PeriodQuery) ([]domain.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["FindActivePeriods"]++

	out := make([]domain.Period, 0)
	for _, p := range s.periods {
		if !p.Active {
			continue
		}
		for _, d := range query.Dates {
			if !d.Before(p.StartAt) && !d.After(p.EndAt) {
				out = append(out, p)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		if !out[i].EndAt.Equal(out[j].EndAt) {
			return out[i].EndAt.Before(out[j].EndAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FindActiveCategories implements domain.Store.
func (s *Store) FindActiveCategories(_ context.Context, query domain.CategoryQuery) ([]domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["FindActiveCategories"]++

	names := make(map[string]struct{}, len(query.Names))
	for _, n := range query.Names {
		names[n] = struct{}{}
	}
	out := make([]domain.Category, 0)
	for _, c := range s.categories {
		if !c.Active {
			continue
		}
		if _, ok := names[c.Name]; ok || c.ID == query.SentinelID {
			out = append(out, c)
		}
	}
	return out, nil
}

// InsertWorkouts implements domain.Store. Nothing is written if any external id collides.
func (s *Store) InsertWorkouts(_ context.Context, workouts []domain.NewWorkout) ([]domain.StoredWorkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["InsertWorkouts"]++

	pending := make(map[string]struct{}, len(workouts))
	for _, w := range workouts {
		if _, ok := s.byExternal[w.ExternalID]; ok {
			return nil, domain.ErrDuplicateWorkout
		}
		if _, ok := pending[w.ExternalID]; ok {
			return nil, domain.ErrDuplicateWorkout
		}
		pending[w.ExternalID] = struct{}{}
	}

	now := s.now()
	out := make([]domain.StoredWorkout, 0, len(workouts))
	for _, w := range workouts {
		row := domain.StoredWorkout{
			ID:           s.nextID,
			ExternalID:   w.ExternalID,
			UserID:       w.UserID,
			StartedAt:    w.StartedAt,
			EndedAt:      w.EndedAt,
			Duration:     w.Duration,
			Distance:     w.Distance,
			EnergyBurned: w.EnergyBurned,
			CategoryID:   w.CategoryID,
			PeriodID:     w.PeriodID,
			WorkoutName:  w.WorkoutName,
			Metadata:     w.Metadata,
			CreatedAt:    now,
		}
		s.nextID++
		s.byExternal[w.ExternalID] = len(s.workouts)
		s.workouts = append(s.workouts, row)
		out = append(out, row)
	}
	return out, nil
}

// FindUserIDByUsername implements domain.UserDirectory.
func (s *Store) FindUserIDByUsername(_ context.Context, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["FindUserIDByUsername"]++

	id, ok := s.users[username]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	return id, nil
}
