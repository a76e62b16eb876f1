package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateWorkout is returned when an insert hits the external id unique constraint.
	ErrDuplicateWorkout = errors.New("workout with external id already exists")
	// ErrUserNotFound is returned when a username cannot be resolved to a user id.
	ErrUserNotFound = errors.New("user not found")
)

// PeriodQuery selects active periods containing at least one of Dates.
type PeriodQuery struct {
	Dates []time.Time
}

// CategoryQuery selects active categories named in Names, plus the sentinel row.
type CategoryQuery struct {
	Names      []string
	SentinelID int64
}

// Store captures the reads and the single write the ingestion pipeline needs.
type Store interface {
	FindExistingExternalIDs(ctx context.Context, externalIDs []string) ([]string, error)
	// FindActivePeriods returns matches ordered by start date then end date, ascending.
	FindActivePeriods(ctx context.Context, query PeriodQuery) ([]Period, error)
	FindActiveCategories(ctx context.Context, query CategoryQuery) ([]Category, error)
	// InsertWorkouts writes all records atomically and returns the generated rows in input order.
	InsertWorkouts(ctx context.Context, workouts []NewWorkout) ([]StoredWorkout, error)
}

// UserDirectory resolves usernames to user ids.
type UserDirectory interface {
	FindUserIDByUsername(ctx context.Context, username string) (int64, error)
}
