// Package domain defines the workout records and reference data the processor works with.
package domain

import "time"

// DefaultOtherCategoryID is the reserved workout type used when an activity label is unknown.
const DefaultOtherCategoryID int64 = 1

// WorkoutInput is a validated workout taken from an inbound event.
type WorkoutInput struct {
	ExternalID   string
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     float64
	Distance     *float64
	EnergyBurned float64
	ActivityType string
	// UserID is set when the event carries the owner inline.
	UserID *int64
}

// Batch is the typed form of one inbound event.
type Batch struct {
	Username string
	UserID   *int64
	Workouts []WorkoutInput
	// Single reports that the event carried one workout object rather than an array.
	Single bool
}

// Period is an accounting window workouts are attributed to. StartAt and EndAt are calendar dates.
type Period struct {
	ID      int64
	StartAt time.Time
	EndAt   time.Time
	Active  bool
}

// Category is a workout type.
type Category struct {
	ID     int64
	Name   string
	Active bool
}

// WorkoutMetadata is persisted alongside each workout for tracing.
type WorkoutMetadata struct {
	CorrelationID string `json:"correlationId,omitempty"`
}

// NewWorkout is an assembled record ready for insertion.
type NewWorkout struct {
	ExternalID   string
	UserID       int64
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     float64
	Distance     *float64
	EnergyBurned float64
	CategoryID   int64
	PeriodID     int64
	// WorkoutName keeps the original activity label when the fallback category was used.
	WorkoutName *string
	Metadata    WorkoutMetadata
}

// StoredWorkout is a persisted workout row.
type StoredWorkout struct {
	ID           int64
	ExternalID   string
	UserID       int64
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     float64
	Distance     *float64
	EnergyBurned float64
	CategoryID   int64
	PeriodID     int64
	WorkoutName  *string
	Metadata     WorkoutMetadata
	CreatedAt    time.Time
}
