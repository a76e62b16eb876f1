// Package events defines the wire payloads consumed and produced by the workout processor.
package events

import "time"

// Event types carried in the event_type header.
const (
	WorkoutProcessorType = "workout.processor"
	WorkoutCreatedType   = "workout.created"
)

// WorkoutPayload is one workout as sent by the tracking source. Numeric fields are decimal strings.
type WorkoutPayload struct {
	ID                  string `json:"id"`
	StartTime           string `json:"startTime"`
	EndTime             string `json:"endTime"`
	Duration            string `json:"duration"`
	TotalDistance       string `json:"totalDistance,omitempty"`
	WorkoutActivityType string `json:"workoutActivityType"`
	TotalEnergyBurned   string `json:"totalEnergyBurned"`
	Username            string `json:"username,omitempty"`
	UserID              *int64 `json:"userId,omitempty"`
}

// WorkoutBatchPayload carries many workouts for one user.
type WorkoutBatchPayload struct {
	Username string           `json:"username,omitempty"`
	UserID   *int64           `json:"userId,omitempty"`
	Workouts []WorkoutPayload `json:"workouts"`
}

// WorkoutCreated is emitted once per newly stored workout.
type WorkoutCreated struct {
	WorkoutID       int64     `json:"workoutId"`
	ExternalID      string    `json:"externalId"`
	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt"`
	Duration        float64   `json:"duration"`
	Distance        *float64  `json:"distance,omitempty"`
	WorkoutTypeID   int64     `json:"workoutTypeId"`
	WorkoutTypeName string    `json:"workoutTypeName,omitempty"`
	WorkoutName     *string   `json:"workoutName,omitempty"`
	EnergyBurned    float64   `json:"energyBurned"`
	UserID          int64     `json:"userId"`
	PeriodID        int64     `json:"periodId"`
	CorrelationID   string    `json:"correlationId,omitempty"`
}
