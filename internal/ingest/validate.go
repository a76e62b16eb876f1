package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"example.com/workoutprocessor/internal/domain"
	"example.com/workoutprocessor/pkg/events"
)

const maxIdentifierLength = 255

var decimalPattern = regexp.MustCompile(`^\d{1,6}(\.\d{1,2})?$`)

// ParseEvent validates a raw inbound payload. It accepts a single workout object carrying the
// owner, or an object with a "workouts" array and a batch-level owner.
func ParseEvent(raw []byte) (domain.Batch, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.Batch{}, &ValidationError{Errors: []FieldError{{Index: -1, Reason: "payload must be a JSON object"}}}
	}

	if _, ok := fields["workouts"]; ok {
		var payload events.WorkoutBatchPayload
		if err := decodePayload(raw, &payload); err != nil {
			return domain.Batch{}, err
		}
		return parseBatch(payload)
	}

	var payload events.WorkoutPayload
	if err := decodePayload(raw, &payload); err != nil {
		return domain.Batch{}, err
	}
	return parseSingle(payload)
}

func decodePayload(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &ValidationError{Errors: []FieldError{{Index: -1, Field: typeErr.Field, Reason: "expected " + typeErr.Type.String()}}}
		}
		return &ValidationError{Errors: []FieldError{{Index: -1, Reason: err.Error()}}}
	}
	return nil
}

func parseSingle(payload events.WorkoutPayload) (domain.Batch, error) {
	v := &validator{}
	username := v.username(-1, payload.Username, payload.UserID == nil)
	workout, ok := v.workout(0, payload)
	if len(v.errs) > 0 || !ok {
		return domain.Batch{}, &ValidationError{Errors: v.errs}
	}
	return domain.Batch{
		Username: username,
		UserID:   payload.UserID,
		Workouts: []domain.WorkoutInput{workout},
		Single:   true,
	}, nil
}

func parseBatch(payload events.WorkoutBatchPayload) (domain.Batch, error) {
	v := &validator{}
	if payload.Workouts == nil {
		v.add(-1, "workouts", "must be an array")
		return domain.Batch{}, &ValidationError{Errors: v.errs}
	}

	// An owner is only needed when some workout does not carry its own.
	needsOwner := false
	if payload.UserID == nil {
		for _, w := range payload.Workouts {
			if w.UserID == nil {
				needsOwner = true
				break
			}
		}
	}
	username := v.username(-1, payload.Username, needsOwner)

	workouts := make([]domain.WorkoutInput, 0, len(payload.Workouts))
	for i, w := range payload.Workouts {
		if workout, ok := v.workout(i, w); ok {
			workouts = append(workouts, workout)
		}
	}
	if len(v.errs) > 0 {
		return domain.Batch{}, &ValidationError{Errors: v.errs}
	}
	return domain.Batch{
		Username: username,
		UserID:   payload.UserID,
		Workouts: workouts,
	}, nil
}

type validator struct {
	errs []FieldError
}

func (v *validator) add(index int, field, reason string) {
	v.errs = append(v.errs, FieldError{Index: index, Field: field, Reason: reason})
}

func (v *validator) username(index int, raw string, required bool) string {
	value := strings.TrimSpace(raw)
	switch {
	case value == "" && required:
		v.add(index, "username", "required when userId is absent")
	case len(value) > maxIdentifierLength:
		v.add(index, "username", "must be at most 255 characters")
	}
	return value
}

func (v *validator) workout(index int, payload events.WorkoutPayload) (domain.WorkoutInput, bool) {
	before := len(v.errs)

	id := strings.TrimSpace(payload.ID)
	switch {
	case id == "":
		v.add(index, "id", "required")
	case len(id) > maxIdentifierLength:
		v.add(index, "id", "must be at most 255 characters")
	}

	startedAt := v.datetime(index, "startTime", payload.StartTime)
	endedAt := v.datetime(index, "endTime", payload.EndTime)
	duration := v.decimal(index, "duration", payload.Duration)
	energy := v.decimal(index, "totalEnergyBurned", payload.TotalEnergyBurned)

	var distance *float64
	if strings.TrimSpace(payload.TotalDistance) != "" {
		d := v.decimal(index, "totalDistance", payload.TotalDistance)
		distance = &d
	}

	activityType := strings.TrimSpace(payload.WorkoutActivityType)
	if activityType == "" {
		v.add(index, "workoutActivityType", "required")
	}

	if len(v.errs) > before {
		return domain.WorkoutInput{}, false
	}
	return domain.WorkoutInput{
		ExternalID:   id,
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		Duration:     duration,
		Distance:     distance,
		EnergyBurned: energy,
		ActivityType: activityType,
		UserID:       payload.UserID,
	}, true
}

func (v *validator) datetime(index int, field, raw string) time.Time {
	value := strings.TrimSpace(raw)
	if value == "" {
		v.add(index, field, "required")
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		v.add(index, field, "must be an ISO-8601 datetime")
		return time.Time{}
	}
	return parsed
}

func (v *validator) decimal(index int, field, raw string) float64 {
	value := strings.TrimSpace(raw)
	if value == "" {
		v.add(index, field, "required")
		return 0
	}
	if !decimalPattern.MatchString(value) {
		v.add(index, field, "must be a decimal with up to 6 integer and 2 fraction digits")
		return 0
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		v.add(index, field, "must be a decimal")
		return 0
	}
	return parsed
}
