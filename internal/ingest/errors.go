package ingest

import (
	"errors"
	"fmt"
	"strings"

	"example.com/workoutprocessor/internal/domain"
)

// ErrPublish wraps failures of the publish step. Rows are already stored when it is returned.
var ErrPublish = errors.New("publish workout events")

// FieldError describes one invalid field. Index is the position in the workouts array, -1 for event-level fields.
type FieldError struct {
	Index  int
	Field  string
	Reason string
}

func (e FieldError) String() string {
	if e.Index < 0 {
		if e.Field == "" {
			return e.Reason
		}
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("workouts[%d].%s: %s", e.Index, e.Field, e.Reason)
}

// ValidationError rejects an inbound event as a whole.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.String())
	}
	return "invalid workout event: " + strings.Join(parts, "; ")
}

// IsRejection reports whether err means the message itself is unusable and retrying cannot help.
func IsRejection(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return true
	}
	return errors.Is(err, domain.ErrUserNotFound)
}
