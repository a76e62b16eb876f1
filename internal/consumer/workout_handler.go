package consumer

import (
	"context"
	"log/slog"
	"strings"

	"example.com/workoutprocessor/internal/ingest"
	"example.com/workoutprocessor/pkg/events"
)

// Ingester runs the ingestion pipeline for one raw payload.
type Ingester interface {
	ProcessRaw(ctx context.Context, correlationID string, payload []byte) (ingest.Result, error)
}

// WorkoutHandler feeds workout events to the ingestion pipeline.
type WorkoutHandler struct {
	ingester Ingester
	logger   *slog.Logger
}

// NewWorkoutHandler constructs a WorkoutHandler.
func NewWorkoutHandler(ingester Ingester, logger *slog.Logger) *WorkoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkoutHandler{ingester: ingester, logger: logger}
}

// Handle implements Handler. Records of other event types are acknowledged and ignored.
func (h *WorkoutHandler) Handle(ctx context.Context, msg Message) error {
	if !isWorkoutEvent(msg.EventType) {
		h.logger.Debug("ignoring event", "event_type", msg.EventType, "offset", msg.Offset)
		return nil
	}

	res, err := h.ingester.ProcessRaw(ctx, msg.CorrelationID, msg.Payload)
	if err != nil {
		if ingest.IsRejection(err) {
			return Reject(err)
		}
		return err
	}

	h.logger.Info("workout event processed",
		"correlation_id", msg.CorrelationID,
		"attempt", msg.Attempt,
		"replay_of", msg.ReplayOf,
		"received", res.Received,
		"duplicates", res.Duplicates,
		"skipped_no_period", res.SkippedNoPeriod,
		"skipped_no_workout_type", res.SkippedNoCategory,
		"inserted", res.Inserted,
		"published", res.Published,
	)
	return nil
}

// isWorkoutEvent accepts untyped records as well as reverse-DNS CloudEvents types such as
// com.example.workout.processor.
func isWorkoutEvent(eventType string) bool {
	return eventType == "" || eventType == events.WorkoutProcessorType ||
		strings.HasSuffix(eventType, "."+events.WorkoutProcessorType)
}
