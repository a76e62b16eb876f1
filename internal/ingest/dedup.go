package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"example.com/workoutprocessor/internal/domain"
)

// filterExisting drops workouts whose external id is already stored, and repeated ids within
// the batch after their first occurrence.
func (p *Pipeline) filterExisting(ctx context.Context, logger *slog.Logger, workouts []domain.WorkoutInput) ([]domain.WorkoutInput, int, error) {
	ctx, span := tracer.Start(ctx, "ingest.dedup")
	defer span.End()

	ids := make([]string, 0, len(workouts))
	for _, w := range workouts {
		ids = append(ids, w.ExternalID)
	}

	existing, err := p.store.FindExistingExternalIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("ingest: find existing workouts: %w", err)
	}

	seen := make(map[string]struct{}, len(existing)+len(workouts))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	if len(existing) > 0 {
		logger.Info("workouts already created", "external_ids", existing)
	}

	fresh := make([]domain.WorkoutInput, 0, len(workouts))
	duplicates := 0
	for i, w := range workouts {
		if _, ok := seen[w.ExternalID]; ok {
			duplicates++
			logger.Debug("skipping duplicate workout", "external_id", w.ExternalID, "index", i)
			continue
		}
		seen[w.ExternalID] = struct{}{}
		fresh = append(fresh, w)
	}
	return fresh, duplicates, nil
}
