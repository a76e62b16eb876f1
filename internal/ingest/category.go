package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"example.com/workoutprocessor/internal/domain"
)

type categoryMatch struct {
	category domain.Category
	// fallback is set when the sentinel category stood in for an unknown label.
	fallback bool
}

// resolveCategories returns, per workout, the exact name match, the sentinel fallback, or nil.
func (p *Pipeline) resolveCategories(ctx context.Context, logger *slog.Logger, workouts []domain.WorkoutInput) ([]*categoryMatch, error) {
	ctx, span := tracer.Start(ctx, "ingest.resolve_categories")
	defer span.End()

	unique := make(map[string]struct{}, len(workouts))
	names := make([]string, 0, len(workouts))
	for _, w := range workouts {
		if _, ok := unique[w.ActivityType]; !ok {
			unique[w.ActivityType] = struct{}{}
			names = append(names, w.ActivityType)
		}
	}
	sort.Strings(names)

	categories, err := p.store.FindActiveCategories(ctx, domain.CategoryQuery{Names: names, SentinelID: p.sentinelID})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ingest: find workout types: %w", err)
	}
	logger.Debug("workout types loaded", "count", len(categories))

	byName := make(map[string]domain.Category, len(categories))
	var sentinel *domain.Category
	for i := range categories {
		c := categories[i]
		if !c.Active {
			continue
		}
		if c.ID == p.sentinelID {
			sentinel = &categories[i]
		}
		if _, ok := byName[c.Name]; !ok {
			byName[c.Name] = c
		}
	}

	matches := make([]*categoryMatch, len(workouts))
	for i, w := range workouts {
		if c, ok := byName[w.ActivityType]; ok {
			matches[i] = &categoryMatch{category: c}
			continue
		}
		if sentinel != nil {
			matches[i] = &categoryMatch{category: *sentinel, fallback: true}
			continue
		}
		logger.Warn("could not find workout type and fallback type is missing",
			"external_id", w.ExternalID,
			"index", i,
			"workout_activity_type", w.ActivityType,
			"fallback_workout_type_id", p.sentinelID,
		)
	}
	return matches, nil
}
