package ingest

import (
	"example.com/workoutprocessor/internal/domain"
)

// assemble joins resolver outputs. Workouts missing a period or a category are left out; the
// resolvers have already logged why.
func assemble(workouts []domain.WorkoutInput, owners []int64, periods []*domain.Period, categories []*categoryMatch, correlationID string) []domain.NewWorkout {
	records := make([]domain.NewWorkout, 0, len(workouts))
	for i, w := range workouts {
		period, category := periods[i], categories[i]
		if period == nil || category == nil {
			continue
		}

		var workoutName *string
		if category.fallback {
			label := w.ActivityType
			workoutName = &label
		}

		records = append(records, domain.NewWorkout{
			ExternalID:   w.ExternalID,
			UserID:       owners[i],
			StartedAt:    w.StartedAt,
			EndedAt:      w.EndedAt,
			Duration:     w.Duration,
			Distance:     w.Distance,
			EnergyBurned: w.EnergyBurned,
			CategoryID:   category.category.ID,
			PeriodID:     period.ID,
			WorkoutName:  workoutName,
			Metadata:     domain.WorkoutMetadata{CorrelationID: correlationID},
		})
	}
	return records
}
