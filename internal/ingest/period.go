package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"example.com/workoutprocessor/internal/domain"
)

// BoundaryPolicy decides whether a period's first and last day belong to it.
type BoundaryPolicy int

const (
	// BoundaryExclusive matches days strictly between a period's start and end dates.
	BoundaryExclusive BoundaryPolicy = iota
	// BoundaryInclusive matches days from the start date through the end date.
	BoundaryInclusive
)

func (b BoundaryPolicy) String() string {
	switch b {
	case BoundaryExclusive:
		return "exclusive"
	case BoundaryInclusive:
		return "inclusive"
	default:
		return "unknown"
	}
}

// ParseBoundaryPolicy parses "exclusive" or "inclusive".
func ParseBoundaryPolicy(s string) (BoundaryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exclusive":
		return BoundaryExclusive, nil
	case "inclusive":
		return BoundaryInclusive, nil
	default:
		return BoundaryExclusive, fmt.Errorf("unknown period boundary policy %q", s)
	}
}

// Contains reports whether day falls within the period under this policy. Both sides are
// compared as calendar dates.
func (b BoundaryPolicy) Contains(period domain.Period, day time.Time) bool {
	start := civilDate(period.StartAt, time.UTC)
	end := civilDate(period.EndAt, time.UTC)
	if b == BoundaryInclusive {
		return !day.Before(start) && !day.After(end)
	}
	return day.After(start) && day.Before(end)
}

// civilDate truncates t to midnight UTC of its calendar day in loc.
func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// resolvePeriods returns, per workout, the first matching period in start/end order or nil.
func (p *Pipeline) resolvePeriods(ctx context.Context, logger *slog.Logger, workouts []domain.WorkoutInput) ([]*domain.Period, error) {
	ctx, span := tracer.Start(ctx, "ingest.resolve_periods")
	defer span.End()

	days := make([]time.Time, len(workouts))
	unique := make(map[time.Time]struct{}, len(workouts))
	dates := make([]time.Time, 0, len(workouts))
	for i, w := range workouts {
		day := civilDate(w.StartedAt, p.location)
		days[i] = day
		if _, ok := unique[day]; !ok {
			unique[day] = struct{}{}
			dates = append(dates, day)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	periods, err := p.store.FindActivePeriods(ctx, domain.PeriodQuery{Dates: dates})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ingest: find periods: %w", err)
	}
	logger.Debug("periods loaded", "count", len(periods))

	matches := make([]*domain.Period, len(workouts))
	for i, w := range workouts {
		for j := range periods {
			if periods[j].Active && p.boundary.Contains(periods[j], days[i]) {
				matches[i] = &periods[j]
				break
			}
		}
		if matches[i] == nil {
			logger.Warn("could not find period for workout",
				"external_id", w.ExternalID,
				"index", i,
				"date", days[i].Format(time.DateOnly),
				"boundary", p.boundary.String(),
			)
		}
	}
	return matches, nil
}
