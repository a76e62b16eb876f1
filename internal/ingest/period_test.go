package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/workoutprocessor/internal/domain"
)

func TestBoundaryPolicyContains(t *testing.T) {
	period := domain.Period{ID: 1, StartAt: day(2024, time.January, 1), EndAt: day(2024, time.January, 31), Active: true}

	tests := []struct {
		name      string
		day       time.Time
		exclusive bool
		inclusive bool
	}{
		{name: "before start", day: day(2023, time.December, 31)},
		{name: "on start", day: day(2024, time.January, 1), inclusive: true},
		{name: "inside", day: day(2024, time.January, 15), exclusive: true, inclusive: true},
		{name: "on end", day: day(2024, time.January, 31), inclusive: true},
		{name: "after end", day: day(2024, time.February, 1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.exclusive, BoundaryExclusive.Contains(period, tc.day))
			require.Equal(t, tc.inclusive, BoundaryInclusive.Contains(period, tc.day))
		})
	}
}

func TestParseBoundaryPolicy(t *testing.T) {
	policy, err := ParseBoundaryPolicy("")
	require.NoError(t, err)
	require.Equal(t, BoundaryExclusive, policy)

	policy, err = ParseBoundaryPolicy(" Inclusive ")
	require.NoError(t, err)
	require.Equal(t, BoundaryInclusive, policy)

	_, err = ParseBoundaryPolicy("half-open")
	require.Error(t, err)
}

func TestCivilDate(t *testing.T) {
	ts := time.Date(2024, time.March, 9, 23, 30, 0, 0, time.UTC)
	require.Equal(t, day(2024, time.March, 9), civilDate(ts, time.UTC))

	plusTwo := time.FixedZone("UTC+2", 2*60*60)
	require.Equal(t, day(2024, time.March, 10), civilDate(ts, plusTwo))
}
