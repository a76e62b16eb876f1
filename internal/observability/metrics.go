// Package observability exposes freshness watermarks shared across binaries.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	workoutPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "workout_processor",
		Subsystem: "persistence",
		Name:      "last_workout_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout insert committed to Postgres.",
	})
	eventPublishGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "workout_processor",
		Subsystem: "publisher",
		Name:      "last_event_published_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout.created batch acknowledged by Kafka.",
	})
)

func init() {
	prometheus.MustRegister(workoutPersistGauge, eventPublishGauge)
}

// RecordWorkoutsPersisted updates the persistence watermark gauge.
func RecordWorkoutsPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	workoutPersistGauge.Set(float64(ts.Unix()))
}

// RecordEventsPublished updates the publish watermark gauge.
func RecordEventsPublished(ts time.Time) {
	if ts.IsZero() {
		return
	}
	eventPublishGauge.Set(float64(ts.Unix()))
}
