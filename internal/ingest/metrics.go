package ingest

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	skipNoPeriod   = "no_period"
	skipNoCategory = "no_workout_type"

	outcomeSucceeded = "succeeded"
	outcomeRejected  = "rejected"
	outcomePublish   = "publish_failed"
	outcomeFailed    = "failed"
)

var (
	receivedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "pipeline",
		Name:      "workouts_received_total",
		Help:      "Number of validated workouts handed to the pipeline.",
	})

	duplicateCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "pipeline",
		Name:      "workouts_duplicate_total",
		Help:      "Number of workouts dropped because their external id was already stored.",
	})

	skippedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "pipeline",
		Name:      "workouts_skipped_total",
		Help:      "Number of workouts skipped during resolution, labeled by reason.",
	}, []string{"reason"})

	insertedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "pipeline",
		Name:      "workouts_inserted_total",
		Help:      "Number of workouts persisted.",
	})

	publishedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "pipeline",
		Name:      "events_published_total",
		Help:      "Number of workout.created events published.",
	})

	invocationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "workout_processor",
		Subsystem: "pipeline",
		Name:      "invocation_duration_seconds",
		Help:      "Time spent processing one inbound event, labeled by outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(receivedCounter, duplicateCounter, skippedCounter, insertedCounter, publishedCounter, invocationDuration)
}

func recordReceived(n int)   { receivedCounter.Add(float64(n)) }
func recordDuplicates(n int) { duplicateCounter.Add(float64(n)) }
func recordInserted(n int)   { insertedCounter.Add(float64(n)) }
func recordPublished(n int)  { publishedCounter.Add(float64(n)) }

func recordSkipped(reason string) {
	skippedCounter.WithLabelValues(reason).Inc()
}

func recordInvocation(outcome string, elapsed time.Duration) {
	invocationDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func outcomeFor(err error) string {
	switch {
	case IsRejection(err):
		return outcomeRejected
	case errors.Is(err, ErrPublish):
		return outcomePublish
	default:
		return outcomeFailed
	}
}
