package publisher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeDelivered = "delivered"
	outcomeFailed    = "failed"
)

var (
	recordsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "publisher",
		Name:      "records_total",
		Help:      "Number of workout.created records written to Kafka, labeled by topic and outcome.",
	}, []string{"topic", "outcome"})

	writeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "workout_processor",
		Subsystem: "publisher",
		Name:      "write_duration_seconds",
		Help:      "Time spent encoding and writing one batch of records.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(recordsCounter, writeDuration)
}

func recordPublish(topic, outcome string, count int, elapsed time.Duration) {
	recordsCounter.WithLabelValues(topic, outcome).Add(float64(count))
	writeDuration.WithLabelValues(topic).Observe(elapsed.Seconds())
}
