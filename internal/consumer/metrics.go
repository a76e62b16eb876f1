package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeHandled   = "handled"
	outcomeRejected  = "rejected"
	outcomeExhausted = "exhausted"
	// outcomeUndelivered marks messages whose workouts were stored but whose events were parked.
	outcomeUndelivered = "undelivered"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of Kafka messages processed, labeled by topic and outcome.",
	}, []string{"topic", "outcome"})

	retryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "consumer",
		Name:      "handler_retries_total",
		Help:      "Number of in-process handler retries per topic.",
	}, []string{"topic"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per topic.",
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "workout_processor",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed message per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, retryCounter, decodeErrorCounter, lastMessageGauge)
}

func recordProcessed(msg Message, outcome string) {
	processedCounter.WithLabelValues(msg.Topic, outcome).Inc()
	if outcome == outcomeHandled && !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordRetry(msg Message) {
	retryCounter.WithLabelValues(msg.Topic).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
