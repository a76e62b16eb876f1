package deadletter

import "github.com/prometheus/client_golang/prometheus"

var (
	writtenCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "dlq",
		Name:      "messages_written_total",
		Help:      "Number of inbound messages dead-lettered, labeled by topic and whether they may be replayed.",
	}, []string{"topic", "retryable"})

	replayedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "dlq",
		Name:      "messages_replayed_total",
		Help:      "Number of DLQ entries republished to their original topic.",
	}, []string{"topic"})

	quarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "dlq",
		Name:      "messages_quarantined_total",
		Help:      "Number of DLQ entries quarantined, either rejected or after exhausting retries.",
	}, []string{"topic"})

	retryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workout_processor",
		Subsystem: "dlq",
		Name:      "retry_scheduled_total",
		Help:      "Number of times a DLQ entry was scheduled for a future retry.",
	}, []string{"topic"})

	backlogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "workout_processor",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Current number of entries remaining in the DLQ.",
	})
)

func init() {
	prometheus.MustRegister(writtenCounter, replayedCounter, quarantinedCounter, retryCounter, backlogGauge)
}

// recordWritten counts a dead-lettered message.
func recordWritten(entry Entry) {
	retryable := "false"
	if entry.Retryable {
		retryable = "true"
	}
	writtenCounter.WithLabelValues(entry.Topic, retryable).Inc()
}

func recordReplayed(entry Entry) {
	replayedCounter.WithLabelValues(entry.Topic).Inc()
}

func recordQuarantined(entry Entry) {
	quarantinedCounter.WithLabelValues(entry.Topic).Inc()
}

func recordRetryScheduled(entry Entry) {
	retryCounter.WithLabelValues(entry.Topic).Inc()
}
