package deadletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// Header keys added to replayed records.
const (
	HeaderReplayOf      = "dlq_id"
	HeaderReplayAttempt = "dlq_attempt"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Manager replays retryable entries onto their original topic and quarantines the rest.
type Manager struct {
	store      Store
	producer   messageWriter
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewManager constructs a Manager. Non-positive settings fall back to 5 retries and a one minute base delay.
func NewManager(store Store, producer messageWriter, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Manager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, producer: producer, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// RunOnce processes a batch of due entries and returns how many were replayed.
func (m *Manager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	entries, err := m.store.Due(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, entry := range entries {
		ok, entryErr := m.handleEntry(ctx, entry)
		if entryErr != nil {
			err = errors.Join(err, fmt.Errorf("deadletter: entry %d: %w", entry.ID, entryErr))
			continue
		}
		if ok {
			replayed++
		}
	}

	if backlog, backlogErr := m.store.Backlog(ctx); backlogErr == nil {
		backlogGauge.Set(float64(backlog))
	}
	return replayed, err
}

// handleEntry reports whether the entry was replayed.
func (m *Manager) handleEntry(ctx context.Context, entry Entry) (bool, error) {
	logger := m.logger.With("dlq_id", entry.ID, "topic", entry.Topic, "correlation_id", entry.CorrelationID)

	if !entry.Retryable {
		logger.Warn("quarantining rejected message", "reason", entry.Reason)
		recordQuarantined(entry)
		return false, m.store.Quarantine(ctx, entry.ID, "rejected: "+entry.Reason)
	}
	if entry.RetryCount >= m.maxRetries {
		logger.Warn("quarantining message after retry limit", "retry_count", entry.RetryCount, "reason", entry.Reason)
		recordQuarantined(entry)
		return false, m.store.Quarantine(ctx, entry.ID, "retry limit reached")
	}

	if err := m.replay(ctx, entry); err != nil {
		delay := m.backoffDelay(entry.RetryCount + 1)
		logger.Warn("replay failed, rescheduling", "error", err, "delay", delay.String())
		recordRetryScheduled(entry)
		return false, m.store.Reschedule(ctx, entry.ID, delay, err.Error())
	}

	logger.Info("message replayed", "retry_count", entry.RetryCount)
	recordReplayed(entry)
	return true, m.store.Delete(ctx, entry.ID)
}

func (m *Manager) replay(ctx context.Context, entry Entry) error {
	headers := []kafka.Header{
		{Key: HeaderReplayOf, Value: []byte(strconv.FormatInt(entry.ID, 10))},
		{Key: HeaderReplayAttempt, Value: []byte(strconv.Itoa(entry.RetryCount + 1))},
	}
	if entry.EventType != "" {
		headers = append(headers, kafka.Header{Key: headerEventType, Value: []byte(entry.EventType)})
	}
	if entry.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: headerCorrelationID, Value: []byte(entry.CorrelationID)})
	}
	return m.producer.WriteMessages(ctx, entry.Topic, kafka.Message{
		Key:     entry.Key,
		Value:   entry.Payload,
		Headers: headers,
		Time:    time.Now().UTC(),
	})
}

// backoffDelay doubles the base delay per attempt, capped at one hour.
func (m *Manager) backoffDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.baseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
