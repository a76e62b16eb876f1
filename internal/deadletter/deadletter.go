// Package deadletter stores inbound messages the consumer could not process and replays them.
package deadletter

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	headerEventType     = "event_type"
	headerCorrelationID = "correlation_id"
)

// Entry is one dead-lettered inbound message.
type Entry struct {
	ID            int64
	Topic         string
	Partition     int
	Offset        int64
	Key           []byte
	EventType     string
	CorrelationID string
	// Payload is the record value exactly as it was consumed.
	Payload []byte
	Reason  string
	// Retryable is false for messages that were rejected and would fail the same way again.
	Retryable bool
	// RetryCount is the number of replays already spent on this message, including replays
	// recorded by earlier entries for the same record.
	RetryCount int
	CreatedAt  time.Time
}

// Store persists dead-letter entries and their replay state.
type Store interface {
	Write(ctx context.Context, entry Entry) error
	// Due returns entries that are not quarantined and whose next retry time has passed, oldest first.
	Due(ctx context.Context, limit int) ([]Entry, error)
	Reschedule(ctx context.Context, id int64, delay time.Duration, reason string) error
	Quarantine(ctx context.Context, id int64, reason string) error
	Delete(ctx context.Context, id int64) error
	Backlog(ctx context.Context) (int, error)
}

// Undelivered builds retryable entries for outbound records the producer did not acknowledge.
// Replaying them writes each record to topic again.
func Undelivered(topic string, msgs []kafka.Message, reason string) []Entry {
	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, Entry{
			Topic:         topic,
			Partition:     -1,
			Offset:        -1,
			Key:           msg.Key,
			EventType:     headerString(msg, headerEventType),
			CorrelationID: headerString(msg, headerCorrelationID),
			Payload:       msg.Value,
			Reason:        reason,
			Retryable:     true,
		})
	}
	return entries
}

func headerString(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
