package consumer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"example.com/workoutprocessor/internal/deadletter"
	"example.com/workoutprocessor/internal/publisher"
)

const (
	headerEventType     = "event_type"
	headerCorrelationID = "correlation_id"
	headerContentType   = "content-type"

	// Binary-mode CloudEvents attributes travel as ce_ prefixed headers.
	headerCloudEventID   = "ce_id"
	headerCloudEventType = "ce_type"

	cloudEventsJSON = "application/cloudevents+json"
)

// Message is the decoded representation of an inbound Kafka record.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	Key           []byte
	EventType     string
	CorrelationID string
	// SchemaID is set when the record carried Schema Registry framing.
	SchemaID int
	Payload  json.RawMessage
	// ReplayOf is the dead-letter id when the record was replayed by the DLQ manager.
	ReplayOf string
	// ReplayAttempt is the DLQ replay number of the record, 0 for first deliveries.
	ReplayAttempt int
	// Attempt counts deliveries to the handler within this process, starting at 1.
	Attempt int
}

// decodeMessage unwraps the record value into the workout payload. Raw JSON, Schema Registry
// framed JSON and CloudEvents in structured or binary mode are accepted.
func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) == 0 {
		return Message{}, errors.New("empty payload")
	}

	out := Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Key:       msg.Key,
	}
	if v, ok := headerValue(msg, headerEventType); ok {
		out.EventType = string(v)
	}
	if v, ok := headerValue(msg, headerCorrelationID); ok {
		out.CorrelationID = string(v)
	}
	if v, ok := headerValue(msg, deadletter.HeaderReplayOf); ok {
		out.ReplayOf = string(v)
	}
	if v, ok := headerValue(msg, deadletter.HeaderReplayAttempt); ok {
		if n, err := strconv.Atoi(string(v)); err == nil && n > 0 {
			out.ReplayAttempt = n
		}
	}

	value := msg.Value
	if schemaID, payload, err := publisher.DecodeWireFormat(value); err == nil {
		out.SchemaID = schemaID
		value = payload
	}

	switch {
	case isStructuredCloudEvent(msg, value):
		evt := event.New()
		if err := json.Unmarshal(value, &evt); err != nil {
			return Message{}, fmt.Errorf("decode cloudevent: %w", err)
		}
		if err := evt.Validate(); err != nil {
			return Message{}, fmt.Errorf("invalid cloudevent: %w", err)
		}
		value = evt.Data()
		if out.EventType == "" {
			out.EventType = evt.Type()
		}
		if out.CorrelationID == "" {
			out.CorrelationID = cloudEventCorrelation(evt)
		}
	default:
		if v, ok := headerValue(msg, headerCloudEventType); ok && out.EventType == "" {
			out.EventType = string(v)
		}
		if v, ok := headerValue(msg, headerCloudEventID); ok && out.CorrelationID == "" {
			out.CorrelationID = string(v)
		}
	}

	if len(value) == 0 || !json.Valid(value) {
		return Message{}, errors.New("payload is not valid JSON")
	}
	if out.CorrelationID == "" {
		out.CorrelationID = uuid.NewString()
	}
	out.Payload = json.RawMessage(append([]byte(nil), value...))
	return out, nil
}

func isStructuredCloudEvent(msg kafka.Message, value []byte) bool {
	if v, ok := headerValue(msg, headerContentType); ok {
		return strings.HasPrefix(strings.ToLower(string(v)), cloudEventsJSON)
	}
	if !bytes.Contains(value, []byte(`"specversion"`)) {
		return false
	}
	var envelope struct {
		SpecVersion string `json:"specversion"`
	}
	return json.Unmarshal(value, &envelope) == nil && envelope.SpecVersion != ""
}

// cloudEventCorrelation prefers an explicit correlationid extension over the event id.
func cloudEventCorrelation(evt event.Event) string {
	if v, ok := evt.Extensions()["correlationid"].(string); ok && v != "" {
		return v
	}
	return evt.ID()
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
