// Package publisher delivers workout.created events to Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/workoutprocessor/internal/observability"
	"example.com/workoutprocessor/pkg/events"
)

// Header keys set on every outbound record.
const (
	HeaderEventType     = "event_type"
	HeaderCorrelationID = "correlation_id"
	HeaderContentType   = "content-type"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Option configures optional behaviour for the KafkaPublisher.
type Option func(*KafkaPublisher)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

// WithSchemaRegistry frames every record with the schema id registered under subject.
func WithSchemaRegistry(registry schemaRegistrar, subject string) Option {
	return func(p *KafkaPublisher) {
		p.registry = registry
		p.subject = subject
	}
}

// KafkaPublisher writes workout.created events to a single topic, keyed by user id.
type KafkaPublisher struct {
	producer      messageWriter
	registry      schemaRegistrar
	topic         string
	subject       string
	logger        *slog.Logger
	schemaIDCache sync.Map
	now           func() time.Time
}

// NewKafkaPublisher constructs a KafkaPublisher. Records are plain JSON unless a schema
// registry is configured.
func NewKafkaPublisher(producer messageWriter, topic string, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		subject:  topic + "-value",
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes evts in a single WriteMessages call.
func (p *KafkaPublisher) Publish(ctx context.Context, evts []events.WorkoutCreated) error {
	if len(evts) == 0 {
		return nil
	}
	start := time.Now()

	schemaID, err := p.schemaID(ctx, events.WorkoutCreatedType)
	if err != nil {
		recordPublish(p.topic, outcomeFailed, len(evts), time.Since(start))
		return err
	}

	msgs := make([]kafka.Message, 0, len(evts))
	for _, evt := range evts {
		payload, err := json.Marshal(evt)
		if err != nil {
			recordPublish(p.topic, outcomeFailed, len(evts), time.Since(start))
			return fmt.Errorf("publisher: encode workout %d: %w", evt.WorkoutID, err)
		}
		if schemaID > 0 {
			payload = EncodeWireFormat(schemaID, payload)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatInt(evt.UserID, 10)),
			Value: payload,
			Time:  p.now(),
			Headers: []kafka.Header{
				{Key: HeaderEventType, Value: []byte(events.WorkoutCreatedType)},
				{Key: HeaderCorrelationID, Value: []byte(evt.CorrelationID)},
				{Key: HeaderContentType, Value: []byte("application/json")},
			},
		})
	}

	if err := p.producer.WriteMessages(ctx, p.topic, msgs...); err != nil {
		recordPublish(p.topic, outcomeFailed, len(evts), time.Since(start))
		return &DeliveryError{Topic: p.topic, Messages: undelivered(msgs, err), Err: err}
	}
	recordPublish(p.topic, outcomeDelivered, len(evts), time.Since(start))
	observability.RecordEventsPublished(p.now())
	p.logger.Debug("workout events written", "topic", p.topic, "count", len(msgs), "schema_id", schemaID)
	return nil
}

// DeliveryError reports records the producer did not acknowledge. Messages are ready to be
// written again as they are.
type DeliveryError struct {
	Topic    string
	Messages []kafka.Message
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("publisher: write %d records to %s: %v", len(e.Messages), e.Topic, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// undelivered narrows msgs to the failed ones when the producer reports per-message errors.
func undelivered(msgs []kafka.Message, err error) []kafka.Message {
	var writeErrs kafka.WriteErrors
	if !errors.As(err, &writeErrs) || len(writeErrs) != len(msgs) {
		return msgs
	}
	out := make([]kafka.Message, 0, writeErrs.Count())
	for i, werr := range writeErrs {
		if werr != nil {
			out = append(out, msgs[i])
		}
	}
	return out
}

// schemaID returns 0 when no registry is configured.
func (p *KafkaPublisher) schemaID(ctx context.Context, eventType string) (int, error) {
	if p.registry == nil {
		return 0, nil
	}
	schema, ok := schemaCatalog[eventType]
	if !ok {
		return 0, fmt.Errorf("publisher: no schema for event_type=%s", eventType)
	}

	cacheKey := p.subject + "::" + eventType
	if id, ok := p.schemaIDCache.Load(cacheKey); ok {
		return id.(int), nil
	}
	id, err := p.registry.EnsureSchema(ctx, p.subject, schema)
	if err != nil {
		return 0, fmt.Errorf("publisher: ensure schema %s: %w", p.subject, err)
	}
	p.schemaIDCache.Store(cacheKey, id)
	return id, nil
}
