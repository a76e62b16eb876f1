// Package consumer reads inbound workout events from Kafka and hands them to the ingestion pipeline.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"example.com/workoutprocessor/internal/deadletter"
	"example.com/workoutprocessor/internal/ingest"
	"example.com/workoutprocessor/internal/publisher"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// DeadLetterWriter stores messages that will not be retried in-line.
type DeadLetterWriter interface {
	Write(context.Context, deadletter.Entry) error
}

// ErrorReporter forwards failures to an external error tracker.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithDeadLetter routes rejected and exhausted messages to w before committing them.
func WithDeadLetter(w DeadLetterWriter) Option {
	return func(p *Processor) {
		p.deadLetter = w
	}
}

// WithRetry sets how many times a failing message is handled before it is given up on, and
// the delay before the first retry.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Processor) {
		if maxAttempts > 0 {
			p.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			p.retryBaseDelay = baseDelay
		}
	}
}

// WithErrorReporter reports messages that exhausted their retries.
func WithErrorReporter(r ErrorReporter) Option {
	return func(p *Processor) {
		p.reporter = r
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader         Reader
	handler        Handler
	logger         *slog.Logger
	deadLetter     DeadLetterWriter
	reporter       ErrorReporter
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:         reader,
		handler:        handler,
		logger:         slog.Default().With("component", "consumer"),
		maxAttempts:    5,
		retryBaseDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
// It returns early when a message can neither be handled nor dead-lettered, leaving it
// uncommitted for redelivery.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Error("fetch error", "error", err)
			continue
		}

		if err := p.process(ctx, msg); err != nil {
			return err
		}
	}
}

func (p *Processor) process(ctx context.Context, msg kafka.Message) error {
	logger := p.logger.With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)

	event, decodeErr := decodeMessage(msg)
	if decodeErr != nil {
		logger.Warn("decode error", "error", decodeErr)
		recordDecodeError(msg.Topic)
		// Malformed messages are parked, never retried in-line.
		if err := p.giveUp(ctx, msg, Message{Topic: msg.Topic}, decodeErr, false); err != nil {
			return err
		}
		p.commit(ctx, logger, msg)
		return nil
	}
	logger = logger.With("correlation_id", event.CorrelationID, "event_type", event.EventType)

	handleErr := p.handleWithRetry(ctx, logger, event)
	switch {
	case handleErr == nil:
		if p.commit(ctx, logger, msg) {
			recordProcessed(event, outcomeHandled)
		}
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case IsRejected(handleErr):
		logger.Warn("message rejected", "error", handleErr)
		recordProcessed(event, outcomeRejected)
		if err := p.giveUp(ctx, msg, event, handleErr, false); err != nil {
			return err
		}
		p.commit(ctx, logger, msg)
		return nil
	case errors.Is(handleErr, ingest.ErrPublish):
		// Rows are stored; running the message again would dedup them away without publishing.
		logger.Error("workouts stored but events not delivered", "error", handleErr)
		recordProcessed(event, outcomeUndelivered)
		p.report(ctx, msg, event, handleErr)
		if p.deadLetter == nil {
			return fmt.Errorf("consumer: events for offset %d not delivered: %w", msg.Offset, handleErr)
		}
		if err := p.parkUndelivered(ctx, msg, event, handleErr); err != nil {
			return err
		}
		p.commit(ctx, logger, msg)
		return nil
	default:
		logger.Error("handler failed after retries", "error", handleErr, "attempts", p.maxAttempts)
		recordProcessed(event, outcomeExhausted)
		p.report(ctx, msg, event, handleErr)
		if p.deadLetter == nil {
			return fmt.Errorf("consumer: giving up on offset %d: %w", msg.Offset, handleErr)
		}
		if err := p.giveUp(ctx, msg, event, handleErr, true); err != nil {
			return err
		}
		p.commit(ctx, logger, msg)
		return nil
	}
}

// handleWithRetry retries transient handler failures with exponential backoff. Rejections
// and publish failures are returned immediately.
func (p *Processor) handleWithRetry(ctx context.Context, logger *slog.Logger, event Message) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.retryBaseDelay
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.maxAttempts-1)), ctx)
	return backoff.RetryNotify(func() error {
		attempt++
		event.Attempt = attempt
		err := p.handler.Handle(ctx, event)
		if err != nil && (IsRejected(err) || errors.Is(err, ingest.ErrPublish)) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, delay time.Duration) {
		logger.Warn("handler error, retrying", "error", err, "attempt", attempt, "delay", delay.String())
		recordRetry(event)
	})
}

// giveUp dead-letters msg. Without a dead-letter writer the message is only logged.
func (p *Processor) giveUp(ctx context.Context, msg kafka.Message, event Message, cause error, retryable bool) error {
	if p.deadLetter == nil {
		return nil
	}
	entry := deadletter.Entry{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Key:           msg.Key,
		EventType:     event.EventType,
		CorrelationID: event.CorrelationID,
		Payload:       msg.Value,
		Reason:        cause.Error(),
		Retryable:     retryable,
		RetryCount:    event.ReplayAttempt,
	}
	if err := p.deadLetter.Write(ctx, entry); err != nil {
		return fmt.Errorf("consumer: dead-letter offset %d: %w", msg.Offset, err)
	}
	return nil
}

// parkUndelivered dead-letters the outbound records of a failed publish so the DLQ manager
// writes them to their topic later. When the records never got encoded only the inbound
// message is kept, quarantined for inspection.
func (p *Processor) parkUndelivered(ctx context.Context, msg kafka.Message, event Message, cause error) error {
	var derr *publisher.DeliveryError
	if !errors.As(cause, &derr) || len(derr.Messages) == 0 {
		return p.giveUp(ctx, msg, event, cause, false)
	}
	for _, entry := range deadletter.Undelivered(derr.Topic, derr.Messages, cause.Error()) {
		if err := p.deadLetter.Write(ctx, entry); err != nil {
			return fmt.Errorf("consumer: park undelivered events for offset %d: %w", msg.Offset, err)
		}
	}
	return nil
}

func (p *Processor) report(ctx context.Context, msg kafka.Message, event Message, err error) {
	if p.reporter == nil {
		return
	}
	p.reporter.Report(ctx, err, map[string]string{
		"topic":          msg.Topic,
		"correlation_id": event.CorrelationID,
	})
}

func (p *Processor) commit(ctx context.Context, logger *slog.Logger, msg kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		logger.Error("commit error", "error", err)
		return false
	}
	return true
}
