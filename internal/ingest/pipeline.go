// Package ingest turns inbound workout events into stored workouts and workout.created events.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"example.com/workoutprocessor/internal/domain"
	"example.com/workoutprocessor/pkg/events"
)

var tracer = otel.Tracer("example.com/workoutprocessor/internal/ingest")

// Publisher delivers workout.created events downstream.
type Publisher interface {
	Publish(ctx context.Context, evts []events.WorkoutCreated) error
}

// Invocation is one unit of work: a validated batch and the correlation token threaded through it.
type Invocation struct {
	CorrelationID string
	Batch         domain.Batch
}

// Result summarises what an invocation did.
type Result struct {
	Received          int `json:"received"`
	Duplicates        int `json:"duplicates"`
	SkippedNoPeriod   int `json:"skippedNoPeriod"`
	SkippedNoCategory int `json:"skippedNoCategory"`
	Inserted          int `json:"inserted"`
	Published         int `json:"published"`
}

// Option configures optional behaviour for the Pipeline.
type Option func(*Pipeline)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithBoundaryPolicy sets how period start and end dates are matched.
func WithBoundaryPolicy(policy BoundaryPolicy) Option {
	return func(p *Pipeline) {
		p.boundary = policy
	}
}

// WithLocation sets the time zone used to turn workout start times into calendar dates.
func WithLocation(loc *time.Location) Option {
	return func(p *Pipeline) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithSentinelCategory sets the id of the fallback "other" workout type.
func WithSentinelCategory(id int64) Option {
	return func(p *Pipeline) {
		p.sentinelID = id
	}
}

// WithPublishRetry sets how many times the publish step is attempted before ErrPublish is
// returned, and the first delay between attempts. Only the publish step is repeated.
func WithPublishRetry(attempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) {
		if attempts > 0 {
			p.publishAttempts = attempts
		}
		if baseDelay > 0 {
			p.publishBaseDelay = baseDelay
		}
	}
}

// Pipeline runs dedup, period and category resolution, insert and publish for one event at a time.
type Pipeline struct {
	store      domain.Store
	users      domain.UserDirectory
	publisher  Publisher
	logger     *slog.Logger
	boundary   BoundaryPolicy
	location   *time.Location
	sentinelID int64

	publishAttempts  int
	publishBaseDelay time.Duration
}

// NewPipeline constructs a Pipeline. users may be nil when every event carries a user id.
func NewPipeline(store domain.Store, users domain.UserDirectory, publisher Publisher, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		users:      users,
		publisher:  publisher,
		logger:     slog.Default(),
		boundary:   BoundaryExclusive,
		location:   time.UTC,
		sentinelID: domain.DefaultOtherCategoryID,

		publishAttempts:  3,
		publishBaseDelay: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessRaw validates payload and processes it.
func (p *Pipeline) ProcessRaw(ctx context.Context, correlationID string, payload []byte) (Result, error) {
	batch, err := ParseEvent(payload)
	if err != nil {
		recordInvocation(outcomeRejected, 0)
		return Result{}, err
	}
	return p.Process(ctx, Invocation{CorrelationID: correlationID, Batch: batch})
}

// Process runs a validated invocation to completion. All reads happen before the single insert.
func (p *Pipeline) Process(ctx context.Context, inv Invocation) (res Result, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "ingest.process", trace.WithAttributes(
		attribute.String("correlation_id", inv.CorrelationID),
		attribute.Int("workouts", len(inv.Batch.Workouts)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			recordInvocation(outcomeFor(err), time.Since(start))
		} else {
			recordInvocation(outcomeSucceeded, time.Since(start))
		}
		span.End()
	}()

	logger := p.logger.With("correlation_id", inv.CorrelationID)
	if inv.Batch.Username != "" {
		logger = logger.With("username", inv.Batch.Username)
	}

	workouts := inv.Batch.Workouts
	res.Received = len(workouts)
	recordReceived(len(workouts))
	logger.Info("workout event received", "workouts", len(workouts), "single", inv.Batch.Single)

	if len(workouts) == 0 {
		logger.Info("received an empty workouts array, nothing will be done")
		return res, nil
	}

	fresh, duplicates, err := p.filterExisting(ctx, logger, workouts)
	if err != nil {
		return res, err
	}
	res.Duplicates = duplicates
	recordDuplicates(duplicates)
	if len(fresh) == 0 {
		logger.Info("all workouts sent are already created")
		return res, nil
	}

	owners, err := p.resolveOwners(ctx, inv.Batch, fresh)
	if err != nil {
		return res, err
	}

	periods, err := p.resolvePeriods(ctx, logger, fresh)
	if err != nil {
		return res, err
	}
	categories, err := p.resolveCategories(ctx, logger, fresh)
	if err != nil {
		return res, err
	}
	// A workout counts once, under the first stage that could not resolve it.
	for i := range fresh {
		if periods[i] == nil {
			res.SkippedNoPeriod++
			recordSkipped(skipNoPeriod)
		} else if categories[i] == nil {
			res.SkippedNoCategory++
			recordSkipped(skipNoCategory)
		}
	}

	records := assemble(fresh, owners, periods, categories, inv.CorrelationID)
	if len(records) == 0 {
		logger.Warn("no workout will be created, every workout failed period or workout type resolution")
		return res, nil
	}

	stored, err := p.insert(ctx, records)
	if err != nil {
		return res, err
	}
	res.Inserted = len(stored)
	recordInserted(len(stored))
	logger.Info("workouts created", "count", len(stored))

	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		if c != nil {
			names[c.category.ID] = c.category.Name
		}
	}
	evts := make([]events.WorkoutCreated, 0, len(stored))
	for _, row := range stored {
		evts = append(evts, toEvent(row, names))
	}

	if err := p.publish(ctx, logger, evts); err != nil {
		logger.Error("workouts stored but events not published", "count", len(evts), "error", err)
		return res, err
	}
	res.Published = len(evts)
	recordPublished(len(evts))
	logger.Info("all workouts created and published", "count", len(evts))
	return res, nil
}

func (p *Pipeline) insert(ctx context.Context, records []domain.NewWorkout) ([]domain.StoredWorkout, error) {
	ctx, span := tracer.Start(ctx, "ingest.insert")
	defer span.End()

	stored, err := p.store.InsertWorkouts(ctx, records)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ingest: insert workouts: %w", err)
	}
	return stored, nil
}

// publish retries the publish step alone with the events already built, so stored rows are
// never re-inserted to get their events out.
func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, evts []events.WorkoutCreated) error {
	ctx, span := tracer.Start(ctx, "ingest.publish")
	defer span.End()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.publishBaseDelay
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.publishAttempts-1)), ctx)
	err := backoff.RetryNotify(func() error {
		attempt++
		return p.publisher.Publish(ctx, evts)
	}, policy, func(err error, delay time.Duration) {
		logger.Warn("publish failed, retrying", "error", err, "attempt", attempt, "delay", delay.String())
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

func toEvent(row domain.StoredWorkout, categoryNames map[int64]string) events.WorkoutCreated {
	return events.WorkoutCreated{
		WorkoutID:       row.ID,
		ExternalID:      row.ExternalID,
		StartedAt:       row.StartedAt.UTC(),
		EndedAt:         row.EndedAt.UTC(),
		Duration:        row.Duration,
		Distance:        row.Distance,
		WorkoutTypeID:   row.CategoryID,
		WorkoutTypeName: categoryNames[row.CategoryID],
		WorkoutName:     row.WorkoutName,
		EnergyBurned:    row.EnergyBurned,
		UserID:          row.UserID,
		PeriodID:        row.PeriodID,
		CorrelationID:   row.Metadata.CorrelationID,
	}
}
