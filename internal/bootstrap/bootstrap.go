// Package bootstrap wires the shared dependencies of the workout processor binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/workoutprocessor/internal/config"
	"example.com/workoutprocessor/internal/ingest"
	"example.com/workoutprocessor/internal/logging"
	persistence "example.com/workoutprocessor/internal/persistence/postgres"
	"example.com/workoutprocessor/internal/publisher"
	"example.com/workoutprocessor/internal/telemetry"
	httptransport "example.com/workoutprocessor/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

// Service holds initialized dependencies.
type Service struct {
	Name   string
	Config config.Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool

	shutdownTracing func(context.Context) error
}

// New loads configuration, installs logging, tracing and error reporting, and opens the
// Postgres pool.
func New(ctx context.Context, name string) (*Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stdout, name, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Endpoint:      cfg.OTLPEndpoint,
		ServiceName:   name,
		Environment:   cfg.SentryEnvironment,
		Insecure:      true,
		SamplingRatio: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init: %w", err)
	}

	if err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		ServerName:  name,
	}, logger); err != nil {
		logger.Error("sentry init failed, continuing without error tracking", "error", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	logger.Info("service initialized",
		"kafka_brokers", cfg.KafkaBrokers,
		"period_boundary", cfg.PeriodBoundary.String(),
		"period_timezone", cfg.PeriodLocation.String(),
		"schema_registry", cfg.SchemaRegistryURL != "",
	)
	return &Service{
		Name:            name,
		Config:          cfg,
		Logger:          logger,
		Pool:            pool,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Close releases the pool and flushes telemetry.
func (s *Service) Close() {
	s.Pool.Close()
	telemetry.FlushSentry(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.shutdownTracing(ctx); err != nil {
		s.Logger.Warn("tracer shutdown failed", "error", err)
	}
}

// Publisher builds the outbound workout.created publisher on top of producer.
func (s *Service) Publisher(producer *publisher.KafkaProducer) *publisher.KafkaPublisher {
	opts := []publisher.Option{publisher.WithLogger(s.Logger.With("component", "publisher"))}
	if s.Config.SchemaRegistryURL != "" {
		registry := publisher.NewSchemaRegistryClient(s.Config.SchemaRegistryURL)
		opts = append(opts, publisher.WithSchemaRegistry(registry, s.Config.WorkoutCreatedTopic+"-value"))
	}
	return publisher.NewKafkaPublisher(producer, s.Config.WorkoutCreatedTopic, opts...)
}

// Pipeline builds the ingest pipeline backed by Postgres and pub.
func (s *Service) Pipeline(repo *persistence.Repository, pub ingest.Publisher) *ingest.Pipeline {
	opts := append([]ingest.Option{ingest.WithLogger(s.Logger.With("component", "ingest"))}, s.Config.PipelineOptions()...)
	return ingest.NewPipeline(repo, repo, pub, opts...)
}

// MetricsServer serves promhttp on the configured metrics address.
func (s *Service) MetricsServer() *http.Server {
	return httptransport.NewServer(httptransport.ServerConfig{Address: s.Config.MetricsAddress}, promhttp.Handler())
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
	}
	return nil
}
