package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"example.com/workoutprocessor/internal/bootstrap"
	"example.com/workoutprocessor/internal/consumer"
	"example.com/workoutprocessor/internal/deadletter"
	persistence "example.com/workoutprocessor/internal/persistence/postgres"
	"example.com/workoutprocessor/internal/publisher"
	"example.com/workoutprocessor/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
}

// run returns after deferred cleanup so main can set the exit code.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.New(ctx, "workout-processor-consumer")
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer svc.Close()
	cfg := svc.Config

	producer := publisher.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	repo := persistence.NewRepository(svc.Pool)
	pipeline := svc.Pipeline(repo, svc.Publisher(producer))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.WorkoutProcessorTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	opts := []consumer.Option{
		consumer.WithLogger(svc.Logger.With("component", "consumer")),
		consumer.WithDeadLetter(deadletter.NewPostgresStore(svc.Pool)),
		consumer.WithRetry(cfg.ConsumerMaxAttempts, cfg.ConsumerRetryBaseDelay),
	}
	if cfg.SentryDSN != "" {
		opts = append(opts, consumer.WithErrorReporter(telemetry.NewSentryReporter(nil)))
	}
	proc := consumer.NewProcessor(reader, consumer.NewWorkoutHandler(pipeline, svc.Logger), opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bootstrap.Serve(gctx, svc.MetricsServer(), svc.Logger) })
	g.Go(func() error {
		svc.Logger.Info("consumer started", "topic", cfg.WorkoutProcessorTopic, "group", cfg.ConsumerGroupID)
		if err := proc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	svc.Logger.Info("consumer shutdown complete")
	return nil
}
