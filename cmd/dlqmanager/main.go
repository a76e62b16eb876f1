package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/workoutprocessor/internal/bootstrap"
	"example.com/workoutprocessor/internal/deadletter"
	"example.com/workoutprocessor/internal/publisher"
)

func main() {
	if err := run(); err != nil {
		slog.Error("dlq manager stopped with error", "error", err)
		os.Exit(1)
	}
}

// run returns after deferred cleanup so main can set the exit code.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.New(ctx, "workout-processor-dlqmanager")
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer svc.Close()
	cfg := svc.Config

	producer := publisher.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	store := deadletter.NewPostgresStore(svc.Pool)
	manager := deadletter.NewManager(store, producer, cfg.DLQMaxRetries, cfg.DLQBaseDelay, svc.Logger.With("component", "dlq"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bootstrap.Serve(gctx, svc.MetricsServer(), svc.Logger) })
	g.Go(func() error {
		ticker := time.NewTicker(cfg.DLQPollInterval)
		defer ticker.Stop()

		svc.Logger.Info("dlq manager started", "interval", cfg.DLQPollInterval, "max_retries", cfg.DLQMaxRetries)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				processed, err := manager.RunOnce(gctx, cfg.DLQBatchSize)
				if err != nil {
					svc.Logger.Error("dlq manager iteration failed", "error", err)
				} else if processed > 0 {
					svc.Logger.Info("dlq manager processed entries", "count", processed)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	svc.Logger.Info("dlq manager shutdown complete")
	return nil
}
