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

	"example.com/workoutprocessor/internal/api"
	"example.com/workoutprocessor/internal/bootstrap"
	"example.com/workoutprocessor/internal/deadletter"
	persistence "example.com/workoutprocessor/internal/persistence/postgres"
	"example.com/workoutprocessor/internal/publisher"
	httptransport "example.com/workoutprocessor/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api stopped with error", "error", err)
		os.Exit(1)
	}
}

// run returns after deferred cleanup so main can set the exit code.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.New(ctx, "workout-processor-api")
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer svc.Close()

	producer := publisher.NewKafkaProducer(svc.Config.KafkaBrokers)
	defer producer.Close()

	repo := persistence.NewRepository(svc.Pool)
	pipeline := svc.Pipeline(repo, svc.Publisher(producer))
	handler := api.NewHandler(pipeline, repo, svc.Logger, api.WithDeadLetter(deadletter.NewPostgresStore(svc.Pool)))

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      svc.Config.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, handler.Routes())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bootstrap.Serve(gctx, server, svc.Logger) })

	if err := g.Wait(); err != nil {
		return err
	}
	svc.Logger.Info("api shutdown complete")
	return nil
}
