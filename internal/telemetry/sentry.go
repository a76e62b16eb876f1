package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig configures error reporting.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	ServerName  string
}

// InitSentry initialises the global Sentry client. An empty DSN leaves reporting disabled.
func InitSentry(cfg SentryConfig, logger *slog.Logger) error {
	if cfg.DSN == "" {
		logger.Warn("sentry DSN not configured, error tracking disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		ServerName:  cfg.ServerName,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			if event.Request != nil && event.Request.Headers != nil {
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
			}
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	logger.Info("sentry initialized", "environment", cfg.Environment)
	return nil
}

// FlushSentry waits up to timeout for buffered events to be sent.
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// SentryReporter sends errors to Sentry with per-error tags.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter reports through hub, or the current global hub when hub is nil.
func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryReporter{hub: hub}
}

// Report captures err with tags applied to a scope of its own.
func (r *SentryReporter) Report(_ context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}
