package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"
)

func TestSentryReporterTagsEvents(t *testing.T) {
	var captured []*sentry.Event
	client, err := sentry.NewClient(sentry.ClientOptions{
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			captured = append(captured, event)
			return nil
		},
	})
	require.NoError(t, err)

	reporter := NewSentryReporter(sentry.NewHub(client, sentry.NewScope()))
	reporter.Report(context.Background(), errors.New("ingest: find periods: timeout"), map[string]string{
		"correlation_id": "corr-1",
	})
	reporter.Report(context.Background(), nil, nil)

	require.Len(t, captured, 1)
	require.Equal(t, "corr-1", captured[0].Tags["correlation_id"])
	require.NotEmpty(t, captured[0].Exception)
}
