package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewWritesCollectorKeysAndComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "workout-processor", slog.LevelInfo).With("component", "consumer")

	logger.Debug("hidden")
	logger.Info("workout event received", "correlation_id", "corr-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "[consumer] workout event received", entry["message"])
	require.Equal(t, "INFO", entry["severity"])
	require.Equal(t, "workout-processor", entry["service"])
	require.Equal(t, "corr-1", entry["correlation_id"])
	require.NotContains(t, entry, "msg")
}
