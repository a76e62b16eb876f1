package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/workoutprocessor/internal/deadletter"
	"example.com/workoutprocessor/internal/domain"
	"example.com/workoutprocessor/internal/ingest"
	"example.com/workoutprocessor/internal/persistence/memory"
	"example.com/workoutprocessor/internal/publisher"
	"example.com/workoutprocessor/pkg/events"
)

const runningEvent = `{
	"username": "jane",
	"workouts": [{
		"id": "ext-1",
		"startTime": "2024-01-15T07:30:00Z",
		"endTime": "2024-01-15T08:15:00Z",
		"duration": "45",
		"totalDistance": "5.25",
		"workoutActivityType": "Running",
		"totalEnergyBurned": "320.5"
	}]
}`

type stubPublisher struct {
	published []events.WorkoutCreated
	err       error
}

func (s *stubPublisher) Publish(_ context.Context, evts []events.WorkoutCreated) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, evts...)
	return nil
}

type stubHealth struct{ err error }

func (s stubHealth) Ping(context.Context) error { return s.err }

func newTestHandler(t *testing.T, pub ingest.Publisher, health HealthChecker, opts ...Option) (*Handler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.AddPeriod(domain.Period{
		ID:      10,
		StartAt: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndAt:   time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
		Active:  true,
	})
	store.AddCategory(domain.Category{ID: domain.DefaultOtherCategoryID, Name: "Other", Active: true})
	store.AddCategory(domain.Category{ID: 2, Name: "Running", Active: true})
	store.AddUser("jane", 42)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline := ingest.NewPipeline(store, store, pub, ingest.WithLogger(logger), ingest.WithPublishRetry(2, time.Millisecond))
	return NewHandler(pipeline, health, logger, opts...), store
}

func post(t *testing.T, h *Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/workouts/events", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func TestIngestEventSuccess(t *testing.T) {
	pub := &stubPublisher{}
	h, store := newTestHandler(t, pub, nil)

	rr := post(t, h, runningEvent, map[string]string{HeaderCorrelationID: "corr-42"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "corr-42", rr.Header().Get(HeaderCorrelationID))

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, IngestResponse{CorrelationID: "corr-42", Received: 1, Inserted: 1, Published: 1}, resp)
	require.Len(t, store.Workouts(), 1)
	require.Len(t, pub.published, 1)
	require.Equal(t, "corr-42", pub.published[0].CorrelationID)
}

func TestIngestEventReplayReportsDuplicates(t *testing.T) {
	h, _ := newTestHandler(t, &stubPublisher{}, nil)

	require.Equal(t, http.StatusOK, post(t, h, runningEvent, nil).Code)
	rr := post(t, h, runningEvent, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Duplicates)
	require.Zero(t, resp.Inserted)
	require.NotEmpty(t, resp.CorrelationID, "a correlation id is generated when none is sent")
}

func TestIngestEventValidationFailure(t *testing.T) {
	h, store := newTestHandler(t, &stubPublisher{}, nil)

	rr := post(t, h, `{"username":"jane","workouts":[{"id":""}]}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var resp ValidationErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "validation_failed", resp.Type)
	require.NotEmpty(t, resp.Errors)
	require.Equal(t, 0, resp.Errors[0].Index)
	require.Zero(t, store.Calls["FindExistingExternalIDs"])
}

func TestIngestEventUnknownUser(t *testing.T) {
	h, _ := newTestHandler(t, &stubPublisher{}, nil)

	rr := post(t, h, strings.Replace(runningEvent, `"jane"`, `"ghost"`, 1), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "unknown_user")
}

func TestIngestEventPublishFailure(t *testing.T) {
	h, store := newTestHandler(t, &stubPublisher{err: errors.New("broker down")}, nil)

	rr := post(t, h, runningEvent, nil)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Contains(t, rr.Body.String(), "publish_failed")
	require.Len(t, store.Workouts(), 1, "rows stay stored when publishing fails")
}

type failingProducer struct{}

func (failingProducer) WriteMessages(context.Context, string, ...kafka.Message) error {
	return errors.New("broker down")
}

type stubDeadLetter struct {
	entries []deadletter.Entry
}

func (d *stubDeadLetter) Write(_ context.Context, entry deadletter.Entry) error {
	d.entries = append(d.entries, entry)
	return nil
}

func TestIngestEventParksUndeliveredEvents(t *testing.T) {
	dlq := &stubDeadLetter{}
	pub := publisher.NewKafkaPublisher(failingProducer{}, "workout_created")
	h, store := newTestHandler(t, pub, nil, WithDeadLetter(dlq))

	rr := post(t, h, runningEvent, map[string]string{HeaderCorrelationID: "corr-7"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Inserted)
	require.Equal(t, 1, resp.Parked)
	require.Zero(t, resp.Published)
	require.Len(t, store.Workouts(), 1)

	require.Len(t, dlq.entries, 1)
	require.Equal(t, "workout_created", dlq.entries[0].Topic)
	require.Equal(t, "corr-7", dlq.entries[0].CorrelationID)
	require.True(t, dlq.entries[0].Retryable)
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t, &stubPublisher{}, stubHealth{})
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())

	h, _ = newTestHandler(t, &stubPublisher{}, stubHealth{err: errors.New("connection refused")})
	rr = httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestUnknownMethodIsRejected(t *testing.T) {
	h, _ := newTestHandler(t, &stubPublisher{}, nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/workouts/events", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
