// Package api exposes HTTP handlers for the workout processor.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/workoutprocessor/internal/deadletter"
	"example.com/workoutprocessor/internal/domain"
	"example.com/workoutprocessor/internal/ingest"
	"example.com/workoutprocessor/internal/publisher"
)

// HeaderCorrelationID carries the caller's correlation id. A fresh one is generated when absent.
const HeaderCorrelationID = "X-Correlation-ID"

const maxBodyBytes = 1 << 20

// Ingester runs a raw workout event through the pipeline.
type Ingester interface {
	ProcessRaw(ctx context.Context, correlationID string, payload []byte) (ingest.Result, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// DeadLetterWriter parks records that could not be delivered.
type DeadLetterWriter interface {
	Write(context.Context, deadletter.Entry) error
}

// Handler coordinates HTTP requests with the ingest pipeline.
type Handler struct {
	ingester   Ingester
	health     HealthChecker
	deadLetter DeadLetterWriter
	logger     *slog.Logger
}

// Option configures optional behaviour for the Handler.
type Option func(*Handler)

// WithDeadLetter parks workout.created records that could not be published so the DLQ
// manager delivers them later.
func WithDeadLetter(w DeadLetterWriter) Option {
	return func(h *Handler) {
		h.deadLetter = w
	}
}

// NewHandler builds a Handler. health may be nil.
func NewHandler(ingester Ingester, health HealthChecker, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{ingester: ingester, health: health, logger: logger.With("component", "api")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the chi router serving every endpoint.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Post("/v1/workouts/events", h.ingestEvent)
	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "unable to read body")
		return
	}

	correlationID := r.Header.Get(HeaderCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	w.Header().Set(HeaderCorrelationID, correlationID)

	res, err := h.ingester.ProcessRaw(r.Context(), correlationID, body)
	if err != nil {
		h.writeIngestError(w, r, correlationID, res, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(correlationID, res))
}

func (h *Handler) writeIngestError(w http.ResponseWriter, r *http.Request, correlationID string, res ingest.Result, err error) {
	var verr *ingest.ValidationError
	switch {
	case errors.As(err, &verr):
		resp := ValidationErrorResponse{
			Type:   "validation_failed",
			Detail: "workout event rejected",
			Errors: make([]FieldErrorView, 0, len(verr.Errors)),
		}
		for _, fe := range verr.Errors {
			resp.Errors = append(resp.Errors, FieldErrorView{Index: fe.Index, Field: fe.Field, Reason: fe.Reason})
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusUnprocessableEntity, "unknown_user", err.Error())
	case errors.Is(err, ingest.ErrPublish):
		h.logger.Error("workouts stored but not published", "correlation_id", correlationID, "inserted", res.Inserted, "error", err)
		parked, parkErr := h.parkUndelivered(r.Context(), err)
		if parkErr != nil || parked == 0 {
			if parkErr != nil {
				h.logger.Error("parking undelivered events failed", "correlation_id", correlationID, "error", parkErr)
			}
			writeError(w, http.StatusBadGateway, "publish_failed", err.Error())
			return
		}
		resp := toResponse(correlationID, res)
		resp.Parked = parked
		writeJSON(w, http.StatusAccepted, resp)
	default:
		h.logger.Error("workout event failed", "correlation_id", correlationID, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// parkUndelivered dead-letters the records carried by a publish failure and returns how many
// were parked.
func (h *Handler) parkUndelivered(ctx context.Context, err error) (int, error) {
	var derr *publisher.DeliveryError
	if h.deadLetter == nil || !errors.As(err, &derr) {
		return 0, nil
	}
	entries := deadletter.Undelivered(derr.Topic, derr.Messages, err.Error())
	for _, entry := range entries {
		if werr := h.deadLetter.Write(ctx, entry); werr != nil {
			return 0, werr
		}
	}
	return len(entries), nil
}

// IngestResponse describes the outcome of one ingested event. Parked counts events stored for
// later delivery after publishing failed.
type IngestResponse struct {
	CorrelationID string       `json:"correlationId"`
	Received      int          `json:"received"`
	Duplicates    int          `json:"duplicates"`
	Inserted      int          `json:"inserted"`
	Published     int          `json:"published"`
	Parked        int          `json:"parked,omitempty"`
	Skipped       SkippedCount `json:"skipped"`
}

// SkippedCount breaks skipped workouts down by reason.
type SkippedCount struct {
	NoPeriod   int `json:"noPeriod"`
	NoCategory int `json:"noCategory"`
}

// ValidationErrorResponse lists every field diagnostic of a rejected event.
type ValidationErrorResponse struct {
	Type   string           `json:"type"`
	Detail string           `json:"detail"`
	Errors []FieldErrorView `json:"errors"`
}

// FieldErrorView is one field diagnostic. Index is -1 for event-level fields.
type FieldErrorView struct {
	Index  int    `json:"index"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func toResponse(correlationID string, res ingest.Result) IngestResponse {
	return IngestResponse{
		CorrelationID: correlationID,
		Received:      res.Received,
		Duplicates:    res.Duplicates,
		Inserted:      res.Inserted,
		Published:     res.Published,
		Skipped: SkippedCount{
			NoPeriod:   res.SkippedNoPeriod,
			NoCategory: res.SkippedNoCategory,
		},
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
