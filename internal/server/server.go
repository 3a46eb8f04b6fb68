// Package server exposes the medsift pipeline over HTTP and WebSocket.
//
// Routes are grouped by concern: live transcription sessions, stateless
// analysis endpoints, clinician feedback and stored visits. Health probes and
// the Prometheus scrape endpoint are mounted alongside. Errors are returned
// as {"error": "..."} with a status derived from the error's sentinel.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/medsift/internal/clinical"
	"github.com/MrWong99/medsift/internal/extract"
	"github.com/MrWong99/medsift/internal/feedback"
	"github.com/MrWong99/medsift/internal/health"
	"github.com/MrWong99/medsift/internal/literature"
	"github.com/MrWong99/medsift/internal/observe"
	"github.com/MrWong99/medsift/internal/risk"
	"github.com/MrWong99/medsift/internal/session"
	"github.com/MrWong99/medsift/pkg/provider/phi"
	"github.com/MrWong99/medsift/pkg/provider/trials"
	"github.com/MrWong99/medsift/pkg/store"
)

// DefaultRequestTimeout bounds every non-streaming request.
const DefaultRequestTimeout = 2 * time.Minute

// Extractor turns a transcript into structured clinical records.
// [extract.Extractor] implements it.
type Extractor interface {
	PatientSummary(ctx context.Context, transcript string) (clinical.PatientSummary, error)
	ClinicianNote(ctx context.Context, transcript string) (clinical.ClinicianNote, error)
}

var _ Extractor = (*extract.Extractor)(nil)

// Deps are the collaborators served by a [Server]. Sessions, Redactor, Risk,
// Ranker, Feedback and Visits are required. Extractor may be nil, which
// disables /api/analyze, and Trials may be nil, which disables /api/trials.
type Deps struct {
	Sessions  *session.Manager
	Archive   *session.VisitGuard
	Visits    store.VisitStore
	Redactor  phi.Redactor
	Extractor Extractor
	Risk      *risk.Engine
	Ranker    *literature.Ranker
	Feedback  *feedback.Service
	Trials    trials.Finder

	// Health serves /healthz and /readyz when set.
	Health *health.Handler

	// Metrics records HTTP request durations. Nil disables instrumentation.
	Metrics *observe.Metrics

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler

	// RequestTimeout overrides [DefaultRequestTimeout].
	RequestTimeout time.Duration
}

// Server routes HTTP requests to the pipeline.
type Server struct {
	deps    Deps
	archive *session.VisitGuard
	handler http.Handler
}

// New builds the router. It panics when a required dependency is missing.
func New(d Deps) *Server {
	if d.Sessions == nil || d.Redactor == nil || d.Risk == nil || d.Ranker == nil || d.Feedback == nil || d.Visits == nil {
		panic("server: missing required dependency")
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{deps: d, archive: d.Archive}
	if s.archive == nil {
		s.archive = session.NewVisitGuard(d.Visits)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.deps.Metrics != nil {
		r.Use(observe.Middleware(s.deps.Metrics))
	}
	r.Use(middleware.Recoverer)

	if s.deps.Health != nil {
		s.deps.Health.Register(r)
	}
	if s.deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.MetricsHandler)
	}

	// Long-lived; must not be wrapped by Timeout or Compress.
	r.Get("/ws/live/{id}", s.handleLiveSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.deps.RequestTimeout))
		r.Use(middleware.Compress(5, "application/json"))

		r.Route("/api/live/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/{id}", s.handleSessionInfo)
			r.Post("/{id}/chunks", s.handleSubmitChunk)
			r.Post("/{id}/finalize", s.handleFinalize)
			r.Delete("/{id}", s.handleCleanup)
		})

		r.Post("/api/grounding", s.handleGrounding)
		r.Post("/api/risk", s.handleRisk)
		r.Post("/api/literature", s.handleLiterature)
		r.Post("/api/analyze", s.handleAnalyze)

		r.Get("/api/grounding/{id}", s.handleVisitGrounding)
		r.Get("/api/literature/{id}", s.handleVisitLiterature)
		r.Get("/api/trials/{id}", s.handleVisitTrials)

		r.Post("/api/feedback", s.handleSubmitFeedback)
		r.Get("/api/feedback/analytics", s.handleAnalytics)
		r.Get("/api/feedback/keywords", s.handleKeywords)

		r.Route("/api/visits", func(r chi.Router) {
			r.Get("/", s.handleListVisits)
			r.Get("/{id}", s.handleGetVisit)
			r.Delete("/{id}", s.handleDeleteVisit)
			r.Put("/{id}/clinician-note", s.handlePutClinicianNote)
			r.Put("/{id}/patient-summary", s.handlePutPatientSummary)
			r.Get("/{id}/feedback", s.handleVisitFeedback)
		})
	})
	return r
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorBody{Error: msg})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, extract.ErrEmptyTranscript),
		errors.Is(err, feedback.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, session.ErrChunkTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, extract.ErrUnavailable), errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

var (
	errBadRequest      = errors.New("bad request")
	errSessionNotFound = errors.New("session not found")
	errUnavailable     = errors.New("service unavailable")
)

// fail logs err at a level matching its status and writes the response.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Warn("server: request failed", "op", op, "status", status, "err", err)
	} else {
		log.Debug("server: request rejected", "op", op, "status", status, "err", err)
	}
	respondError(w, status, err.Error())
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}
