// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/okian/migrisk/internal/app"
	"github.com/okian/migrisk/internal/adapters/store"
	"github.com/okian/migrisk/internal/domain/ensemble"
	"github.com/okian/migrisk/internal/domain/features"
	"github.com/okian/migrisk/internal/domain/model"
	"github.com/okian/migrisk/internal/domain/summary"
	"github.com/okian/migrisk/pkg/logger"
	"github.com/okian/migrisk/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Predict(ctx context.Context, v features.Vector) (ensemble.Assessment, error)
	Submit(ctx context.Context, sub model.Submission) (service.SubmitStatus, error)
	Events(ctx context.Context, userID string) ([]model.Event, error)
	Summary(ctx context.Context, userID string) (summary.Summary, error)
	Profile(ctx context.Context, userID string) (model.Profile, error)
	UpsertProfile(ctx context.Context, userID string, p model.Profile) (model.Profile, error)
	GetStats() service.Stats
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps       Dependencies
	middleware MiddlewareConfig
	logger     logger.Logger

	healthHandler  *HealthHandler
	predictHandler *PredictHandler
	eventsHandler  *EventsHandler
	summaryHandler *SummaryHandler
	profileHandler *ProfileHandler
	statsHandler   *StatsHandler
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMiddlewareConfig replaces the CORS and rate limit settings.
func WithMiddlewareConfig(c MiddlewareConfig) Option {
	return func(s *Server) { s.middleware = c }
}

// WithLogger sets the logger used for request and error logs.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:       deps,
		middleware: DefaultMiddlewareConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	s.healthHandler = NewHealthHandler()
	s.predictHandler = NewPredictHandler(deps, s.logger)
	s.eventsHandler = NewEventsHandler(deps, s.logger)
	s.summaryHandler = NewSummaryHandler(deps, s.logger)
	s.profileHandler = NewProfileHandler(deps, s.logger)
	s.statsHandler = NewStatsHandler(deps)
	return s
}

// Register attaches all HTTP routes to r. Extra mounts (API docs) are added
// by the caller.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestID)
	r.Use(s.middleware.CORS())

	r.Get("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.middleware.RateLimit())
		r.Use(chimiddleware.Timeout(requestTimeout))

		r.Post("/predict", MetricsMiddleware(s.predictHandler.HandlePredict, "predict"))
		r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

		r.Route("/users/{"+userIDParam+"}", func(r chi.Router) {
			r.Get("/events", MetricsMiddleware(s.eventsHandler.HandleGetEvents, "user_events"))
			r.Post("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "user_events"))
			r.Get("/summary", MetricsMiddleware(s.summaryHandler.HandleGetSummary, "user_summary"))
			r.Get("/profile", MetricsMiddleware(s.profileHandler.HandleGetProfile, "user_profile"))
			r.Put("/profile", MetricsMiddleware(s.profileHandler.HandlePutProfile, "user_profile"))
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, ErrNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, ErrMethodNotAllowed, nil)
	})
}

// Router returns a chi router with every API route registered.
func (s *Server) Router(ctx context.Context) chi.Router {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

// Error codes carried in errorResponse.Code.
const (
	codeBadRequest       = "bad_request"
	codeMissingFeatures  = "missing_features"
	codeInvalidFeatures  = "invalid_features"
	codeModelFault       = "model_fault"
	codeStoreUnavailable = "store_unavailable"
	codeBackpressure     = "backpressure"
	codeNotFound         = "not_found"
	codeMethodNotAllowed = "method_not_allowed"
	codeUnavailable      = "service_unavailable"
	codeInternal         = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error, details any) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Details: details})
}

// writeFailure maps a service error onto its HTTP status and code.
func writeFailure(ctx context.Context, w http.ResponseWriter, log logger.Logger, op string, err error) {
	var (
		missing *ensemble.MissingFeaturesError
		fault   *ensemble.ModelFaultError
	)
	switch {
	case errors.As(err, &missing):
		writeError(w, http.StatusBadRequest, codeMissingFeatures, err, map[string]any{"missing": missing.Names})
	case errors.Is(err, service.ErrInvalidSubmission):
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err), nil)
	case errors.Is(err, service.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err, nil)
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, codeBackpressure, NewKind(op, ErrBackpressure), nil)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, err, nil)
	case errors.As(err, &fault):
		log.Error(ctx, "model fault", logger.String("op", op), logger.String("model", fault.Model), logger.Error(err))
		writeError(w, http.StatusInternalServerError, codeModelFault, err, map[string]any{"model": fault.Model})
	case errors.Is(err, store.ErrUnavailable):
		log.Warn(ctx, "event store unavailable", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, NewKind(op, store.ErrUnavailable), nil)
	default:
		log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, NewKind(op, ErrInternal), nil)
	}
}

// requestTimeout bounds store-backed handlers.
const requestTimeout = 15 * time.Second
