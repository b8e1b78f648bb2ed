package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	service "github.com/okian/migrisk/internal/app"
	"github.com/okian/migrisk/internal/domain/model"
	"github.com/okian/migrisk/pkg/logger"
)

// EventDependencies defines the interface for event dependencies.
type EventDependencies interface {
	Events(ctx context.Context, userID string) ([]model.Event, error)
	Submit(ctx context.Context, sub model.Submission) (service.SubmitStatus, error)
}

// eventRequest mirrors the OpenAPI schema for POST /users/{user_id}/events.
type eventRequest struct {
	EventID      string                     `json:"event_id" validate:"required,dbkey"`
	Timestamp    string                     `json:"timestamp" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Features     map[string]json.RawMessage `json:"features" validate:"required"`
	Measurements map[string]any             `json:"measurements"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type eventsResponse struct {
	UserID      string        `json:"user_id"`
	EventsCount int           `json:"events_count"`
	Events      []model.Event `json:"events"`
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps   EventDependencies
	logger logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, l logger.Logger) *EventsHandler {
	return &EventsHandler{deps: deps, logger: l}
}

// HandleGetEvents handles GET /users/{user_id}/events requests.
func (h *EventsHandler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_events"
	uid, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err), nil)
		return
	}

	events, err := h.deps.Events(r.Context(), uid)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{UserID: uid, EventsCount: len(events), Events: events})
}

// HandlePostEvent handles POST /users/{user_id}/events requests. The record
// is scored and stored asynchronously.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	uid, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err), nil)
		return
	}

	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err), nil)
		return
	}
	if err := getValidator().Struct(req); err != nil {
		msg, fields := describeValidation(err)
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, errors.New(msg)), map[string]any{"fields": fields})
		return
	}
	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err), nil)
		return
	}

	vec, err := featureVector(req.Features)
	if err != nil {
		var invalid *invalidFeaturesError
		if errors.As(err, &invalid) {
			writeInvalidFeatures(w, op, invalid)
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err), nil)
		return
	}

	status, err := h.deps.Submit(r.Context(), model.Submission{
		EventID:      req.EventID,
		UserID:       uid,
		Timestamp:    ts,
		Measurements: req.Measurements,
		Features:     vec,
	})
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}

	if status == service.SubmitDuplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: string(status), Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: string(status), Duplicate: false})
}
