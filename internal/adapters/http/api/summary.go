package api

import (
	"context"
	"net/http"

	"github.com/okian/migrisk/internal/domain/summary"
	"github.com/okian/migrisk/pkg/logger"
)

// SummaryDependencies builds per-user summaries.
type SummaryDependencies interface {
	Summary(ctx context.Context, userID string) (summary.Summary, error)
}

// SummaryHandler handles summary requests.
type SummaryHandler struct {
	deps   SummaryDependencies
	logger logger.Logger
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(deps SummaryDependencies, l logger.Logger) *SummaryHandler {
	return &SummaryHandler{deps: deps, logger: l}
}

// HandleGetSummary handles GET /users/{user_id}/summary requests.
func (h *SummaryHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_summary"
	uid, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err), nil)
		return
	}

	s, err := h.deps.Summary(r.Context(), uid)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
