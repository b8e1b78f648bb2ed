package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/migrisk/internal/domain/model"
	"github.com/okian/migrisk/pkg/logger"
)

// ProfileDependencies reads and writes user profiles.
type ProfileDependencies interface {
	Profile(ctx context.Context, userID string) (model.Profile, error)
	UpsertProfile(ctx context.Context, userID string, p model.Profile) (model.Profile, error)
}

// profileRule requires a non-empty object whose keys are storable.
const profileRule = "required,min=1,dive,keys,dbkey,endkeys"

// ProfileHandler handles profile requests.
type ProfileHandler struct {
	deps   ProfileDependencies
	logger logger.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(deps ProfileDependencies, l logger.Logger) *ProfileHandler {
	return &ProfileHandler{deps: deps, logger: l}
}

// HandleGetProfile handles GET /users/{user_id}/profile requests.
func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_profile"
	uid, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err), nil)
		return
	}

	p, err := h.deps.Profile(r.Context(), uid)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandlePutProfile handles PUT /users/{user_id}/profile requests. The body
// replaces the stored profile.
func (h *ProfileHandler) HandlePutProfile(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_profile"
	uid, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err), nil)
		return
	}

	var p model.Profile
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err), nil)
		return
	}
	if err := getValidator().Var(p, profileRule); err != nil {
		msg, _ := describeValidation(err)
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, errors.New(msg)), nil)
		return
	}

	out, err := h.deps.UpsertProfile(r.Context(), uid, p)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
