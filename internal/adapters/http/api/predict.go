package api

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/okian/migrisk/internal/domain/ensemble"
	"github.com/okian/migrisk/internal/domain/features"
	"github.com/okian/migrisk/pkg/logger"
)

// PredictDependencies scores feature vectors.
type PredictDependencies interface {
	Predict(ctx context.Context, v features.Vector) (ensemble.Assessment, error)
}

// predictRequest mirrors the OpenAPI schema for POST /predict. Feature
// values are decoded per key so unknown keys never fail the request.
type predictRequest struct {
	Features map[string]json.RawMessage `json:"features" validate:"required"`
}

type predictResponse struct {
	RiskScore    float64  `json:"risk_score"`
	RiskLevel    string   `json:"risk_level"`
	TopFactors   []string `json:"top_factors"`
	ModelVersion string   `json:"model_version"`
}

// PredictHandler handles risk prediction requests.
type PredictHandler struct {
	deps   PredictDependencies
	logger logger.Logger
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps PredictDependencies, l logger.Logger) *PredictHandler {
	return &PredictHandler{deps: deps, logger: l}
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"

	var req predictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err), nil)
		return
	}
	if err := getValidator().Struct(req); err != nil {
		msg, fields := describeValidation(err)
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, errors.New(msg)), map[string]any{"fields": fields})
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

	a, err := h.deps.Predict(r.Context(), vec)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	factors := a.TopFactors
	if factors == nil {
		factors = []string{}
	}
	writeJSON(w, http.StatusOK, predictResponse{
		RiskScore:    roundTo(a.Score, 4),
		RiskLevel:    string(a.Level),
		TopFactors:   factors,
		ModelVersion: a.ModelVersion,
	})
}

// roundTo rounds half away from zero to the given number of decimals.
func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
