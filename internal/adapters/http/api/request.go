package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/okian/migrisk/internal/domain/features"
)

const (
	userIDParam  = "user_id"
	maxBodyBytes = 1 << 20
)

var (
	errEmptyBody = errors.New("request body is empty")
	jsonNull     = []byte("null")
)

// invalidFeaturesError names contract features whose values are not numbers.
type invalidFeaturesError struct {
	Names []string
}

func (e *invalidFeaturesError) Error() string {
	return "features must be numbers: " + strings.Join(e.Names, ", ")
}

// decodeJSON reads one JSON document from the size-limited body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			if te.Field != "" {
				return fmt.Errorf("field %q must be %s, got %s", te.Field, te.Type, te.Value)
			}
			return fmt.Errorf("value must be %s, got %s", te.Type, te.Value)
		}
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// userID returns the validated {user_id} path parameter.
func userID(r *http.Request) (string, error) {
	id := chi.URLParam(r, userIDParam)
	if err := checkUserID(id); err != nil {
		return "", err
	}
	return id, nil
}

// featureVector reads the contract features from in. Absent and null
// entries count as missing; keys outside the contract are ignored.
func featureVector(in map[string]json.RawMessage) (features.Vector, error) {
	v := make(features.Vector, features.Count)
	var invalid []string
	for _, name := range features.Names() {
		raw, ok := in[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			invalid = append(invalid, name)
			continue
		}
		v[name] = f
	}
	if len(invalid) > 0 {
		return nil, &invalidFeaturesError{Names: invalid}
	}
	return v, nil
}

// writeInvalidFeatures reports non-numeric contract features.
func writeInvalidFeatures(w http.ResponseWriter, op string, err *invalidFeaturesError) {
	writeError(w, http.StatusBadRequest, codeInvalidFeatures, WrapKind(op, ErrBadRequest, err), map[string]any{"invalid": err.Names})
}
