package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/migrisk/internal/adapters/http/api"
	"github.com/okian/migrisk/internal/adapters/store"
	service "github.com/okian/migrisk/internal/app"
	"github.com/okian/migrisk/internal/domain/ensemble"
	"github.com/okian/migrisk/internal/domain/features"
	"github.com/okian/migrisk/internal/domain/model"
	"github.com/okian/migrisk/internal/domain/summary"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies records calls and returns canned results.
type mockDependencies struct {
	mu sync.Mutex

	assessment ensemble.Assessment
	predictErr error
	lastVector features.Vector

	submitStatus service.SubmitStatus
	submitErr    error
	lastSub      model.Submission

	events    []model.Event
	eventsErr error

	profile    model.Profile
	profileErr error
	upserted   model.Profile
}

func (m *mockDependencies) Predict(_ context.Context, v features.Vector) (ensemble.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastVector = v
	return m.assessment, m.predictErr
}

func (m *mockDependencies) Submit(_ context.Context, sub model.Submission) (service.SubmitStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSub = sub
	return m.submitStatus, m.submitErr
}

func (m *mockDependencies) Events(context.Context, string) ([]model.Event, error) {
	return m.events, m.eventsErr
}

func (m *mockDependencies) Summary(_ context.Context, userID string) (summary.Summary, error) {
	if m.eventsErr != nil {
		return summary.Summary{}, m.eventsErr
	}
	return summary.Build(userID, m.events), nil
}

func (m *mockDependencies) Profile(context.Context, string) (model.Profile, error) {
	return m.profile, m.profileErr
}

func (m *mockDependencies) UpsertProfile(_ context.Context, _ string, p model.Profile) (model.Profile, error) {
	m.upserted = p
	return p, m.profileErr
}

func (m *mockDependencies) GetStats() service.Stats {
	return service.Stats{Started: true, Workers: 3, ModelVersion: "v1.0"}
}

func newRouter(deps api.Dependencies, opts ...api.Option) http.Handler {
	return api.NewServer(deps, opts...).Router(context.Background())
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestHealth(t *testing.T) {
	Convey("Given the API router", t, func() {
		h := newRouter(&mockDependencies{})

		Convey("When GET /health is called", func() {
			w := do(h, http.MethodGet, "/health", "")

			Convey("Then the fixed payload is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
				body := decode(w)
				So(body["status"], ShouldEqual, "ok")
				So(body["service"], ShouldEqual, "Migraine Prediction API")
				So(body["message"], ShouldEqual, "Running and reachable.")
			})

			Convey("Then a request id is assigned", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
			})
		})

		Convey("When the caller supplies a request id", func() {
			req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
			req.Header.Set(api.RequestIDHeader, "req-42")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			Convey("Then it is echoed back", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "req-42")
			})
		})

		Convey("When GET /metrics is called", func() {
			w := do(h, http.MethodGet, "/metrics", "")

			Convey("Then Prometheus text is served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "migrisk_")
			})
		})

		Convey("When an unknown route is called", func() {
			w := do(h, http.MethodGet, "/unknown", "")

			Convey("Then a JSON 404 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decode(w)["code"], ShouldEqual, "not_found")
			})
		})

		Convey("When a route is called with the wrong method", func() {
			w := do(h, http.MethodDelete, "/predict", "")

			Convey("Then a JSON 405 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(decode(w)["code"], ShouldEqual, "method_not_allowed")
			})
		})
	})
}

func TestPredict(t *testing.T) {
	Convey("Given a router over a scoring dependency", t, func() {
		deps := &mockDependencies{assessment: ensemble.Assessment{
			Score:        0.123456,
			Level:        ensemble.LevelLow,
			TopFactors:   []string{"sleep_hours"},
			ModelVersion: "v1.0",
		}}
		h := newRouter(deps)

		Convey("When a prediction succeeds", func() {
			w := do(h, http.MethodPost, "/predict", `{"features":{"sleep_hours":7.5,"hrv":null}}`)

			Convey("Then the score is rounded to four decimals", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["risk_score"], ShouldEqual, 0.1235)
				So(body["risk_level"], ShouldEqual, "LOW")
				So(body["top_factors"], ShouldResemble, []any{"sleep_hours"})
				So(body["model_version"], ShouldEqual, "v1.0")
			})

			Convey("Then null values are dropped before scoring", func() {
				So(deps.lastVector, ShouldResemble, features.Vector{"sleep_hours": 7.5})
			})
		})

		Convey("When features are missing", func() {
			deps.predictErr = &ensemble.MissingFeaturesError{Names: []string{"hrv", "resting_hr"}}
			w := do(h, http.MethodPost, "/predict", `{"features":{}}`)

			Convey("Then a 400 lists the missing names", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decode(w)
				So(body["code"], ShouldEqual, "missing_features")
				So(body["details"].(map[string]any)["missing"], ShouldResemble, []any{"hrv", "resting_hr"})
				So(body["message"], ShouldContainSubstring, "hrv")
			})
		})

		Convey("When a model faults", func() {
			deps.predictErr = &ensemble.ModelFaultError{Model: ensemble.NameBooster, Reason: "boom"}
			w := do(h, http.MethodPost, "/predict", `{"features":{}}`)

			Convey("Then a 500 names the model", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				body := decode(w)
				So(body["code"], ShouldEqual, "model_fault")
				So(body["details"].(map[string]any)["model"], ShouldEqual, ensemble.NameBooster)
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(h, http.MethodPost, "/predict", `{not json`)

			Convey("Then a 400 bad_request is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When the features object is absent", func() {
			w := do(h, http.MethodPost, "/predict", `{"other":1}`)

			Convey("Then validation rejects it", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decode(w)
				So(body["code"], ShouldEqual, "bad_request")
				So(body["details"].(map[string]any)["fields"], ShouldResemble, []any{"features"})
			})
		})

		Convey("When a feature value is not a number", func() {
			w := do(h, http.MethodPost, "/predict", `{"features":{"sleep_hours":"lots","hrv":true,"note":"x"}}`)

			Convey("Then a 400 names each offending feature", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decode(w)
				So(body["code"], ShouldEqual, "invalid_features")
				So(body["details"].(map[string]any)["invalid"], ShouldResemble, []any{"sleep_hours", "hrv"})
				So(body["message"], ShouldContainSubstring, "sleep_hours")
				So(body["message"], ShouldNotContainSubstring, "unexpected end")
			})
		})

		Convey("When every feature is sent along with unrelated keys", func() {
			all := make(map[string]any, features.Count+2)
			for i, name := range features.Names() {
				all[name] = float64(i)
			}
			all["note"] = "slept badly"
			all["tags"] = []string{"travel"}
			raw, err := json.Marshal(map[string]any{"features": all})
			So(err, ShouldBeNil)

			w := do(h, http.MethodPost, "/predict", string(raw))

			Convey("Then the extra keys are ignored and the request scores", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(deps.lastVector), ShouldEqual, features.Count)
				So(deps.lastVector.Missing(), ShouldBeNil)
				_, hasNote := deps.lastVector["note"]
				So(hasNote, ShouldBeFalse)
				So(deps.lastVector[features.Name(features.HRV)], ShouldEqual, float64(features.HRV))
			})
		})
	})
}

func TestEvents(t *testing.T) {
	Convey("Given a router over an event dependency", t, func() {
		deps := &mockDependencies{submitStatus: service.SubmitAccepted}
		h := newRouter(deps)
		const validEvent = `{
			"event_id": "evt-1",
			"timestamp": "2025-05-01T07:00:00Z",
			"features": {"sleep_hours": 7},
			"measurements": {"steps": 5000}
		}`

		Convey("When events exist", func() {
			deps.events = []model.Event{
				{"id": "k1", "timestamp": "2025-05-01", "sleep_hours": 7.0},
				{"id": "k2", "timestamp": "2025-05-02", "sleep_hours": 6.0},
			}
			w := do(h, http.MethodGet, "/users/u1/events", "")

			Convey("Then they are wrapped with a count", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["user_id"], ShouldEqual, "u1")
				So(body["events_count"], ShouldEqual, 2.0)
				So(len(body["events"].([]any)), ShouldEqual, 2)
			})
		})

		Convey("When the user has no events", func() {
			w := do(h, http.MethodGet, "/users/u1/events", "")

			Convey("Then an empty list is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"events":[]`)
			})
		})

		Convey("When the store is unavailable", func() {
			deps.eventsErr = store.ErrUnavailable
			w := do(h, http.MethodGet, "/users/u1/events", "")

			Convey("Then a 503 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(decode(w)["code"], ShouldEqual, "store_unavailable")
			})
		})

		Convey("When the user id is not a valid key", func() {
			w := do(h, http.MethodGet, "/users/a.b/events", "")

			Convey("Then a 400 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When a valid record is posted", func() {
			w := do(h, http.MethodPost, "/users/u1/events", validEvent)

			Convey("Then it is accepted and forwarded", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				body := decode(w)
				So(body["status"], ShouldEqual, "accepted")
				So(body["duplicate"], ShouldEqual, false)
				So(deps.lastSub.UserID, ShouldEqual, "u1")
				So(deps.lastSub.EventID, ShouldEqual, "evt-1")
				So(deps.lastSub.Timestamp.Equal(time.Date(2025, 5, 1, 7, 0, 0, 0, time.UTC)), ShouldBeTrue)
				So(deps.lastSub.Features, ShouldResemble, features.Vector{"sleep_hours": 7})
				So(deps.lastSub.Measurements["steps"], ShouldEqual, 5000.0)
			})
		})

		Convey("When a duplicate record is posted", func() {
			deps.submitStatus = service.SubmitDuplicate
			w := do(h, http.MethodPost, "/users/u1/events", validEvent)

			Convey("Then a 200 duplicate ack is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["duplicate"], ShouldEqual, true)
			})
		})

		Convey("When the queue is full", func() {
			deps.submitErr = service.ErrBackpressure
			w := do(h, http.MethodPost, "/users/u1/events", validEvent)

			Convey("Then a 429 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decode(w)["code"], ShouldEqual, "backpressure")
			})
		})

		Convey("When the service is not running", func() {
			deps.submitErr = service.ErrNotStarted
			w := do(h, http.MethodPost, "/users/u1/events", validEvent)

			Convey("Then a 503 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When required fields are missing", func() {
			w := do(h, http.MethodPost, "/users/u1/events", `{"features":{}}`)

			Convey("Then each field is reported", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				fields := decode(w)["details"].(map[string]any)["fields"]
				So(fields, ShouldResemble, []any{"event_id", "timestamp"})
			})
		})

		Convey("When the timestamp is not RFC3339", func() {
			w := do(h, http.MethodPost, "/users/u1/events",
				`{"event_id":"e","timestamp":"yesterday","features":{}}`)

			Convey("Then a 400 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When a feature value is not a number", func() {
			w := do(h, http.MethodPost, "/users/u1/events",
				`{"event_id":"e","timestamp":"2025-05-01T07:00:00Z","features":{"sleep_hours":"7h","note":"ok"}}`)

			Convey("Then the feature is named and nothing is submitted", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decode(w)
				So(body["code"], ShouldEqual, "invalid_features")
				So(body["details"].(map[string]any)["invalid"], ShouldResemble, []any{"sleep_hours"})
				So(deps.lastSub.EventID, ShouldEqual, "")
			})
		})

		Convey("When a field has the wrong JSON type", func() {
			w := do(h, http.MethodPost, "/users/u1/events",
				`{"event_id":"e","timestamp":20250501,"features":{}}`)

			Convey("Then a 400 explains the type mismatch", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decode(w)
				So(body["code"], ShouldEqual, "bad_request")
				So(body["message"], ShouldContainSubstring, "must be string, got number")
				So(body["message"], ShouldNotContainSubstring, "unexpected end")
			})
		})

		Convey("When the body is empty", func() {
			w := do(h, http.MethodPost, "/users/u1/events", "")

			Convey("Then a 400 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["message"], ShouldContainSubstring, "empty")
			})
		})
	})
}

func TestSummary(t *testing.T) {
	Convey("Given a router over a summary dependency", t, func() {
		deps := &mockDependencies{}
		h := newRouter(deps)

		Convey("When the user has no events", func() {
			w := do(h, http.MethodGet, "/users/u1/summary", "")

			Convey("Then the guidance payload is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["has_data"], ShouldEqual, false)
				So(body["message"], ShouldEqual, summary.NoDataMessage)
			})
		})

		Convey("When the user has history", func() {
			deps.events = []model.Event{
				{"timestamp": "2025-05-01T07:00:00Z", "sleep_hours": 7.5},
				{"timestamp": "2025-05-02T07:00:00Z", "sleep_hours": 6.0, "risk_level": "HIGH"},
			}
			w := do(h, http.MethodGet, "/users/u1/summary", "")

			Convey("Then trends and insights are included", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["has_data"], ShouldEqual, true)
				So(body["updated_at"], ShouldEqual, "2025-05-02T07:00:00+00:00")
				So(body["current_risk"].(map[string]any)["level"], ShouldEqual, "HIGH")
				So(body["insights"], ShouldResemble, []any{"Your sleep was 1.5 hours below your usual 7.5 h."})
			})
		})
	})
}

func TestProfile(t *testing.T) {
	Convey("Given a router over a profile dependency", t, func() {
		deps := &mockDependencies{}
		h := newRouter(deps)

		Convey("When no profile exists", func() {
			deps.profileErr = service.ErrProfileNotFound
			w := do(h, http.MethodGet, "/users/u1/profile", "")

			Convey("Then a 404 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decode(w)["code"], ShouldEqual, "not_found")
			})
		})

		Convey("When a profile exists", func() {
			deps.profile = model.Profile{"name": "Ada"}
			w := do(h, http.MethodGet, "/users/u1/profile", "")

			Convey("Then it is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["name"], ShouldEqual, "Ada")
			})
		})

		Convey("When a valid profile is put", func() {
			w := do(h, http.MethodPut, "/users/u1/profile", `{"name":"Ada","age":36}`)

			Convey("Then it is stored and echoed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.upserted["name"], ShouldEqual, "Ada")
				So(decode(w)["age"], ShouldEqual, 36.0)
			})
		})

		Convey("When an empty profile is put", func() {
			w := do(h, http.MethodPut, "/users/u1/profile", `{}`)

			Convey("Then it is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.upserted, ShouldBeNil)
			})
		})

		Convey("When a profile key is not storable", func() {
			w := do(h, http.MethodPut, "/users/u1/profile", `{"a/b":1}`)

			Convey("Then it is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.upserted, ShouldBeNil)
			})
		})
	})
}

func TestStats(t *testing.T) {
	Convey("Given the API router", t, func() {
		h := newRouter(&mockDependencies{})

		Convey("When GET /stats is called", func() {
			w := do(h, http.MethodGet, "/stats", "")

			Convey("Then service stats are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["started"], ShouldEqual, true)
				So(body["workers"], ShouldEqual, 3.0)
			})
		})
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given a router limited to two requests per minute", t, func() {
		h := newRouter(&mockDependencies{}, api.WithMiddlewareConfig(api.MiddlewareConfig{
			CORSAllowedOrigins: []string{"https://app.example"},
			RateLimitRequests:  2,
			RateLimitWindow:    time.Minute,
		}))

		Convey("When a client exceeds the limit", func() {
			codes := make([]int, 0, 3)
			for i := 0; i < 3; i++ {
				codes = append(codes, do(h, http.MethodGet, "/stats", "").Code)
			}

			Convey("Then the third request is refused", func() {
				So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})
			})
		})

		Convey("When health is polled past the limit", func() {
			for i := 0; i < 3; i++ {
				_ = do(h, http.MethodGet, "/health", "")
			}

			Convey("Then it is never limited", func() {
				So(do(h, http.MethodGet, "/health", "").Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When an allowed origin sends a preflight", func() {
			req := httptest.NewRequest(http.MethodOptions, "/predict", http.NoBody)
			req.Header.Set("Origin", "https://app.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			Convey("Then CORS headers allow it", func() {
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "https://app.example")
			})
		})

		Convey("When another origin sends a preflight", func() {
			req := httptest.NewRequest(http.MethodOptions, "/predict", http.NoBody)
			req.Header.Set("Origin", "https://evil.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			Convey("Then no allow header is sent", func() {
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
			})
		})
	})
}
