package store_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/migrisk/internal/adapters/store"
	"github.com/okian/migrisk/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeFirebase answers Realtime Database REST calls from canned routes.
type fakeFirebase struct {
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
	hits     atomic.Int64
	lastAuth atomic.Value
	lastBody atomic.Value
}

func newFake() *fakeFirebase {
	return &fakeFirebase{routes: map[string]func(http.ResponseWriter, *http.Request){}}
}

func (f *fakeFirebase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	f.lastAuth.Store(r.URL.Query().Get("auth"))
	body, _ := io.ReadAll(r.Body)
	f.lastBody.Store(string(body))
	h, ok := f.routes[r.Method+" "+r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func reply(status int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestFirebaseStore_Events(t *testing.T) {
	Convey("Given a Firebase store backed by a fake database", t, func() {
		fake := newFake()
		srv := httptest.NewServer(fake)
		Reset(srv.Close)

		s, err := store.NewFirebaseStore(srv.URL+"/", store.WithAuthToken("secret"))
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When the user has keyed events out of order", func() {
			fake.routes["GET /events/u1.json"] = reply(http.StatusOK, `{
				"-b": {"timestamp": "2025-05-02T07:00:00Z", "sleep_hours": 6.5},
				"-a": {"timestamp": "2025-05-01T07:00:00Z", "sleep_hours": 7.5},
				"-c": "not an object"
			}`)

			events, err := s.UserEvents(ctx, "u1")

			Convey("Then objects are returned sorted with their keys injected", func() {
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 2)
				So(events[0][model.FieldID], ShouldEqual, "-a")
				So(events[1][model.FieldID], ShouldEqual, "-b")
				So(events[1]["sleep_hours"], ShouldEqual, 6.5)
			})

			Convey("Then the auth token is sent as a query parameter", func() {
				So(fake.lastAuth.Load(), ShouldEqual, "secret")
			})
		})

		Convey("When the user has no events", func() {
			fake.routes["GET /events/u1.json"] = reply(http.StatusOK, `null`)

			events, err := s.UserEvents(ctx, "u1")

			Convey("Then an empty list is returned", func() {
				So(err, ShouldBeNil)
				So(events, ShouldBeEmpty)
			})
		})

		Convey("When appending an event", func() {
			fake.routes["POST /events/u1.json"] = reply(http.StatusOK, `{"name": "-new"}`)

			id, err := s.AppendEvent(ctx, "u1", model.Event{"timestamp": "2025-05-03", "risk_level": "LOW"})

			Convey("Then the push key is returned and the document sent", func() {
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "-new")
				var sent map[string]any
				So(json.Unmarshal([]byte(fake.lastBody.Load().(string)), &sent), ShouldBeNil)
				So(sent["risk_level"], ShouldEqual, "LOW")
			})
		})

		Convey("When the response body is not a document", func() {
			fake.routes["GET /events/u1.json"] = reply(http.StatusOK, `"oops"`)

			_, err := s.UserEvents(ctx, "u1")

			Convey("Then a decode error is returned", func() {
				So(errors.Is(err, store.ErrDecode), ShouldBeTrue)
			})
		})
	})
}

func TestFirebaseStore_Profiles(t *testing.T) {
	Convey("Given a Firebase store backed by a fake database", t, func() {
		fake := newFake()
		srv := httptest.NewServer(fake)
		Reset(srv.Close)

		s, err := store.NewFirebaseStore(srv.URL)
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When the profile is null", func() {
			fake.routes["GET /users/u1.json"] = reply(http.StatusOK, `null`)
			p, found, err := s.UserProfile(ctx, "u1")

			Convey("Then it is reported as not found", func() {
				So(err, ShouldBeNil)
				So(found, ShouldBeFalse)
				So(p, ShouldBeNil)
			})
		})

		Convey("When the profile path answers 404", func() {
			_, found, err := s.UserProfile(ctx, "u2")

			Convey("Then it is reported as not found", func() {
				So(err, ShouldBeNil)
				So(found, ShouldBeFalse)
			})
		})

		Convey("When the profile exists", func() {
			fake.routes["GET /users/u1.json"] = reply(http.StatusOK, `{"age": 31, "migraine_frequency": "weekly"}`)
			p, found, err := s.UserProfile(ctx, "u1")

			Convey("Then it is returned", func() {
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(p["migraine_frequency"], ShouldEqual, "weekly")
			})
		})

		Convey("When upserting a profile", func() {
			fake.routes["PUT /users/u1.json"] = func(w http.ResponseWriter, r *http.Request) {
				reply(http.StatusOK, fake.lastBody.Load().(string))(w, r)
			}
			out, err := s.UpsertProfile(ctx, "u1", model.Profile{"age": 31.0})

			Convey("Then the stored document is echoed", func() {
				So(err, ShouldBeNil)
				So(out["age"], ShouldEqual, 31.0)
			})
		})
	})
}

func TestFirebaseStore_Failures(t *testing.T) {
	Convey("Given a Firebase store with a two-failure breaker", t, func() {
		fake := newFake()
		srv := httptest.NewServer(fake)
		Reset(srv.Close)

		s, err := store.NewFirebaseStore(srv.URL,
			store.WithBreakerFailures(2),
			store.WithBreakerTimeout(time.Minute),
			store.WithTimeout(50*time.Millisecond),
		)
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When the backend keeps failing with 503", func() {
			fake.routes["GET /events/u1.json"] = reply(http.StatusServiceUnavailable, `{"error":"down"}`)

			_, first := s.UserEvents(ctx, "u1")
			_, second := s.UserEvents(ctx, "u1")
			_, third := s.UserEvents(ctx, "u1")

			Convey("Then failures surface as unavailable with the status", func() {
				So(errors.Is(first, store.ErrUnavailable), ShouldBeTrue)
				var se *store.StatusError
				So(errors.As(second, &se), ShouldBeTrue)
				So(se.Code, ShouldEqual, http.StatusServiceUnavailable)
			})

			Convey("Then the breaker opens and stops calling the backend", func() {
				So(errors.Is(third, store.ErrUnavailable), ShouldBeTrue)
				So(errors.Is(third, gobreaker.ErrOpenState), ShouldBeTrue)
				So(fake.hits.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the backend rejects the request with 400", func() {
			fake.routes["GET /events/u1.json"] = reply(http.StatusBadRequest, `{"error":"bad key"}`)

			for i := 0; i < 3; i++ {
				_, err = s.UserEvents(ctx, "u1")
			}

			Convey("Then the error is not an outage and the breaker stays closed", func() {
				So(errors.Is(err, store.ErrUnavailable), ShouldBeFalse)
				var se *store.StatusError
				So(errors.As(err, &se), ShouldBeTrue)
				So(fake.hits.Load(), ShouldEqual, 3)
			})
		})

		Convey("When the backend is slower than the timeout", func() {
			fake.routes["GET /events/u1.json"] = func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
				reply(http.StatusOK, `null`)(w, r)
			}

			_, err := s.UserEvents(ctx, "u1")

			Convey("Then the call fails as unavailable", func() {
				So(errors.Is(err, store.ErrUnavailable), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unusable database URL", t, func() {
		_, err := store.NewFirebaseStore("not a url")

		Convey("Then construction fails", func() {
			So(errors.Is(err, store.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
