package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/okian/migrisk/internal/domain/model"
	"github.com/okian/migrisk/pkg/logger"
	"github.com/okian/migrisk/pkg/metrics"
)

// Default Firebase client configuration constants.
const (
	defaultTimeout         = 5 * time.Second
	defaultBurst           = 10
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
	maxErrorBody           = 512

	breakerName = "firebase"
)

// Operation labels.
const (
	opUserEvents    = "user_events"
	opAppendEvent   = "append_event"
	opUserProfile   = "user_profile"
	opUpsertProfile = "upsert_profile"
)

// FirebaseStore implements EventStore over the Firebase Realtime Database
// REST API: events live under /events/{user_id} keyed by push id and
// profiles under /users/{user_id}.
type FirebaseStore struct {
	baseURL         string
	authToken       string
	timeout         time.Duration
	ratePerSec      float64
	burst           int
	breakerFailures uint32
	breakerTimeout  time.Duration

	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  logger.Logger
}

// NewFirebaseStore creates a store rooted at the database URL.
func NewFirebaseStore(baseURL string, opts ...Option) (*FirebaseStore, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: database url %q", ErrInvalidConfig, baseURL)
	}

	s := &FirebaseStore{
		baseURL:         strings.TrimRight(u.String(), "/"),
		timeout:         defaultTimeout,
		burst:           defaultBurst,
		breakerFailures: defaultBreakerFailures,
		breakerTimeout:  defaultBreakerTimeout,
		client:          &http.Client{},
		logger:          logger.Get().Named("firebase"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.limiter = rate.NewLimiter(rate.Inf, s.burst)
	if s.ratePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(s.ratePerSec), s.burst)
	}

	metrics.UpdateCircuitBreakerState(breakerName, 0)
	s.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     s.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.breakerFailures
		},
		// Client errors and caller cancellation say nothing about backend health.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return errors.As(err, &se) && se.Code < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn(context.Background(), "circuit breaker state change",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			metrics.UpdateCircuitBreakerState(name, stateValue(to))
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String())
		},
	})
	return s, nil
}

func stateValue(st gobreaker.State) float64 {
	switch st {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// UserEvents returns the user's events ordered by timestamp.
func (s *FirebaseStore) UserEvents(ctx context.Context, userID string) ([]model.Event, error) {
	body, err := s.do(ctx, opUserEvents, http.MethodGet, s.eventsPath(userID), nil)
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, opUserEvents, err)
	}

	docs := map[string]map[string]any{}
	switch v := raw.(type) {
	case nil:
	case map[string]any:
		for k, doc := range v {
			if m, ok := doc.(map[string]any); ok {
				docs[k] = m
			}
		}
	case []any:
		// Sequential integer keys come back as an array with null holes.
		for i, doc := range v {
			if m, ok := doc.(map[string]any); ok {
				docs[strconv.Itoa(i)] = m
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s: unexpected %T", ErrDecode, opUserEvents, raw)
	}
	return collect(docs), nil
}

// AppendEvent pushes the event and returns the generated key.
func (s *FirebaseStore) AppendEvent(ctx context.Context, userID string, e model.Event) (string, error) {
	body, err := s.do(ctx, opAppendEvent, http.MethodPost, s.eventsPath(userID), e)
	if err != nil {
		return "", err
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Name == "" {
		return "", fmt.Errorf("%w: %s: missing push key", ErrDecode, opAppendEvent)
	}
	return out.Name, nil
}

// UserProfile reads the profile. A 404 or a null document is not found.
func (s *FirebaseStore) UserProfile(ctx context.Context, userID string) (model.Profile, bool, error) {
	body, err := s.do(ctx, opUserProfile, http.MethodGet, s.profilePath(userID), nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	var p model.Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", ErrDecode, opUserProfile, err)
	}
	if p == nil {
		return nil, false, nil
	}
	return p, true, nil
}

// UpsertProfile writes the whole profile document.
func (s *FirebaseStore) UpsertProfile(ctx context.Context, userID string, p model.Profile) (model.Profile, error) {
	body, err := s.do(ctx, opUpsertProfile, http.MethodPut, s.profilePath(userID), p)
	if err != nil {
		return nil, err
	}
	var out model.Profile
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, opUpsertProfile, err)
	}
	return out, nil
}

func (s *FirebaseStore) eventsPath(userID string) string {
	return "/events/" + url.PathEscape(userID) + ".json"
}

func (s *FirebaseStore) profilePath(userID string) string {
	return "/users/" + url.PathEscape(userID) + ".json"
}

// do performs one rate-limited, breaker-guarded request and returns the
// response body of a 2xx reply.
func (s *FirebaseStore) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		metrics.RecordStoreRequest(op, outcome, float64(time.Since(start).Microseconds())/1000)
	}()

	if err := s.limiter.Wait(ctx); err != nil {
		outcome = "throttled"
		return nil, fmt.Errorf("event store %s: rate limit wait: %w", op, err)
	}

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			outcome = "error"
			return nil, fmt.Errorf("event store %s: encode: %w", op, err)
		}
	}

	out, err := s.breaker.Execute(func() ([]byte, error) {
		return s.roundTrip(ctx, op, method, path, body)
	})
	if err != nil {
		outcome = "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
			return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
		}
		return nil, err
	}
	return out, nil
}

func (s *FirebaseStore) roundTrip(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	target := s.baseURL + path
	if s.authToken != "" {
		target += "?" + url.Values{"auth": {s.authToken}}.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("event store %s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("event store %s: %w", op, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %w", ErrUnavailable, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		s.logger.Debug(ctx, "event store error response",
			logger.String("op", op),
			logger.Int("status", resp.StatusCode),
		)
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
