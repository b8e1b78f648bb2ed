// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/migrisk/internal/adapters/mq/queue"
	workerpool "github.com/okian/migrisk/internal/adapters/mq/worker"
	"github.com/okian/migrisk/internal/adapters/store"
	"github.com/okian/migrisk/internal/domain/dedupe"
	"github.com/okian/migrisk/internal/domain/ensemble"
	"github.com/okian/migrisk/internal/domain/features"
	"github.com/okian/migrisk/internal/domain/model"
	"github.com/okian/migrisk/internal/domain/summary"
	"github.com/okian/migrisk/pkg/logger"
	"github.com/okian/migrisk/pkg/metrics"
)

// SubmitStatus reports what happened to a submitted record.
type SubmitStatus string

const (
	// SubmitAccepted means the record was queued for scoring.
	SubmitAccepted SubmitStatus = "accepted"
	// SubmitDuplicate means the event id was already seen; nothing was queued.
	SubmitDuplicate SubmitStatus = "duplicate"
)

// Stats is a point-in-time view of the service for monitoring.
type Stats struct {
	Started       bool    `json:"started"`
	ModelVersion  string  `json:"model_version"`
	Workers       int     `json:"workers"`
	QueueLength   int     `json:"queue_length"`
	QueueCapacity int     `json:"queue_capacity"`
	DedupeEntries int64   `json:"dedupe_entries"`
	Processed     int64   `json:"processed"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Service implements the API dependencies for the risk service.
type Service struct {
	mu sync.RWMutex

	// Core components
	scorer  ensemble.Scorer
	store   store.EventStore
	deduper dedupe.Deduper
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool

	// Configuration
	workerCount  int
	queueSize    int
	dedupeSize   int
	modelVersion string

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the ingestion queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication window.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithModelVersion sets the version reported by Stats.
func WithModelVersion(version string) Option {
	return func(s *Service) {
		if version != "" {
			s.modelVersion = version
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service around a scorer and an event store. Ingestion
// components are created by Start.
func New(scorer ensemble.Scorer, st store.EventStore, opts ...Option) *Service {
	s := &Service{
		scorer:       scorer,
		store:        st,
		workerCount:  runtime.NumCPU(),
		queueSize:    10_000,
		dedupeSize:   50_000,
		modelVersion: "v1.0",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start creates the dedupe window, the queue and the worker pool, then
// starts the workers. Calling Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.scorer == nil || s.store == nil {
		return fmt.Errorf("start service: scorer and store are required")
	}

	s.logger.Info(ctx, "starting risk service...")

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.scorer, s.store,
		workerpool.WithFailureHandler(s.onWorkerFailure),
	)
	// Workers outlive the start request; Stop ends them.
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "risk service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("modelVersion", s.modelVersion),
	)
	return nil
}

// Stop closes the queue and waits, bounded by ctx, for queued records to be
// scored and stored.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping risk service...")

	s.started = false
	err := s.pool.Shutdown(ctx)
	if err != nil {
		s.logger.Warn(ctx, "risk service stopped before the queue drained", logger.Error(err))
	}
	s.logger.Info(ctx, "risk service stopped", logger.Int64("processed", s.pool.Processed()))
	return err
}

// onWorkerFailure releases the event id so the client can resubmit it.
func (s *Service) onWorkerFailure(ctx context.Context, it workerpool.Item, err error) { //nolint:gocritic // hugeParam: matches worker.FailureHandler
	s.deduper.Unrecord(ctx, it.EventID)
	s.logger.Warn(ctx, "submission dropped",
		logger.String("event_id", it.EventID),
		logger.String("user_id", it.UserID),
		logger.Error(err),
	)
}

// Predict scores a feature vector synchronously.
func (s *Service) Predict(ctx context.Context, v features.Vector) (ensemble.Assessment, error) {
	start := time.Now()
	a, err := s.scorer.Score(ctx, v)
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		var fault *ensemble.ModelFaultError
		switch {
		case errors.As(err, &fault):
			metrics.RecordModelFault(fault.Model)
			s.logger.Error(ctx, "model fault", logger.String("model", fault.Model), logger.Error(err))
		case errors.Is(err, ensemble.ErrMissingFeatures):
			metrics.RecordMissingFeatures()
		}
		return ensemble.Assessment{}, err
	}
	metrics.RecordPrediction(string(a.Level))
	return a, nil
}

// Submit de-duplicates a daily record by event id and queues it for
// scoring. Records missing model features are rejected up front so the
// failure reaches the client rather than a worker log.
func (s *Service) Submit(ctx context.Context, sub model.Submission) (SubmitStatus, error) { //nolint:gocritic // hugeParam: submissions are values end to end
	if !model.ValidKey(sub.EventID) || !model.ValidKey(sub.UserID) {
		return "", fmt.Errorf("%w: event id and user id must be valid keys", ErrInvalidSubmission)
	}
	if missing := sub.Features.Missing(); len(missing) > 0 {
		metrics.RecordMissingFeatures()
		return "", &ensemble.MissingFeaturesError{Names: missing}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return "", ErrNotStarted
	}

	if s.deduper.SeenAndRecord(ctx, sub.EventID) {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate submission skipped",
			logger.String("event_id", sub.EventID),
			logger.String("user_id", sub.UserID),
		)
		return SubmitDuplicate, nil
	}

	if err := s.queue.Enqueue(ctx, sub); err != nil {
		s.deduper.Unrecord(ctx, sub.EventID)
		switch {
		case errors.Is(err, eventqueue.ErrFull):
			return "", ErrBackpressure
		case errors.Is(err, eventqueue.ErrClosed):
			return "", ErrNotStarted
		default:
			return "", fmt.Errorf("enqueue %s: %w", sub.EventID, err)
		}
	}
	metrics.RecordEventAccepted()
	return SubmitAccepted, nil
}

// Events returns the user's stored events sorted by timestamp ascending.
func (s *Service) Events(ctx context.Context, userID string) ([]model.Event, error) {
	events, err := s.store.UserEvents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("events for %s: %w", userID, err)
	}
	return events, nil
}

// Summary builds the user's current risk, trends and insights from the
// stored history.
func (s *Service) Summary(ctx context.Context, userID string) (summary.Summary, error) {
	events, err := s.Events(ctx, userID)
	if err != nil {
		return summary.Summary{}, err
	}
	out := summary.Build(userID, events)
	metrics.RecordSummary(out.HasData, len(out.Insights))
	return out, nil
}

// Profile returns the user's profile or ErrProfileNotFound.
func (s *Service) Profile(ctx context.Context, userID string) (model.Profile, error) {
	p, found, err := s.store.UserProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("profile for %s: %w", userID, err)
	}
	if !found {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// UpsertProfile replaces the user's profile.
func (s *Service) UpsertProfile(ctx context.Context, userID string, p model.Profile) (model.Profile, error) {
	out, err := s.store.UpsertProfile(ctx, userID, p)
	if err != nil {
		return nil, fmt.Errorf("upsert profile for %s: %w", userID, err)
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:       s.started,
		ModelVersion:  s.modelVersion,
		Workers:       s.workerCount,
		QueueCapacity: s.queueSize,
	}
	if s.deduper != nil {
		st.DedupeEntries = s.deduper.Size()
	}
	if s.queue != nil {
		st.QueueLength = s.queue.Len()
	}
	if s.pool != nil {
		st.Processed = s.pool.Processed()
	}
	if s.started {
		st.UptimeSeconds = time.Since(s.startedAt).Seconds()
	}
	return st
}
