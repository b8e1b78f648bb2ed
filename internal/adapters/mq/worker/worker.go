// Package worker scores queued daily records and writes them, with their
// risk assessment, to the event store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/migrisk/internal/adapters/mq/queue"
	"github.com/okian/migrisk/internal/domain/ensemble"
	"github.com/okian/migrisk/internal/domain/model"
	"github.com/okian/migrisk/pkg/logger"
	"github.com/okian/migrisk/pkg/metrics"
)

const (
	metricsUpdateInterval = 5 * time.Second
)

// Item is what workers read off the queue.
type Item = queue.Item

// Appender persists scored events.
type Appender interface {
	AppendEvent(ctx context.Context, userID string, e model.Event) (string, error)
}

// Queue defines how workers receive submissions.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Item
}

// InMemoryWorker consumes submissions until the queue closes or its
// context ends.
type InMemoryWorker struct {
	queue     Queue
	scorer    ensemble.Scorer
	appender  Appender
	name      string
	onFailure FailureHandler
	processed *atomic.Int64

	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, scorer ensemble.Scorer, appender Appender, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		scorer:    scorer,
		appender:  appender,
		name:      "worker",
		onFailure: func(context.Context, Item, error) {},
		processed: new(atomic.Int64),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run processes submissions until the queue is drained and closed or ctx
// is cancelled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for it := range w.queue.Dequeue(ctx) {
		if err := w.process(ctx, it); err != nil {
			w.onFailure(ctx, it, err)
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Processed returns how many submissions this worker stored.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

func (w *InMemoryWorker) process(ctx context.Context, it Item) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	scoreStart := time.Now()
	a, err := w.scorer.Score(ctx, it.Features)
	metrics.RecordScoringLatency(float64(time.Since(scoreStart).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordWorkerError()
		var fault *ensemble.ModelFaultError
		switch {
		case errors.As(err, &fault):
			metrics.RecordModelFault(fault.Model)
			metrics.RecordErrorByComponent("worker", "model_fault")
		case errors.Is(err, ensemble.ErrMissingFeatures):
			metrics.RecordMissingFeatures()
			metrics.RecordErrorByComponent("worker", "missing_features")
		default:
			metrics.RecordErrorByComponent("worker", "scoring_error")
		}
		w.logger.Error(ctx, "scoring failed",
			logger.String("event_id", it.EventID),
			logger.String("user_id", it.UserID),
			logger.Error(err),
		)
		return fmt.Errorf("score %s: %w", it.EventID, err)
	}
	metrics.RecordPrediction(string(a.Level))

	e := it.Event(a.Score, string(a.Level), a.TopFactors, a.ModelVersion)
	key, err := w.appender.AppendEvent(ctx, it.UserID, e)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "store_error")
		w.logger.Error(ctx, "storing scored event failed",
			logger.String("event_id", it.EventID),
			logger.String("user_id", it.UserID),
			logger.Error(err),
		)
		return fmt.Errorf("store %s: %w", it.EventID, err)
	}

	w.processed.Add(1)
	metrics.RecordEventStored()
	w.logger.Debug(ctx, "stored scored event",
		logger.String("event_id", it.EventID),
		logger.String("key", key),
		logger.String("risk_level", string(a.Level)),
	)
	return nil
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	cancel   context.CancelFunc
	stopTick chan struct{}
	stopOnce sync.Once

	processed atomic.Int64
	logger    logger.Logger
}

// NewPool creates workerCount workers; a count below one uses NumCPU.
func NewPool(workerCount int, q Queue, scorer ensemble.Scorer, appender Appender, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		stopTick: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, scorer, appender, wopts...)
		w.processed = &p.processed
		p.workers[i] = w
	}

	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerMessagesPerSecond(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of submissions stored by all workers.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start launches all workers. They stop when ctx ends or after Shutdown.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
	go p.reportRate(ctx)
}

func (p *Pool) reportRate(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	last := p.processed.Load()
	lastAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopTick:
			return
		case now := <-ticker.C:
			cur := p.processed.Load()
			if secs := now.Sub(lastAt).Seconds(); secs > 0 {
				metrics.UpdateWorkerMessagesPerSecond(float64(cur-last) / secs)
			}
			last, lastAt = cur, now
		}
	}
}

// Shutdown closes the queue and waits for workers to drain it. Workers
// still busy when ctx ends are cancelled. Only the first call has effect.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() { err = p.shutdown(ctx) })
	return err
}

func (p *Pool) shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	close(p.stopTick)
	if p.cancel == nil {
		return nil
	}
	defer func() {
		p.cancel()
		metrics.UpdateWorkerActiveCount(0)
	}()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
		}
	}
	return nil
}
