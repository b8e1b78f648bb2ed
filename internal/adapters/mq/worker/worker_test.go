package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/migrisk/internal/adapters/mq/queue"
	"github.com/okian/migrisk/internal/adapters/mq/worker"
	"github.com/okian/migrisk/internal/domain/ensemble"
	"github.com/okian/migrisk/internal/domain/features"
	"github.com/okian/migrisk/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	ch chan queue.Item
}

func newMockQueue() *mockQueue { return &mockQueue{ch: make(chan queue.Item, 10)} }

func (q *mockQueue) Dequeue(context.Context) <-chan queue.Item { return q.ch }

func (q *mockQueue) Close() error {
	close(q.ch)
	return nil
}

// mockScorer fails for users listed in errs and returns a fixed assessment otherwise.
type mockScorer struct {
	mu   sync.Mutex
	errs map[string]error
}

func (s *mockScorer) Score(_ context.Context, v features.Vector) (ensemble.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[fmt.Sprint(v["user"])]; ok {
		return ensemble.Assessment{}, err
	}
	return ensemble.Assessment{
		Score:        0.7,
		Level:        ensemble.LevelHigh,
		TopFactors:   []string{"sleep_hours"},
		ModelVersion: "v1.0",
	}, nil
}

type mockAppender struct {
	mu     sync.Mutex
	events map[string][]model.Event
	err    error
}

func newMockAppender() *mockAppender {
	return &mockAppender{events: map[string][]model.Event{}}
}

func (a *mockAppender) AppendEvent(_ context.Context, userID string, e model.Event) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.events[userID] = append(a.events[userID], e)
	return fmt.Sprintf("k%d", len(a.events[userID])), nil
}

func (a *mockAppender) count(userID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events[userID])
}

func submission(id, user string) queue.Item {
	return model.Submission{
		EventID:      id,
		UserID:       user,
		Timestamp:    time.Date(2025, 5, 1, 7, 0, 0, 0, time.UTC),
		Measurements: map[string]any{"notes": "long day"},
		// user is not a model feature; the mock scorer keys failures on it.
		Features: features.Vector{"user": float64(len(user)), "sleep_hours": 6},
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a mock queue", t, func() {
		q := newMockQueue()
		scorer := &mockScorer{errs: map[string]error{}}
		appender := newMockAppender()

		var (
			mu     sync.Mutex
			failed []string
		)
		w := worker.NewInMemoryWorker(q, scorer, appender,
			worker.WithName("test"),
			worker.WithFailureHandler(func(_ context.Context, it worker.Item, _ error) {
				mu.Lock()
				failed = append(failed, it.EventID)
				mu.Unlock()
			}),
		)

		convey.Convey("When a submission is processed", func() {
			q.ch <- submission("r1", "u1")
			q.Close()
			w.Run(context.Background())

			convey.Convey("Then the scored event is stored with its risk", func() {
				convey.So(appender.count("u1"), convey.ShouldEqual, 1)
				e := appender.events["u1"][0]
				convey.So(e[model.FieldRiskScore], convey.ShouldEqual, 0.7)
				convey.So(e[model.FieldRiskLevel], convey.ShouldEqual, "HIGH")
				convey.So(e[model.FieldModelVersion], convey.ShouldEqual, "v1.0")
				convey.So(e["notes"], convey.ShouldEqual, "long day")
				convey.So(e["sleep_hours"], convey.ShouldEqual, 6.0)
				convey.So(w.Processed(), convey.ShouldEqual, 1)
				convey.So(failed, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When scoring fails", func() {
			// len("bad") == 3
			scorer.errs["3"] = &ensemble.ModelFaultError{Model: ensemble.NameBooster, Reason: "NaN"}
			q.ch <- submission("r1", "bad")
			q.Close()
			w.Run(context.Background())

			convey.Convey("Then nothing is stored and the failure is reported", func() {
				convey.So(appender.count("bad"), convey.ShouldEqual, 0)
				convey.So(failed, convey.ShouldResemble, []string{"r1"})
			})
		})

		convey.Convey("When storing fails", func() {
			appender.err = errors.New("store down")
			q.ch <- submission("r1", "u1")
			q.Close()
			w.Run(context.Background())

			convey.Convey("Then the failure is reported", func() {
				convey.So(failed, convey.ShouldResemble, []string{"r1"})
				convey.So(w.Processed(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			go w.Run(ctx)
			cancel()

			convey.Convey("Then the worker stops", func() {
				// the mock queue channel ignores ctx, so close it to unblock range
				q.Close()
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		scorer := &mockScorer{errs: map[string]error{}}
		appender := newMockAppender()
		p := worker.NewPool(4, q, scorer, appender)

		convey.So(p.Size(), convey.ShouldEqual, 4)

		convey.Convey("When many submissions are enqueued and the pool shuts down", func() {
			p.Start(context.Background())
			for i := 0; i < 50; i++ {
				convey.So(q.Enqueue(context.Background(), submission(fmt.Sprintf("r%d", i), "u1")), convey.ShouldBeNil)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := p.Shutdown(ctx)

			convey.Convey("Then every queued submission is stored before workers exit", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(appender.count("u1"), convey.ShouldEqual, 50)
				convey.So(p.Processed(), convey.ShouldEqual, 50)
			})

			convey.Convey("Then a second shutdown is a no-op", func() {
				convey.So(p.Shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a pool that never started shuts down", func() {
			err := p.Shutdown(context.Background())

			convey.Convey("Then it returns immediately and closes the queue", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
