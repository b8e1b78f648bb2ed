package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/migrisk/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When a record id is new", func() {
			seen := d.SeenAndRecord(ctx, "u1:2025-05-01")

			Convey("Then it is recorded", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then a retry is reported as seen", func() {
				So(d.SeenAndRecord(ctx, "u1:2025-05-01"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a recorded id is unrecorded", func() {
			d.SeenAndRecord(ctx, "u1:2025-05-01")
			d.Unrecord(ctx, "u1:2025-05-01")
			d.Unrecord(ctx, "never-seen")

			Convey("Then it can be submitted again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "u1:2025-05-01"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a deduper remembering three ids", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 4; i++ {
			So(d.SeenAndRecord(ctx, fmt.Sprintf("r%d", i)), ShouldBeFalse)
		}

		Convey("Then the oldest id was forgotten", func() {
			So(d.Size(), ShouldEqual, 3)
			So(d.SeenAndRecord(ctx, "r4"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "r3"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "r1"), ShouldBeFalse)
			So(d.Size(), ShouldEqual, 3)
		})

		Convey("Then an unrecorded id frees its entry without disturbing the window", func() {
			d.Unrecord(ctx, "r3")
			So(d.Size(), ShouldEqual, 2)
			So(d.SeenAndRecord(ctx, "r5"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "r4"), ShouldBeTrue)
			So(d.Size(), ShouldBeLessThanOrEqualTo, 3)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		const n = 1000
		for i := 0; i < n; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("r%d", i))
		}

		Convey("Then nothing is evicted", func() {
			So(d.Size(), ShouldEqual, n)
			So(d.SeenAndRecord(ctx, "r0"), ShouldBeTrue)
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given concurrent submitters sharing a deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1000))
		const workers, perWorker = 10, 100

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					// Every id is submitted by two workers.
					if !d.SeenAndRecord(context.Background(), fmt.Sprintf("r%d-%d", w/2, j)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each id is admitted exactly once", func() {
			So(fresh, ShouldEqual, workers/2*perWorker)
			So(d.Size(), ShouldEqual, workers/2*perWorker)
		})
	})
}
