// Package dedupe tracks recently submitted daily-record ids so a client
// retry does not score and store the same day twice.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records seen record ids for at-most-once ingestion.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a record rejected downstream (queue
	// backpressure) can be resubmitted.
	Unrecord(ctx context.Context, id string)

	// Size returns the number of ids currently remembered.
	Size() int64
}

type slot struct {
	id  string
	seq uint64
}

// windowDeduper remembers the ids of the last maxSize recordings. Bounded
// mode keeps a ring of insertion slots; the oldest slot is overwritten on
// each new id and its id forgotten if still live. maxSize <= 0 is unbounded.
type windowDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64 // id -> insertion sequence
	ring    []slot
	next    uint64
	maxSize int
}

// NewInMemoryDeduper creates a deduper with the given options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &windowDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	if d.maxSize > 0 {
		d.ring = make([]slot, d.maxSize)
	}
	return d
}

func (d *windowDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	d.next++
	if d.ring != nil {
		i := d.next % uint64(len(d.ring))
		if old := d.ring[i]; old.seq != 0 && d.seen[old.id] == old.seq {
			delete(d.seen, old.id)
		}
		d.ring[i] = slot{id: id, seq: d.next}
	}
	d.seen[id] = d.next
	return false
}

func (d *windowDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

func (d *windowDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
