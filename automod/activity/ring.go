package activity

import (
	"sync"
	"time"
)

// fixed-capacity FIFO of events. the oldest entry is overwritten when full.
type ring struct {
	mu    sync.Mutex
	items []Event
	pos   int
	count int
}

func newRing(capacity int) *ring {
	return &ring{
		items: make([]Event, capacity),
	}
}

// caller must hold mu
func (r *ring) push(ev Event) {
	r.items[r.pos] = ev
	r.pos = (r.pos + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

// caller must hold mu
func (r *ring) each(fn func(ev Event)) {
	start := (r.pos - r.count + len(r.items)) % len(r.items)
	for i := 0; i < r.count; i++ {
		fn(r.items[(start+i)%len(r.items)])
	}
}

// returns a copy of all events with timestamp at or after cutoff, oldest first
func (r *ring) since(cutoff time.Time) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, 0, r.count)
	r.each(func(ev Event) {
		if !ev.Timestamp.Before(cutoff) {
			out = append(out, ev)
		}
	})
	return out
}

// drops events older than cutoff, returning the number removed. caller must hold mu
func (r *ring) prune(cutoff time.Time) int {
	kept := make([]Event, 0, r.count)
	r.each(func(ev Event) {
		if !ev.Timestamp.Before(cutoff) {
			kept = append(kept, ev)
		}
	})
	removed := r.count - len(kept)
	if removed == 0 {
		return 0
	}
	clear(r.items)
	copy(r.items, kept)
	r.count = len(kept)
	r.pos = len(kept) % len(r.items)
	return removed
}
