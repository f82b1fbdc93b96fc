package activity

import (
	"fmt"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/spaolacci/murmur3"
)

const (
	// number of recent events retained per subject
	DefaultCapacity = 100
	// events older than this are removed by Sweep
	DefaultMaxAge = 10 * time.Minute
	// how often the hosting process is expected to call Sweep
	DefaultSweepInterval = 5 * time.Minute
)

// A single inbound message, reduced to what rate and duplicate checks need.
type Event struct {
	UserID      string
	ChannelID   string
	Fingerprint string
	Timestamp   time.Time
}

// Concurrency-safe store of recent activity, keyed by subject.
//
// Mutations for a single subject are serialized; different subjects never contend on the same lock.
type Tracker struct {
	capacity int
	buckets  *xsync.MapOf[string, *ring]
}

func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		capacity: capacity,
		buckets:  xsync.NewMapOf[string, *ring](),
	}
}

// Returns a compact hash of message text, after lower-casing.
//
// current implementation uses murmur3, default seed, and hex encoding
func Fingerprint(content string) string {
	val := murmur3.Sum64([]byte(strings.ToLower(content)))
	return fmt.Sprintf("%016x", val)
}

// Appends an event to the subject's buffer, dropping the oldest entry if at capacity.
func (t *Tracker) Record(subject, channelID, content string, now time.Time) {
	ev := Event{
		UserID:      subject,
		ChannelID:   channelID,
		Fingerprint: Fingerprint(content),
		Timestamp:   now,
	}
	// Compute holds the map bucket lock for this key, which serializes writers with each other and with Sweep
	t.buckets.Compute(subject, func(r *ring, loaded bool) (*ring, bool) {
		if !loaded {
			r = newRing(t.capacity)
		}
		r.mu.Lock()
		r.push(ev)
		r.mu.Unlock()
		return r, false
	})
}

// Returns events for the subject with timestamp >= now - since, oldest first.
//
// The returned slice is a copy and may be retained by the caller.
func (t *Tracker) Window(subject string, since time.Duration, now time.Time) []Event {
	r, ok := t.buckets.Load(subject)
	if !ok {
		return []Event{}
	}
	return r.since(now.Add(-since))
}

// Removes events older than maxAge across all subjects, and deletes any subject left empty. Returns the number of events removed.
//
// Each subject is pruned in its own short critical section; Record and Window calls for other subjects proceed concurrently.
func (t *Tracker) Sweep(now time.Time, maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cutoff := now.Add(-maxAge)

	var subjects []string
	t.buckets.Range(func(k string, _ *ring) bool {
		subjects = append(subjects, k)
		return true
	})

	removed := 0
	for _, subject := range subjects {
		t.buckets.Compute(subject, func(r *ring, loaded bool) (*ring, bool) {
			if !loaded {
				return r, true
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			removed += r.prune(cutoff)
			return r, r.count == 0
		})
	}

	trackedSubjects.Set(float64(t.buckets.Size()))
	prunedEvents.Add(float64(removed))
	return removed
}

// Number of subjects currently holding at least one event.
func (t *Tracker) Len() int {
	return t.buckets.Size()
}
