package countstore

import (
	"context"
	"sync"
	"time"
)

const (
	// same retention as the redis store
	hourBucketTTL = 2 * time.Hour
	dayBucketTTL  = 48 * time.Hour
	purgeInterval = time.Minute
)

type MemCountStore struct {
	mu     sync.Mutex
	counts map[string]int
	// expiry of hour and day buckets; totals are kept forever
	expires   map[string]time.Time
	lastPurge time.Time
	now       func() time.Time
}

var _ CountStore = (*MemCountStore)(nil)

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		counts:  make(map[string]int),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[periodBucket(name, val, period, s.now())], nil
}

func (s *MemCountStore) Increment(ctx context.Context, name, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	key := periodBucket(name, val, PeriodHour, now)
	s.counts[key]++
	s.expires[key] = now.Add(hourBucketTTL)

	key = periodBucket(name, val, PeriodDay, now)
	s.counts[key]++
	s.expires[key] = now.Add(dayBucketTTL)

	s.counts[periodBucket(name, val, PeriodTotal, now)]++

	if now.Sub(s.lastPurge) >= purgeInterval {
		s.purge(now)
	}
	return nil
}

// drops expired buckets. caller must hold mu
func (s *MemCountStore) purge(now time.Time) {
	for key, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, key)
			delete(s.counts, key)
		}
	}
	s.lastPurge = now
}

func (s *MemCountStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counts)
}
