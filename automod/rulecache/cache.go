// Automod component for caching each guild's compiled rules.
//
// Readers always get an immutable snapshot; refreshes build a new snapshot and swap it in. When the rule store can't be reached, the cache serves the last rules it had (or none), so enforcement fails open rather than blocking events.
package rulecache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/wardenbot/warden/automod/engine"
	"github.com/wardenbot/warden/automod/rulestore"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL          = 300 * time.Second
	DefaultFetchTimeout = 5 * time.Second
	DefaultFetchRetries = 2
	DefaultRetryBackoff = 250 * time.Millisecond
	// how long a failed fetch is remembered before the store is tried again
	DefaultFailureTTL = 30 * time.Second
)

// Immutable view of a guild's rules at a point in time.
type Snapshot struct {
	GuildID string
	Rules   []engine.Rule
	// number of active stored rules which failed to compile
	Skipped   int
	FetchedAt time.Time
	ExpiresAt time.Time
	// false when this is a fallback after a failed fetch
	Healthy bool

	gen uint64
}

type Config struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	FetchRetries int
	RetryBackoff time.Duration
	FailureTTL   time.Duration
	// rate rules which cannot fit in the tracked activity are skipped. zero for the tracker defaults
	Limits engine.TrackerLimits
}

type Cache struct {
	Store  rulestore.RuleStore
	Logger *slog.Logger
	Now    func() time.Time

	ttl          time.Duration
	fetchTimeout time.Duration
	fetchRetries int
	retryBackoff time.Duration
	failureTTL   time.Duration
	limits       engine.TrackerLimits

	snaps *xsync.MapOf[string, *Snapshot]
	group singleflight.Group

	// per-guild invalidation generation. a fetch only produces a fresh snapshot for the generation it started under
	genMu sync.Mutex
	gens  map[string]uint64
}

var _ engine.RuleSource = (*Cache)(nil)

func NewCache(store rulestore.RuleStore, cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		Store:        store,
		Logger:       logger.With("component", "rulecache"),
		Now:          time.Now,
		ttl:          cfg.TTL,
		fetchTimeout: cfg.FetchTimeout,
		fetchRetries: cfg.FetchRetries,
		retryBackoff: cfg.RetryBackoff,
		failureTTL:   cfg.FailureTTL,
		limits:       cfg.Limits,
		snaps:        xsync.NewMapOf[string, *Snapshot](),
		gens:         make(map[string]uint64),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = DefaultFetchTimeout
	}
	if c.fetchRetries < 0 {
		c.fetchRetries = 0
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = DefaultRetryBackoff
	}
	if c.failureTTL <= 0 {
		c.failureTTL = DefaultFailureTTL
	}
	if c.limits == (engine.TrackerLimits{}) {
		c.limits = engine.DefaultTrackerLimits()
	}
	return c
}

func (c *Cache) generation(guildID string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.gens[guildID]
}

// Returns the guild's compiled rules in evaluation order, fetching them if the cached set is expired or invalidated.
//
// Never fails: on fetch failure returns the last known rules, or none. The returned slice must not be modified.
func (c *Cache) Get(ctx context.Context, guildID string) []engine.Rule {
	return c.get(ctx, guildID).Rules
}

func (c *Cache) get(ctx context.Context, guildID string) *Snapshot {
	gen := c.generation(guildID)
	if snap, ok := c.snaps.Load(guildID); ok && snap.gen == gen && c.Now().Before(snap.ExpiresAt) {
		cacheHits.Inc()
		return snap
	}
	cacheMisses.Inc()

	key := guildID + "#" + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.refresh(ctx, guildID, gen), nil
	})
	select {
	case res := <-ch:
		return res.Val.(*Snapshot)
	case <-ctx.Done():
		// caller gave up waiting; serve whatever is on hand
		if snap, ok := c.snaps.Load(guildID); ok {
			return snap
		}
		return &Snapshot{GuildID: guildID}
	}
}

// Fetches and compiles rules, then stores the resulting snapshot (fresh on success, fallback on failure).
func (c *Cache) refresh(ctx context.Context, guildID string, gen uint64) *Snapshot {
	logger := c.Logger.With("guild", guildID)
	// shared fetch: one waiter cancelling must not fail the others
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	stored, err := c.fetch(ctx, guildID)
	fetchDuration.Observe(time.Since(start).Seconds())
	now := c.Now()

	var snap *Snapshot
	if err != nil {
		fetchErrors.Inc()
		snap = &Snapshot{
			GuildID:   guildID,
			Rules:     nil,
			FetchedAt: now,
			ExpiresAt: now.Add(c.failureTTL),
			gen:       gen,
		}
		if prev, ok := c.snaps.Load(guildID); ok {
			snap.Rules = prev.Rules
			snap.Skipped = prev.Skipped
			snap.FetchedAt = prev.FetchedAt
		}
		logger.Warn("failed to fetch automod rules, serving last known rules", "err", err, "rules", len(snap.Rules))
	} else {
		rules, skipped := engine.CompileRules(stored, c.limits, logger)
		snap = &Snapshot{
			GuildID:   guildID,
			Rules:     rules,
			Skipped:   skipped,
			FetchedAt: now,
			ExpiresAt: now.Add(c.ttl),
			Healthy:   true,
			gen:       gen,
		}
		logger.Debug("loaded automod rules", "rules", len(rules), "skipped", skipped)
	}

	// never replace a snapshot from a newer generation with this one
	c.snaps.Compute(guildID, func(old *Snapshot, loaded bool) (*Snapshot, bool) {
		if loaded && old.gen > gen {
			return old, false
		}
		return snap, false
	})
	return snap
}

func (c *Cache) fetch(ctx context.Context, guildID string) ([]rulestore.StoredRule, error) {
	var lastErr error
	for attempt := 0; attempt <= c.fetchRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * c.retryBackoff)
		}
		actx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		stored, err := c.Store.GetRules(actx, guildID)
		cancel()
		if err == nil {
			return stored, nil
		}
		lastErr = err
		c.Logger.Debug("automod rule fetch attempt failed", "guild", guildID, "attempt", attempt+1, "err", err)
	}
	return nil, fmt.Errorf("fetching rules for guild %s: %w", guildID, lastErr)
}

// Marks the guild's cached rules stale, so the next Get re-fetches. The stale rules are kept only as a fallback.
//
// A fetch already in flight when this is called can't produce a fresh entry.
func (c *Cache) Invalidate(guildID string) {
	c.genMu.Lock()
	c.gens[guildID]++
	c.genMu.Unlock()
	invalidations.Inc()
	c.Logger.Debug("invalidated automod rules", "guild", guildID)
}

// Currently cached snapshot for the guild, without fetching.
func (c *Cache) Snapshot(guildID string) (*Snapshot, bool) {
	return c.snaps.Load(guildID)
}

// Whether the snapshot is current: unexpired and not invalidated since it was fetched.
func (c *Cache) Fresh(snap *Snapshot) bool {
	return snap != nil && snap.gen == c.generation(snap.GuildID) && c.Now().Before(snap.ExpiresAt)
}

// Snapshot for the guild, fetching if needed. Used by diagnostics which want the fetch metadata.
func (c *Cache) Load(ctx context.Context, guildID string) *Snapshot {
	return c.get(ctx, guildID)
}

// Number of guilds with a cached snapshot.
func (c *Cache) Len() int {
	return c.snaps.Size()
}
