package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenbot/warden/automod/activity"
	"github.com/wardenbot/warden/automod/caselog"
	"github.com/wardenbot/warden/automod/countstore"
	"github.com/wardenbot/warden/automod/gateway"
	"github.com/wardenbot/warden/automod/rulestore"

	"github.com/goccy/go-json"
)

// Fixed rule source for tests and static configurations; no fetching or expiry.
type StaticRules struct {
	mu          sync.Mutex
	rules       map[string][]Rule
	invalidated []string
}

var _ RuleSource = (*StaticRules)(nil)

func NewStaticRules() *StaticRules {
	return &StaticRules{rules: make(map[string][]Rule)}
}

// Compiles and sorts the stored rules for a guild, as a cache refresh would.
func (s *StaticRules) Set(guildID string, stored []rulestore.StoredRule) int {
	rules, skipped := CompileRules(stored, DefaultTrackerLimits(), nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[guildID] = rules
	return skipped
}

func (s *StaticRules) Get(ctx context.Context, guildID string) []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules[guildID]
}

func (s *StaticRules) Invalidate(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, guildID)
}

func (s *StaticRules) Invalidated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.invalidated...)
}

// Builds a stored rule with the given config document, active and at the given priority.
func RuleFixture(guildID, id string, ruleType RuleType, action Action, priority int, config any) rulestore.StoredRule {
	raw, err := json.Marshal(config)
	if err != nil {
		panic(err)
	}
	return rulestore.StoredRule{
		ID:        id,
		GuildID:   guildID,
		Type:      string(ruleType),
		Config:    raw,
		Action:    string(action),
		Priority:  priority,
		Active:    true,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Engine wired to in-memory collaborators, along with handles to inspect them.
type TestFixture struct {
	Engine   *Engine
	Rules    *StaticRules
	Gateway  *gateway.MemGateway
	Cases    *caselog.MemCaseLog
	Counters *countstore.MemCountStore
}

func EngineTestFixture() TestFixture {
	gw := gateway.NewMemGateway()
	cases := caselog.NewMemCaseLog()
	counters := countstore.NewMemCountStore()
	rules := NewStaticRules()
	eng := &Engine{
		Logger:  slog.Default(),
		Rules:   rules,
		Tracker: activity.NewTracker(activity.DefaultCapacity),
		Executor: &ActionExecutor{
			Gateway:  gw,
			Cases:    cases,
			Counters: counters,
			Logger:   slog.Default(),
		},
		Counters: counters,
	}
	return TestFixture{
		Engine:   eng,
		Rules:    rules,
		Gateway:  gw,
		Cases:    cases,
		Counters: counters,
	}
}
