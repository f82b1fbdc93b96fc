package rulestore

import (
	"context"
	"sync"
)

// In-process rule store, mostly for tests and static configuration.
type MemRuleStore struct {
	mu    sync.Mutex
	rules map[string][]StoredRule
	err   error
	calls int
}

var _ RuleStore = (*MemRuleStore)(nil)

func NewMemRuleStore() *MemRuleStore {
	return &MemRuleStore{
		rules: make(map[string][]StoredRule),
	}
}

func (s *MemRuleStore) GetRules(ctx context.Context, guildID string) ([]StoredRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]StoredRule, len(s.rules[guildID]))
	copy(out, s.rules[guildID])
	return out, nil
}

// Replaces the full rule list for a guild.
func (s *MemRuleStore) SetRules(guildID string, rules []StoredRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[guildID] = rules
}

func (s *MemRuleStore) AddRule(rule StoredRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.GuildID] = append(s.rules[rule.GuildID], rule)
}

// Causes all subsequent GetRules calls to fail with err (or succeed again, if nil).
func (s *MemRuleStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Number of GetRules calls so far.
func (s *MemRuleStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
