package automod

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wardenbot/warden/automod/caselog"
	"github.com/wardenbot/warden/automod/engine"
	"github.com/wardenbot/warden/automod/gateway"
	"github.com/wardenbot/warden/automod/rulestore"

	"github.com/stretchr/testify/assert"
)

type scenario struct {
	eng   *Engine
	store *rulestore.MemRuleStore
	gw    *gateway.MemGateway
	cases *caselog.MemCaseLog
}

func newScenario(rules ...rulestore.StoredRule) scenario {
	store := rulestore.NewMemRuleStore()
	for _, r := range rules {
		store.AddRule(r)
	}
	gw := gateway.NewMemGateway()
	cases := caselog.NewMemCaseLog()
	eng, _ := NewEngine(EngineConfig{
		Rules:   store,
		Cases:   cases,
		Gateway: gw,
	}, nil)
	return scenario{eng: eng, store: store, gw: gw, cases: cases}
}

func TestNewAccountInviteUsername(t *testing.T) {
	assert := assert.New(t)
	now := time.Now()
	s := newScenario(engine.RuleFixture("g1", "r1", engine.RuleUsernamePattern, engine.ActionKick, 1, map[string]any{
		"pattern":           `discord\.gg`,
		"minAccountAgeDays": 7,
	}))

	v, err := s.eng.OnMemberJoin(context.Background(), Member{
		GuildID:          "g1",
		UserID:           "u1",
		Username:         "joinme_discord.gg/x",
		AccountCreatedAt: now.Add(-24 * time.Hour),
	})
	assert.NoError(err)
	if assert.NotNil(v) {
		assert.Contains(v.Reason, "too new")
	}
	assert.Len(s.gw.Calls(), 1)
	assert.Len(s.cases.Cases(), 1)
}

func TestMessageFlood(t *testing.T) {
	assert := assert.New(t)
	start := time.Now()
	s := newScenario(engine.RuleFixture("g1", "r1", engine.RuleMessageRate, engine.ActionTimeout, 1, map[string]any{
		"maxMessages":      5,
		"timeframeSeconds": 10,
	}))

	for i := 0; i < 6; i++ {
		msg := Message{ID: "m", GuildID: "g1", ChannelID: "c1", UserID: "u1", Content: strings.Repeat("x", i+1), Timestamp: start.Add(time.Duration(i) * time.Second)}
		v, err := s.eng.OnMessage(context.Background(), msg, false)
		assert.NoError(err)
		if i < 5 {
			assert.Nil(v, "message %d", i+1)
			continue
		}
		if assert.NotNil(v) {
			assert.True(strings.HasPrefix(v.Reason, "too many messages"))
		}
	}
	calls := s.gw.Calls()
	if assert.Len(calls, 2) {
		assert.Equal(gateway.OpDeleteMessage, calls[0].Op)
		assert.Equal(gateway.OpTimeout, calls[1].Op)
	}
}

func TestDuplicateSpam(t *testing.T) {
	assert := assert.New(t)
	start := time.Now()
	s := newScenario(engine.RuleFixture("g1", "r1", engine.RuleMessageRate, engine.ActionWarn, 1, map[string]any{
		"maxDuplicates":    2,
		"timeframeSeconds": 60,
	}))

	violations := 0
	for i := 0; i < 3; i++ {
		msg := Message{GuildID: "g1", ChannelID: "c1", UserID: "u1", Content: "spam", Timestamp: start.Add(time.Duration(i) * time.Second)}
		v, err := s.eng.OnMessage(context.Background(), msg, false)
		assert.NoError(err)
		if v != nil {
			violations++
			assert.Equal(2, i)
			assert.Contains(v.Reason, "duplicate")
		}
	}
	assert.Equal(1, violations)
	// warn only writes a case
	assert.Empty(s.gw.Calls())
	assert.Len(s.cases.Cases(), 1)
}

func TestBlockedAttachment(t *testing.T) {
	assert := assert.New(t)
	s := newScenario(engine.RuleFixture("g1", "r1", engine.RuleFileExtension, engine.ActionDelete, 1, map[string]any{
		"blockedExtensions": []string{"exe"},
	}))

	v, err := s.eng.OnMessage(context.Background(), Message{ID: "m1", GuildID: "g1", ChannelID: "c1", UserID: "u1", Attachments: []Attachment{{Filename: "virus.EXE"}}}, false)
	assert.NoError(err)
	if assert.NotNil(v) {
		assert.Equal("blocked file type: .exe", v.Reason)
	}
	assert.Len(s.gw.Calls(), 1)
}

func TestNoActiveRules(t *testing.T) {
	assert := assert.New(t)
	inactive := engine.RuleFixture("g1", "r1", engine.RuleFileExtension, engine.ActionBan, 1, map[string]any{"blockedExtensions": []string{"exe"}})
	inactive.Active = false
	s := newScenario(inactive)

	v, err := s.eng.OnMessage(context.Background(), Message{ID: "m1", GuildID: "g1", ChannelID: "c1", UserID: "u1", Content: "hello", Attachments: []Attachment{{Filename: "virus.exe"}}}, false)
	assert.NoError(err)
	assert.Nil(v)
	assert.Empty(s.gw.Calls())
	assert.Empty(s.cases.Cases())
}

func TestReloadPicksUpNewRules(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newScenario()

	msg := Message{ID: "m1", GuildID: "g1", ChannelID: "c1", UserID: "u1", Attachments: []Attachment{{Filename: "run.bat"}}}
	v, err := s.eng.OnMessage(ctx, msg, false)
	assert.NoError(err)
	assert.Nil(v)

	s.store.AddRule(engine.RuleFixture("g1", "r1", engine.RuleFileExtension, engine.ActionDelete, 1, map[string]any{"blockedExtensions": []string{".BAT"}}))
	v, err = s.eng.OnMessage(ctx, msg, false)
	assert.NoError(err)
	assert.Nil(v)

	s.eng.Reload("g1")
	v, err = s.eng.OnMessage(ctx, msg, false)
	assert.NoError(err)
	assert.NotNil(v)
}

func TestActivityBoundsRejectRateRules(t *testing.T) {
	assert := assert.New(t)
	store := rulestore.NewMemRuleStore()
	store.AddRule(engine.RuleFixture("g1", "too-big", engine.RuleMessageRate, engine.ActionTimeout, 1, map[string]any{
		"maxMessages":      10,
		"timeframeSeconds": 10,
	}))
	store.AddRule(engine.RuleFixture("g1", "fits", engine.RuleMessageRate, engine.ActionWarn, 2, map[string]any{
		"maxMessages":      9,
		"timeframeSeconds": 10,
	}))
	_, cache := NewEngine(EngineConfig{
		Rules:            store,
		Cases:            caselog.NewMemCaseLog(),
		Gateway:          gateway.NewMemGateway(),
		ActivityCapacity: 10,
	}, nil)

	snap := cache.Load(context.Background(), "g1")
	assert.Equal(1, snap.Skipped)
	if assert.Len(snap.Rules, 1) {
		assert.Equal("fits", snap.Rules[0].ID)
	}
}
