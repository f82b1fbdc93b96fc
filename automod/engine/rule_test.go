package engine

import (
	"math"
	"testing"
	"time"

	"github.com/wardenbot/warden/automod/rulestore"

	"github.com/stretchr/testify/assert"
)

func TestCompileRule(t *testing.T) {
	assert := assert.New(t)

	r, err := CompileRule(RuleFixture("g1", "r1", RuleUsernamePattern, ActionBan, 1, map[string]any{
		"pattern":           `discord\.gg`,
		"minAccountAgeDays": 7,
	}), DefaultTrackerLimits())
	assert.NoError(err)
	cfg := r.UsernamePattern()
	if assert.NotNil(cfg) {
		assert.True(cfg.Match("JOIN_DISCORD.GG/x"))
		assert.False(cfg.Match("discordxgg"))
		assert.Equal(7, cfg.MinAccountAgeDays)
	}
	assert.Nil(r.MessageRate())
	assert.Equal(DefaultTimeoutDuration, r.TimeoutDuration)

	r, err = CompileRule(RuleFixture("g1", "r2", RuleFileExtension, ActionDelete, 1, map[string]any{
		"blockedExtensions": []string{".EXE", "bat", "exe", " "},
	}), DefaultTrackerLimits())
	assert.NoError(err)
	if assert.NotNil(r.FileExtension()) {
		assert.Equal([]string{"exe", "bat"}, r.FileExtension().BlockedExtensions)
		assert.True(r.FileExtension().Blocks("exe"))
	}

	r, err = CompileRule(RuleFixture("g1", "r3", RuleMessageRate, ActionTimeout, 1, map[string]any{
		"maxMessages":            5,
		"timeframeSeconds":       10,
		"timeoutDurationMinutes": 60 * 24 * 365,
	}), DefaultTrackerLimits())
	assert.NoError(err)
	if assert.NotNil(r.MessageRate()) {
		assert.Equal(10*time.Second, r.MessageRate().Timeframe)
	}
	assert.Equal(MaxTimeoutDuration, r.TimeoutDuration)

	// large enough to wrap around if converted before clamping
	r, err = CompileRule(RuleFixture("g1", "r4", RuleMessageRate, ActionTimeout, 1, map[string]any{
		"maxMessages":            5,
		"timeframeSeconds":       10,
		"timeoutDurationMinutes": math.MaxInt64 / 1000,
	}), DefaultTrackerLimits())
	assert.NoError(err)
	assert.Equal(MaxTimeoutDuration, r.TimeoutDuration)
}

func TestCompileRuleTrackerLimits(t *testing.T) {
	assert := assert.New(t)
	limits := TrackerLimits{Capacity: 100, MaxAge: 10 * time.Minute}

	unenforceable := []rulestore.StoredRule{
		RuleFixture("g1", "too-many-messages", RuleMessageRate, ActionTimeout, 1, map[string]any{"maxMessages": 150, "timeframeSeconds": 60}),
		RuleFixture("g1", "at-capacity", RuleMessageRate, ActionTimeout, 1, map[string]any{"maxMessages": 100, "timeframeSeconds": 60}),
		RuleFixture("g1", "too-many-duplicates", RuleMessageRate, ActionDelete, 1, map[string]any{"maxDuplicates": 100, "timeframeSeconds": 60}),
		RuleFixture("g1", "too-long", RuleMessageRate, ActionWarn, 1, map[string]any{"maxChannels": 3, "timeframeSeconds": 3600}),
	}
	for _, sr := range unenforceable {
		_, err := CompileRule(sr, limits)
		assert.ErrorIs(err, ErrInvalidRuleConfig, sr.ID)
	}

	// largest limits that can still be exceeded
	_, err := CompileRule(RuleFixture("g1", "fits", RuleMessageRate, ActionTimeout, 1, map[string]any{
		"maxMessages":      99,
		"maxDuplicates":    99,
		"timeframeSeconds": 600,
	}), limits)
	assert.NoError(err)

	// zero limits skip the check
	_, err = CompileRule(unenforceable[0], TrackerLimits{})
	assert.NoError(err)

	rules, skipped := CompileRules(append(unenforceable, RuleFixture("g1", "ok", RuleMessageRate, ActionWarn, 2, map[string]any{"maxMessages": 5, "timeframeSeconds": 10})), limits, nil)
	assert.Equal(len(unenforceable), skipped)
	if assert.Len(rules, 1) {
		assert.Equal("ok", rules[0].ID)
	}
}

func TestCompileRuleInvalid(t *testing.T) {
	assert := assert.New(t)

	bad := []rulestore.StoredRule{
		RuleFixture("g1", "empty-pattern", RuleUsernamePattern, ActionBan, 1, map[string]any{"pattern": ""}),
		RuleFixture("g1", "bad-regex", RuleUsernamePattern, ActionBan, 1, map[string]any{"pattern": "(unclosed"}),
		RuleFixture("g1", "no-timeframe", RuleMessageRate, ActionWarn, 1, map[string]any{"maxMessages": 3}),
		RuleFixture("g1", "no-limits", RuleMessageRate, ActionWarn, 1, map[string]any{"timeframeSeconds": 3}),
		RuleFixture("g1", "no-exts", RuleFileExtension, ActionDelete, 1, map[string]any{"blockedExtensions": []string{}}),
		RuleFixture("g1", "bad-type", RuleType("emoji_spam"), ActionWarn, 1, map[string]any{}),
		RuleFixture("g1", "bad-action", RuleFileExtension, Action("explode"), 1, map[string]any{"blockedExtensions": []string{"exe"}}),
	}
	malformed := RuleFixture("g1", "malformed", RuleFileExtension, ActionDelete, 1, nil)
	malformed.Config = []byte(`{"blockedExtensions": [`)
	bad = append(bad, malformed)

	for _, sr := range bad {
		_, err := CompileRule(sr, DefaultTrackerLimits())
		assert.ErrorIs(err, ErrInvalidRuleConfig, sr.ID)
	}
}

func TestCompileRulesIsolatesFailures(t *testing.T) {
	assert := assert.New(t)

	inactive := RuleFixture("g1", "inactive", RuleFileExtension, ActionDelete, 0, map[string]any{"blockedExtensions": []string{"exe"}})
	inactive.Active = false
	later := RuleFixture("g1", "later", RuleFileExtension, ActionDelete, 5, map[string]any{"blockedExtensions": []string{"exe"}})
	later.CreatedAt = later.CreatedAt.Add(time.Hour)

	stored := []rulestore.StoredRule{
		later,
		RuleFixture("g1", "bad", RuleUsernamePattern, ActionBan, 1, map[string]any{"pattern": "[z-a]"}),
		inactive,
		RuleFixture("g1", "first", RuleUsernamePattern, ActionBan, 1, map[string]any{"pattern": "spam"}),
		RuleFixture("g1", "tie", RuleFileExtension, ActionDelete, 5, map[string]any{"blockedExtensions": []string{"bat"}}),
	}
	rules, skipped := CompileRules(stored, DefaultTrackerLimits(), nil)
	assert.Equal(1, skipped)

	ids := []string{}
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	// priority ascending, then creation time
	assert.Equal([]string{"first", "tie", "later"}, ids)
}
