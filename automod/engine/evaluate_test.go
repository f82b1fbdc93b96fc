package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/wardenbot/warden/automod/activity"
	"github.com/wardenbot/warden/automod/rulestore"

	"github.com/stretchr/testify/assert"
)

func mustCompile(t *testing.T, stored ...rulestore.StoredRule) []Rule {
	rules, skipped := CompileRules(stored, DefaultTrackerLimits(), nil)
	if skipped != 0 {
		t.Fatalf("unexpected invalid rules: %d", skipped)
	}
	return rules
}

func TestEvaluateUsername(t *testing.T) {
	assert := assert.New(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	rules := mustCompile(t,
		RuleFixture("g1", "new-invite", RuleUsernamePattern, ActionBan, 1, map[string]any{"pattern": `discord\.gg`, "minAccountAgeDays": 7}),
		RuleFixture("g1", "faceless", RuleUsernamePattern, ActionKick, 2, map[string]any{"pattern": "^free", "requireNoAvatar": true}),
		RuleFixture("g1", "anything-admin", RuleUsernamePattern, ActionWarn, 3, map[string]any{"pattern": "admin"}),
	)

	m := Member{GuildID: "g1", UserID: "u1", Username: "joinme_discord.gg/x", AccountCreatedAt: now.Add(-24 * time.Hour)}
	v := EvaluateUsername(m, rules, now)
	if assert.NotNil(v) {
		assert.Equal("new-invite", v.Rule.ID)
		assert.Contains(v.Reason, "too new")
	}

	// old enough account: age-gated rule does not apply
	m.AccountCreatedAt = now.Add(-30 * 24 * time.Hour)
	assert.Nil(EvaluateUsername(m, rules, now))

	// unknown creation time never satisfies an age condition
	m.AccountCreatedAt = time.Time{}
	assert.Nil(EvaluateUsername(m, rules, now))

	m = Member{GuildID: "g1", UserID: "u2", Username: "FreeNitro", AvatarHash: "abc"}
	assert.Nil(EvaluateUsername(m, rules, now))
	m.AvatarHash = ""
	v = EvaluateUsername(m, rules, now)
	if assert.NotNil(v) {
		assert.Equal("faceless", v.Rule.ID)
		assert.Contains(v.Reason, "no avatar")
	}

	// lowest priority among several matching rules wins
	m = Member{GuildID: "g1", UserID: "u3", Username: "free_admin"}
	v = EvaluateUsername(m, rules, now)
	if assert.NotNil(v) {
		assert.Equal("faceless", v.Rule.ID)
	}

	assert.Nil(EvaluateUsername(Member{Username: "regular"}, rules, now))
	assert.Nil(EvaluateUsername(m, nil, now))
}

func TestEvaluateMessageRateCount(t *testing.T) {
	assert := assert.New(t)
	tracker := activity.NewTracker(0)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rules := mustCompile(t, RuleFixture("g1", "rate", RuleMessageRate, ActionTimeout, 1, map[string]any{"maxMessages": 5, "timeframeSeconds": 10}))

	for i := 0; i < 5; i++ {
		v := EvaluateMessageRate(tracker, "g1/u1", "c1", "hello "+string(rune('a'+i)), rules, now.Add(time.Duration(i)*time.Second))
		assert.Nil(v, "message %d", i+1)
	}
	v := EvaluateMessageRate(tracker, "g1/u1", "c1", "hello f", rules, now.Add(5*time.Second))
	if assert.NotNil(v) {
		assert.Equal("too many messages: 6 in 10 s", v.Reason)
	}

	// other subjects are unaffected
	assert.Nil(EvaluateMessageRate(tracker, "g1/u2", "c1", "hi", rules, now.Add(5*time.Second)))

	// old messages fall out of the window
	assert.Nil(EvaluateMessageRate(tracker, "g1/u3", "c1", "a", rules, now))
	for i := 0; i < 5; i++ {
		assert.Nil(EvaluateMessageRate(tracker, "g1/u3", "c1", "b", rules, now.Add(time.Minute)))
	}
}

func TestEvaluateMessageRateDuplicates(t *testing.T) {
	assert := assert.New(t)
	tracker := activity.NewTracker(0)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rules := mustCompile(t, RuleFixture("g1", "dupes", RuleMessageRate, ActionDelete, 1, map[string]any{"maxDuplicates": 2, "timeframeSeconds": 30}))

	assert.Nil(EvaluateMessageRate(tracker, "g1/u1", "c1", "spam", rules, now))
	assert.Nil(EvaluateMessageRate(tracker, "g1/u1", "c1", "something else", rules, now.Add(time.Second)))
	assert.Nil(EvaluateMessageRate(tracker, "g1/u1", "c1", "SPAM", rules, now.Add(2*time.Second)))
	v := EvaluateMessageRate(tracker, "g1/u1", "c2", "Spam", rules, now.Add(3*time.Second))
	if assert.NotNil(v) {
		assert.True(strings.HasPrefix(v.Reason, "duplicate message spam"))
	}
}

func TestEvaluateMessageRateChannels(t *testing.T) {
	assert := assert.New(t)
	tracker := activity.NewTracker(0)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rules := mustCompile(t, RuleFixture("g1", "channels", RuleMessageRate, ActionWarn, 1, map[string]any{"maxChannels": 2, "timeframeSeconds": 30}))

	assert.Nil(EvaluateMessageRate(tracker, "g1/u1", "c1", "a", rules, now))
	assert.Nil(EvaluateMessageRate(tracker, "g1/u1", "c2", "b", rules, now))
	assert.Nil(EvaluateMessageRate(tracker, "g1/u1", "c2", "c", rules, now))
	v := EvaluateMessageRate(tracker, "g1/u1", "c3", "d", rules, now)
	if assert.NotNil(v) {
		assert.Equal("channel spam: 3 channels in 30 s", v.Reason)
	}
}

func TestEvaluateMessageRateOrder(t *testing.T) {
	assert := assert.New(t)
	tracker := activity.NewTracker(0)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// count is checked before duplicates within a rule; the lower priority rule wins across rules
	rules := mustCompile(t,
		RuleFixture("g1", "second", RuleMessageRate, ActionBan, 2, map[string]any{"maxMessages": 1, "timeframeSeconds": 10}),
		RuleFixture("g1", "first", RuleMessageRate, ActionWarn, 1, map[string]any{"maxMessages": 1, "maxDuplicates": 1, "timeframeSeconds": 10}),
	)
	assert.Nil(EvaluateMessageRate(tracker, "g1/u1", "c1", "x", rules, now))
	v := EvaluateMessageRate(tracker, "g1/u1", "c1", "x", rules, now)
	if assert.NotNil(v) {
		assert.Equal("first", v.Rule.ID)
		assert.True(strings.HasPrefix(v.Reason, "too many messages"))
	}

	// recording happens even with no rules
	assert.Nil(EvaluateMessageRate(tracker, "g1/u9", "c1", "x", nil, now))
	assert.Len(tracker.Window("g1/u9", time.Minute, now), 1)
}

func TestEvaluateAttachments(t *testing.T) {
	assert := assert.New(t)
	rules := mustCompile(t,
		RuleFixture("g1", "exe", RuleFileExtension, ActionDelete, 1, map[string]any{"blockedExtensions": []string{"exe"}}),
		RuleFixture("g1", "scripts", RuleFileExtension, ActionWarn, 2, map[string]any{"blockedExtensions": []string{".BAT", ".sh"}}),
	)

	assert.Nil(EvaluateAttachments(nil, rules))
	assert.Nil(EvaluateAttachments([]Attachment{{Filename: "cat.png"}, {Filename: "README"}}, rules))

	v := EvaluateAttachments([]Attachment{{Filename: "virus.EXE"}}, rules)
	if assert.NotNil(v) {
		assert.Equal("exe", v.Rule.ID)
		assert.Equal("blocked file type: .exe", v.Reason)
	}

	v = EvaluateAttachments([]Attachment{{Filename: "run.bat"}, {Filename: "setup.exe"}}, rules)
	if assert.NotNil(v) {
		assert.Equal("exe", v.Rule.ID)
	}

	v = EvaluateAttachments([]Attachment{{Filename: "install.Sh"}}, rules)
	if assert.NotNil(v) {
		assert.Equal("scripts", v.Rule.ID)
		assert.Equal("blocked file type: .sh", v.Reason)
	}
}

func TestFileExtension(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("exe", FileExtension("virus.EXE"))
	assert.Equal("gz", FileExtension("archive.tar.gz"))
	assert.Equal("", FileExtension("Makefile"))
	assert.Equal("", FileExtension("trailing."))
	assert.Equal("bashrc", FileExtension(".bashrc"))
}
