package engine

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/wardenbot/warden/automod/activity"
	"github.com/wardenbot/warden/automod/rulestore"

	"github.com/goccy/go-json"
)

type RuleType string

const (
	RuleUsernamePattern RuleType = "username_pattern"
	RuleMessageRate     RuleType = "message_rate"
	RuleFileExtension   RuleType = "file_extension"
)

type Action string

const (
	ActionWarn    Action = "warn"
	ActionDelete  Action = "delete"
	ActionTimeout Action = "timeout"
	ActionKick    Action = "kick"
	ActionBan     Action = "ban"
)

const (
	DefaultTimeoutDuration = 10 * time.Minute
	// platform limit on member timeouts
	MaxTimeoutDuration = 28 * 24 * time.Hour
)

// Wrapped by every rule compilation failure. A rule failing to compile is skipped; the remaining rules still load.
var ErrInvalidRuleConfig = errors.New("invalid automod rule config")

// Bounds on the activity history kept for each member. A message rate rule is only enforceable when its limits fit inside them. Zero fields are not checked.
type TrackerLimits struct {
	// events retained per member
	Capacity int
	// events older than this are swept
	MaxAge time.Duration
}

func DefaultTrackerLimits() TrackerLimits {
	return TrackerLimits{Capacity: activity.DefaultCapacity, MaxAge: activity.DefaultMaxAge}
}

// Rejects rate limits the tracker could never observe being exceeded.
func (l TrackerLimits) check(cfg *MessageRateConfig) error {
	if l.Capacity > 0 {
		if cfg.MaxMessages >= l.Capacity {
			return fmt.Errorf("%w: maxMessages %d needs more than the %d tracked messages per member", ErrInvalidRuleConfig, cfg.MaxMessages, l.Capacity)
		}
		if cfg.MaxDuplicates >= l.Capacity {
			return fmt.Errorf("%w: maxDuplicates %d needs more than the %d tracked messages per member", ErrInvalidRuleConfig, cfg.MaxDuplicates, l.Capacity)
		}
	}
	if l.MaxAge > 0 && cfg.Timeframe > l.MaxAge {
		return fmt.Errorf("%w: timeframe %s is longer than the %s of tracked history", ErrInvalidRuleConfig, cfg.Timeframe, l.MaxAge)
	}
	return nil
}

// Type-specific configuration of a compiled rule. Implemented by *UsernamePatternConfig, *MessageRateConfig and *FileExtensionConfig.
type RuleConfig interface {
	ruleType() RuleType
}

type UsernamePatternConfig struct {
	Pattern           string
	MinAccountAgeDays int
	RequireNoAvatar   bool

	re *regexp.Regexp
}

func (c *UsernamePatternConfig) ruleType() RuleType { return RuleUsernamePattern }

// Case-insensitive search of the compiled pattern against name.
func (c *UsernamePatternConfig) Match(name string) bool {
	return c.re != nil && c.re.MatchString(name)
}

type MessageRateConfig struct {
	MaxMessages   int
	Timeframe     time.Duration
	MaxDuplicates int
	MaxChannels   int
}

func (c *MessageRateConfig) ruleType() RuleType { return RuleMessageRate }

type FileExtensionConfig struct {
	// normalized: lower case, no leading dot
	BlockedExtensions []string

	blocked map[string]bool
}

func (c *FileExtensionConfig) ruleType() RuleType { return RuleFileExtension }

func (c *FileExtensionConfig) Blocks(ext string) bool {
	return c.blocked[ext]
}

// A validated, ready-to-evaluate moderation rule.
type Rule struct {
	ID              string
	GuildID         string
	Type            RuleType
	Action          Action
	Priority        int
	Active          bool
	CreatedAt       time.Time
	TimeoutDuration time.Duration
	Config          RuleConfig
}

func (r *Rule) UsernamePattern() *UsernamePatternConfig {
	c, _ := r.Config.(*UsernamePatternConfig)
	return c
}

func (r *Rule) MessageRate() *MessageRateConfig {
	c, _ := r.Config.(*MessageRateConfig)
	return c
}

func (r *Rule) FileExtension() *FileExtensionConfig {
	c, _ := r.Config.(*FileExtensionConfig)
	return c
}

// union of all config document fields; which ones apply depends on rule type
type rawRuleConfig struct {
	Pattern                string   `json:"pattern"`
	MinAccountAgeDays      int      `json:"minAccountAgeDays"`
	RequireNoAvatar        bool     `json:"requireNoAvatar"`
	MaxMessages            int      `json:"maxMessages"`
	TimeframeSeconds       int      `json:"timeframeSeconds"`
	MaxDuplicates          int      `json:"maxDuplicates"`
	MaxChannels            int      `json:"maxChannels"`
	BlockedExtensions      []string `json:"blockedExtensions"`
	TimeoutDurationMinutes int      `json:"timeoutDurationMinutes"`
}

func parseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionWarn, ActionDelete, ActionTimeout, ActionKick, ActionBan:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidRuleConfig, s)
	}
}

// Validates a stored rule and compiles its config document. Message rate rules must also fit within limits.
func CompileRule(sr rulestore.StoredRule, limits TrackerLimits) (Rule, error) {
	rule := Rule{
		ID:        sr.ID,
		GuildID:   sr.GuildID,
		Type:      RuleType(sr.Type),
		Priority:  sr.Priority,
		Active:    sr.Active,
		CreatedAt: sr.CreatedAt,
	}

	action, err := parseAction(sr.Action)
	if err != nil {
		return rule, err
	}
	rule.Action = action

	var raw rawRuleConfig
	if len(sr.Config) > 0 && string(sr.Config) != "null" {
		if err := json.Unmarshal(sr.Config, &raw); err != nil {
			return rule, fmt.Errorf("%w: parsing config: %v", ErrInvalidRuleConfig, err)
		}
	}

	rule.TimeoutDuration = DefaultTimeoutDuration
	if raw.TimeoutDurationMinutes > 0 {
		// clamp before converting; large minute counts overflow a Duration
		minutes := min(raw.TimeoutDurationMinutes, int(MaxTimeoutDuration/time.Minute))
		rule.TimeoutDuration = time.Duration(minutes) * time.Minute
	}

	switch rule.Type {
	case RuleUsernamePattern:
		if strings.TrimSpace(raw.Pattern) == "" {
			return rule, fmt.Errorf("%w: empty username pattern", ErrInvalidRuleConfig)
		}
		re, err := regexp.Compile("(?i)" + raw.Pattern)
		if err != nil {
			return rule, fmt.Errorf("%w: bad username pattern: %v", ErrInvalidRuleConfig, err)
		}
		rule.Config = &UsernamePatternConfig{
			Pattern:           raw.Pattern,
			MinAccountAgeDays: raw.MinAccountAgeDays,
			RequireNoAvatar:   raw.RequireNoAvatar,
			re:                re,
		}
	case RuleMessageRate:
		if raw.TimeframeSeconds <= 0 {
			return rule, fmt.Errorf("%w: message rate timeframe must be positive", ErrInvalidRuleConfig)
		}
		if raw.MaxMessages <= 0 && raw.MaxDuplicates <= 0 && raw.MaxChannels <= 0 {
			return rule, fmt.Errorf("%w: message rate rule sets no limits", ErrInvalidRuleConfig)
		}
		if int64(raw.TimeframeSeconds) > math.MaxInt64/int64(time.Second) {
			return rule, fmt.Errorf("%w: message rate timeframe too large", ErrInvalidRuleConfig)
		}
		cfg := &MessageRateConfig{
			MaxMessages:   raw.MaxMessages,
			Timeframe:     time.Duration(raw.TimeframeSeconds) * time.Second,
			MaxDuplicates: raw.MaxDuplicates,
			MaxChannels:   raw.MaxChannels,
		}
		if err := limits.check(cfg); err != nil {
			return rule, err
		}
		rule.Config = cfg
	case RuleFileExtension:
		cfg := &FileExtensionConfig{blocked: make(map[string]bool)}
		for _, ext := range raw.BlockedExtensions {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext == "" || cfg.blocked[ext] {
				continue
			}
			cfg.blocked[ext] = true
			cfg.BlockedExtensions = append(cfg.BlockedExtensions, ext)
		}
		if len(cfg.BlockedExtensions) == 0 {
			return rule, fmt.Errorf("%w: empty extension blocklist", ErrInvalidRuleConfig)
		}
		rule.Config = cfg
	default:
		return rule, fmt.Errorf("%w: unknown rule type %q", ErrInvalidRuleConfig, sr.Type)
	}
	return rule, nil
}

// Compiles the active rules out of a guild's stored rule list, in evaluation order. Rules which fail to compile are logged and counted in skipped.
func CompileRules(stored []rulestore.StoredRule, limits TrackerLimits, logger *slog.Logger) (rules []Rule, skipped int) {
	if logger == nil {
		logger = slog.Default()
	}
	rules = make([]Rule, 0, len(stored))
	for _, sr := range stored {
		if !sr.Active {
			continue
		}
		rule, err := CompileRule(sr, limits)
		if err != nil {
			logger.Warn("skipping invalid automod rule", "guild", sr.GuildID, "rule", sr.ID, "type", sr.Type, "err", err)
			ruleCompileErrors.WithLabelValues(sr.Type).Inc()
			skipped++
			continue
		}
		rules = append(rules, rule)
	}
	SortRules(rules)
	return rules, skipped
}

// Orders rules by priority ascending, then creation time. Stable, so remaining ties keep store order.
func SortRules(rules []Rule) {
	slices.SortStableFunc(rules, func(a, b Rule) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
