package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenbot/warden/automod/caselog"
	"github.com/wardenbot/warden/automod/countstore"
	"github.com/wardenbot/warden/automod/gateway"
)

const (
	// synthetic moderator identity recorded on automod cases
	ModeratorID  = "automod"
	ModeratorTag = "AutoMod"

	DefaultActionTimeout = 10 * time.Second
	DefaultCaseTimeout   = 5 * time.Second

	// counter name for enforced actions; value is "<guildID>/<action>"
	ActionCounter = "automod-action"
)

// Wrapped by errors returned from Apply when the platform action itself failed.
var ErrActionFailed = errors.New("automod action failed")

// Carries out moderation actions through the gateway, and records an audit case for every attempt.
//
// Actions are never retried: a failed action is reported once, and the next triggering event will be caught again.
type ActionExecutor struct {
	Gateway gateway.Gateway
	Cases   caselog.CaseLog
	// optional
	Counters  countstore.CountStore
	Notifiers []Notifier
	Logger    *slog.Logger

	ActionTimeout time.Duration
	CaseTimeout   time.Duration
	Now           func() time.Time
}

// One violation to enforce against a member. Message is nil for events not tied to a message (eg, joins).
type Enforcement struct {
	Rule    Rule
	Reason  string
	Member  Member
	Message *Message
}

func (x *ActionExecutor) now() time.Time {
	if x.Now != nil {
		return x.Now()
	}
	return time.Now()
}

func (x *ActionExecutor) logger() *slog.Logger {
	if x.Logger != nil {
		return x.Logger
	}
	return slog.Default()
}

// Whether the triggering message is removed before the rule's action runs.
func removesContent(rule Rule) bool {
	switch rule.Type {
	case RuleFileExtension:
		return true
	case RuleMessageRate:
		return rule.Action != ActionWarn
	default:
		return false
	}
}

// Enforces a violation. Returns whether the platform action succeeded; the error (wrapping ErrActionFailed) describes why not.
//
// A case is written regardless of the outcome. Failures deleting content ahead of another action are logged and otherwise ignored.
func (x *ActionExecutor) Apply(ctx context.Context, enf Enforcement) (bool, error) {
	rule := enf.Rule
	logger := x.logger().With("guild", enf.Member.GuildID, "user", enf.Member.UserID, "rule", rule.ID, "action", rule.Action)
	now := x.now()

	actionTimeout := x.ActionTimeout
	if actionTimeout <= 0 {
		actionTimeout = DefaultActionTimeout
	}

	var deleteErr error
	deleted := false
	if enf.Message != nil && (removesContent(rule) || rule.Action == ActionDelete) {
		deleteErr = x.withTimeout(ctx, actionTimeout, func(ctx context.Context) error {
			return x.Gateway.DeleteMessage(ctx, enf.Message.Ref())
		})
		deleted = true
		if deleteErr != nil && rule.Action != ActionDelete {
			logger.Warn("failed to remove triggering message", "message", enf.Message.ID, "err", deleteErr)
		}
	}

	var actionErr error
	switch rule.Action {
	case ActionWarn:
		// nothing on the platform side
	case ActionDelete:
		if !deleted {
			actionErr = fmt.Errorf("no message to delete")
		} else {
			actionErr = deleteErr
		}
	case ActionTimeout:
		dur := rule.TimeoutDuration
		if dur <= 0 {
			dur = DefaultTimeoutDuration
		}
		until := now.Add(min(dur, MaxTimeoutDuration))
		actionErr = x.withTimeout(ctx, actionTimeout, func(ctx context.Context) error {
			return x.Gateway.Timeout(ctx, enf.Member.Ref(), until, enf.Reason)
		})
	case ActionKick:
		actionErr = x.withTimeout(ctx, actionTimeout, func(ctx context.Context) error {
			return x.Gateway.Kick(ctx, enf.Member.Ref(), enf.Reason)
		})
	case ActionBan:
		actionErr = x.withTimeout(ctx, actionTimeout, func(ctx context.Context) error {
			return x.Gateway.Ban(ctx, enf.Member.Ref(), enf.Reason)
		})
	default:
		actionErr = fmt.Errorf("unsupported action %q", rule.Action)
	}

	reason := enf.Reason
	if actionErr != nil {
		logger.Error("automod action failed", "reason", enf.Reason, "err", actionErr)
		actionErrorCount.WithLabelValues(string(rule.Action)).Inc()
		reason = fmt.Sprintf("%s (action failed: %v)", enf.Reason, actionErr)
	} else {
		logger.Info("automod action applied", "reason", enf.Reason)
	}

	caseID := x.writeCase(ctx, logger, enf, reason, now)

	if x.Counters != nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.caseTimeout())
		if err := x.Counters.Increment(cctx, ActionCounter, enf.Member.GuildID+"/"+string(rule.Action)); err != nil {
			logger.Warn("failed to increment action counter", "err", err)
		}
		cancel()
	}
	actionCount.WithLabelValues(string(rule.Type), string(rule.Action)).Inc()

	notice := Notice{
		GuildID:  enf.Member.GuildID,
		UserID:   enf.Member.UserID,
		UserTag:  enf.Member.Tag,
		RuleID:   rule.ID,
		RuleType: rule.Type,
		Action:   rule.Action,
		Reason:   enf.Reason,
		CaseID:   caseID,
		Success:  actionErr == nil,
	}
	if enf.Message != nil {
		notice.ChannelID = enf.Message.ChannelID
	}
	x.notify(ctx, logger, notice)

	if actionErr != nil {
		return false, fmt.Errorf("%w: %s for user %s in guild %s: %w", ErrActionFailed, rule.Action, enf.Member.UserID, enf.Member.GuildID, actionErr)
	}
	return true, nil
}

func (x *ActionExecutor) caseTimeout() time.Duration {
	if x.CaseTimeout > 0 {
		return x.CaseTimeout
	}
	return DefaultCaseTimeout
}

func (x *ActionExecutor) withTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

// Writes the audit case on a context detached from the caller, so a cancelled event still leaves a record. Returns the case ID, or empty on failure.
func (x *ActionExecutor) writeCase(ctx context.Context, logger *slog.Logger, enf Enforcement, reason string, now time.Time) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.caseTimeout())
	defer cancel()

	userTag := enf.Member.Tag
	if userTag == "" {
		userTag = enf.Member.Username
	}
	caseID, err := x.Cases.CreateCase(ctx, caselog.Case{
		GuildID:      enf.Member.GuildID,
		UserID:       enf.Member.UserID,
		UserTag:      userTag,
		ModeratorID:  ModeratorID,
		ModeratorTag: ModeratorTag,
		Action:       string(enf.Rule.Action),
		Reason:       reason,
		CreatedAt:    now,
	})
	if err != nil {
		logger.Error("failed to write automod case", "err", err)
		caseWriteErrorCount.Inc()
		return ""
	}
	return caseID
}

func (x *ActionExecutor) notify(ctx context.Context, logger *slog.Logger, n Notice) {
	for _, notifier := range x.Notifiers {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.caseTimeout())
		if err := notifier.Notify(nctx, n); err != nil {
			logger.Warn("automod notification failed", "err", err)
		}
		cancel()
	}
}
