package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenbot/warden/automod/activity"
	"github.com/wardenbot/warden/automod/countstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("automod")

// Source of compiled, ordered rules for a guild. Implemented by the rule cache.
type RuleSource interface {
	// Never fails: when rules can't be loaded, returns the last known rules or none.
	Get(ctx context.Context, guildID string) []Rule
	Invalidate(guildID string)
}

// runtime for evaluating guild events against rules, and enforcing violations.
//
// Each event is handled independently; the rule source and tracker are the only shared state, and both are internally synchronized. Logger, Rules, Tracker and Executor must all be set.
type Engine struct {
	Logger   *slog.Logger
	Rules    RuleSource
	Tracker  *activity.Tracker
	Executor *ActionExecutor
	// optional; used only for reading back enforcement counts
	Counters countstore.CountStore
	// activity older than this is dropped by Sweep
	MaxActivityAge time.Duration
	Now            func() time.Time
}

func (eng *Engine) now() time.Time {
	if eng.Now != nil {
		return eng.Now()
	}
	return time.Now()
}

// Tracker subject for a user within a guild; activity in one guild never counts toward another.
func ActivityKey(guildID, userID string) string {
	return guildID + "/" + userID
}

// Evaluates a newly joined member against username rules, enforcing the first violation.
//
// Returns the violation (if any) even when enforcement fails; the error then wraps ErrActionFailed.
func (eng *Engine) OnMemberJoin(ctx context.Context, member Member) (v *Violation, err error) {
	ctx, span := tracer.Start(ctx, "OnMemberJoin", trace.WithAttributes(
		attribute.String("guild", member.GuildID),
		attribute.String("user", member.UserID),
	))
	defer span.End()
	logger := eng.Logger.With("guild", member.GuildID, "user", member.UserID)

	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			logger.Error("automod event execution exception", "err", r, "type", "member_join")
			v, err = nil, fmt.Errorf("automod panic processing member join: %v", r)
		}
		eng.finishEvent("member_join", span, v, err)
	}()

	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues("member_join").Observe(time.Since(start).Seconds())
	}()

	rules := eng.Rules.Get(ctx, member.GuildID)
	v = EvaluateUsername(member, rules, eng.now())
	if v == nil {
		return nil, nil
	}
	logger.Info("automod violation", "rule", v.Rule.ID, "type", v.Rule.Type, "action", v.Rule.Action, "reason", v.Reason)
	_, err = eng.Executor.Apply(ctx, Enforcement{
		Rule:   v.Rule,
		Reason: v.Reason,
		Member: member,
	})
	return v, err
}

// Evaluates a message against rate rules, then attachment rules, enforcing the first violation.
//
// Bot authors and exempt users are skipped entirely: their messages are not even recorded.
func (eng *Engine) OnMessage(ctx context.Context, msg Message, isExempt bool) (v *Violation, err error) {
	if msg.AuthorIsBot || isExempt {
		eventSkipCount.Inc()
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "OnMessage", trace.WithAttributes(
		attribute.String("guild", msg.GuildID),
		attribute.String("user", msg.UserID),
		attribute.String("channel", msg.ChannelID),
	))
	defer span.End()
	logger := eng.Logger.With("guild", msg.GuildID, "user", msg.UserID, "channel", msg.ChannelID, "message", msg.ID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("automod event execution exception", "err", r, "type", "message")
			v, err = nil, fmt.Errorf("automod panic processing message: %v", r)
		}
		eng.finishEvent("message", span, v, err)
	}()

	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues("message").Observe(time.Since(start).Seconds())
	}()

	now := msg.Timestamp
	if now.IsZero() {
		now = eng.now()
	}

	rules := eng.Rules.Get(ctx, msg.GuildID)
	v = EvaluateMessageRate(eng.Tracker, ActivityKey(msg.GuildID, msg.UserID), msg.ChannelID, msg.Content, rules, now)
	if v == nil && len(msg.Attachments) > 0 {
		v = EvaluateAttachments(msg.Attachments, rules)
	}
	if v == nil {
		return nil, nil
	}
	logger.Info("automod violation", "rule", v.Rule.ID, "type", v.Rule.Type, "action", v.Rule.Action, "reason", v.Reason)
	_, err = eng.Executor.Apply(ctx, Enforcement{
		Rule:    v.Rule,
		Reason:  v.Reason,
		Member:  msg.Author(),
		Message: &msg,
	})
	return v, err
}

func (eng *Engine) finishEvent(eventType string, span trace.Span, v *Violation, err error) {
	eventProcessCount.WithLabelValues(eventType).Inc()
	if v != nil {
		violationCount.WithLabelValues(string(v.Rule.Type), string(v.Rule.Action)).Inc()
		span.SetAttributes(attribute.String("rule", v.Rule.ID), attribute.String("action", string(v.Rule.Action)))
	}
	if err != nil {
		eventErrorCount.WithLabelValues(eventType).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Drops cached rules for the guild, so the next event re-fetches them.
func (eng *Engine) Reload(guildID string) {
	eng.Logger.Info("reloading automod rules", "guild", guildID)
	eng.Rules.Invalidate(guildID)
}

// Prunes tracked activity older than MaxActivityAge. Returns the number of events removed.
func (eng *Engine) Sweep(now time.Time) int {
	maxAge := eng.MaxActivityAge
	if maxAge <= 0 {
		maxAge = activity.DefaultMaxAge
	}
	removed := eng.Tracker.Sweep(now, maxAge)
	eng.Logger.Debug("swept automod activity", "removed", removed, "subjects", eng.Tracker.Len())
	return removed
}

// Calls Sweep every interval until ctx is done.
func (eng *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = activity.DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eng.Sweep(eng.now())
		}
	}
}

// Number of times the action was enforced in the guild, for the given counter period.
func (eng *Engine) GetCount(ctx context.Context, guildID string, action Action, period string) (int, error) {
	if eng.Counters == nil {
		return 0, fmt.Errorf("no counter store configured")
	}
	return eng.Counters.GetCount(ctx, ActionCounter, guildID+"/"+string(action), period)
}
