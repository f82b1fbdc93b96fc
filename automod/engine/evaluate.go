package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/wardenbot/warden/automod/activity"
)

// Checks a joining member against username pattern rules. Returns the first rule (in slice order) whose pattern and auxiliary conditions all hold, or nil.
//
// An account with unknown creation time never satisfies an account age condition.
func EvaluateUsername(member Member, rules []Rule, now time.Time) *Violation {
	for _, rule := range rules {
		cfg := rule.UsernamePattern()
		if cfg == nil || !cfg.Match(member.Username) {
			continue
		}
		reasons := []string{fmt.Sprintf("username matches blocked pattern %q", cfg.Pattern)}
		if cfg.MinAccountAgeDays > 0 {
			if member.AccountCreatedAt.IsZero() {
				continue
			}
			age := now.Sub(member.AccountCreatedAt)
			if age >= time.Duration(cfg.MinAccountAgeDays)*24*time.Hour {
				continue
			}
			reasons = append(reasons, fmt.Sprintf("account is too new (%d days old, minimum %d)", int(age.Hours()/24), cfg.MinAccountAgeDays))
		}
		if cfg.RequireNoAvatar {
			if member.AvatarHash != "" {
				continue
			}
			reasons = append(reasons, "no avatar")
		}
		return &Violation{Rule: rule, Reason: strings.Join(reasons, "; ")}
	}
	return nil
}

// Records the message in the tracker, then checks message rate rules against the subject's recent activity.
//
// Recording happens whether or not a violation is found. Within a rule the checks run count, duplicates, channels; the first rule producing any violation wins.
func EvaluateMessageRate(tracker *activity.Tracker, subject, channelID, content string, rules []Rule, now time.Time) *Violation {
	tracker.Record(subject, channelID, content, now)

	for _, rule := range rules {
		cfg := rule.MessageRate()
		if cfg == nil {
			continue
		}
		recent := tracker.Window(subject, cfg.Timeframe, now)
		secs := int(cfg.Timeframe.Seconds())

		if cfg.MaxMessages > 0 && len(recent) > cfg.MaxMessages {
			return &Violation{Rule: rule, Reason: fmt.Sprintf("too many messages: %d in %d s", len(recent), secs)}
		}
		if cfg.MaxDuplicates > 0 {
			counts := make(map[string]int, len(recent))
			worst := 0
			for _, ev := range recent {
				counts[ev.Fingerprint]++
				worst = max(worst, counts[ev.Fingerprint])
			}
			if worst > cfg.MaxDuplicates {
				return &Violation{Rule: rule, Reason: fmt.Sprintf("duplicate message spam: %d identical messages in %d s", worst, secs)}
			}
		}
		if cfg.MaxChannels > 0 {
			channels := make(map[string]bool)
			for _, ev := range recent {
				channels[ev.ChannelID] = true
			}
			if len(channels) > cfg.MaxChannels {
				return &Violation{Rule: rule, Reason: fmt.Sprintf("channel spam: %d channels in %d s", len(channels), secs)}
			}
		}
	}
	return nil
}

// Checks attachment filenames against file extension rules. Rules are tried in order; the first attachment a rule blocks is the violation.
func EvaluateAttachments(attachments []Attachment, rules []Rule) *Violation {
	if len(attachments) == 0 {
		return nil
	}
	for _, rule := range rules {
		cfg := rule.FileExtension()
		if cfg == nil {
			continue
		}
		for _, att := range attachments {
			ext := FileExtension(att.Filename)
			if cfg.Blocks(ext) {
				return &Violation{Rule: rule, Reason: fmt.Sprintf("blocked file type: .%s", ext)}
			}
		}
	}
	return nil
}

// Lower-cased text after the final dot of a filename; empty if there is no dot.
func FileExtension(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}
