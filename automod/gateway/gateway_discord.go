package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord does not accept communication-disabled timeouts longer than this
const MaxTimeout = 28 * 24 * time.Hour

// Audit-log reasons are truncated by Discord past this length
const maxReasonLen = 512

type DiscordGateway struct {
	Session *discordgo.Session
	// days of message history to remove when banning (0-7)
	BanDeleteMessageDays int
	Logger               *slog.Logger
}

var _ Gateway = (*DiscordGateway)(nil)

func NewDiscordGateway(session *discordgo.Session, logger *slog.Logger) *DiscordGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordGateway{
		Session: session,
		Logger:  logger.With("component", "discord-gateway"),
	}
}

func (g *DiscordGateway) Ban(ctx context.Context, member MemberRef, reason string) error {
	days := g.BanDeleteMessageDays
	if days < 0 || days > 7 {
		days = 0
	}
	err := g.Session.GuildBanCreateWithReason(member.GuildID, member.UserID, truncateReason(reason), days, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord ban: %w", err)
	}
	return nil
}

func (g *DiscordGateway) Kick(ctx context.Context, member MemberRef, reason string) error {
	err := g.Session.GuildMemberDeleteWithReason(member.GuildID, member.UserID, truncateReason(reason), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord kick: %w", err)
	}
	return nil
}

func (g *DiscordGateway) Timeout(ctx context.Context, member MemberRef, until time.Time, reason string) error {
	until = ClampTimeout(until, time.Now())
	err := g.Session.GuildMemberTimeout(member.GuildID, member.UserID, &until,
		discordgo.WithContext(ctx),
		discordgo.WithAuditLogReason(truncateReason(reason)),
	)
	if err != nil {
		return fmt.Errorf("discord timeout: %w", err)
	}
	return nil
}

func (g *DiscordGateway) DeleteMessage(ctx context.Context, msg MessageRef) error {
	err := g.Session.ChannelMessageDelete(msg.ChannelID, msg.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord message delete: %w", err)
	}
	return nil
}

// Posts a short-lived message in a channel, removing it again after ttl. Removal is best-effort and happens in the background.
func (g *DiscordGateway) PostNotice(ctx context.Context, channelID, text string, ttl time.Duration) error {
	msg, err := g.Session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord notice: %w", err)
	}
	if ttl <= 0 {
		return nil
	}
	time.AfterFunc(ttl, func() {
		if err := g.Session.ChannelMessageDelete(channelID, msg.ID); err != nil {
			g.Logger.Debug("failed to remove transient notice", "channel", channelID, "err", err)
		}
	})
	return nil
}

// Limits a timeout end time to what the platform accepts.
func ClampTimeout(until, now time.Time) time.Time {
	if until.Sub(now) > MaxTimeout {
		return now.Add(MaxTimeout)
	}
	return until
}

func truncateReason(reason string) string {
	r := []rune(reason)
	if len(r) <= maxReasonLen {
		return reason
	}
	return string(r[:maxReasonLen-1]) + "…"
}
