package main

import (
	"context"
	"errors"

	"github.com/wardenbot/warden/automod/engine"

	"github.com/bwmarrin/discordgo"
)

// Decides which message authors skip evaluation: holders of any configured role, and guild owners.
type exemptChecker struct {
	roles map[string]bool
	state *discordgo.State
}

func newExemptChecker(roles []string, state *discordgo.State) *exemptChecker {
	ec := &exemptChecker{
		roles: make(map[string]bool, len(roles)),
		state: state,
	}
	for _, r := range roles {
		if r != "" {
			ec.roles[r] = true
		}
	}
	return ec
}

func (ec *exemptChecker) IsExempt(guildID, userID string, member *discordgo.Member) bool {
	if member != nil {
		for _, role := range member.Roles {
			if ec.roles[role] {
				return true
			}
		}
	}
	if ec.state != nil {
		if guild, err := ec.state.Guild(guildID); err == nil && guild.OwnerID == userID {
			return true
		}
	}
	return false
}

func memberFromDiscord(guildID string, m *discordgo.Member) engine.Member {
	out := engine.Member{GuildID: guildID}
	if m == nil || m.User == nil {
		return out
	}
	out.UserID = m.User.ID
	out.Username = m.User.Username
	out.Tag = m.User.String()
	out.AvatarHash = m.User.Avatar
	// account creation time is encoded in the user ID
	if created, err := discordgo.SnowflakeTimestamp(m.User.ID); err == nil {
		out.AccountCreatedAt = created
	}
	return out
}

func messageFromDiscord(m *discordgo.Message) engine.Message {
	out := engine.Message{
		ID:          m.ID,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		Content:     m.Content,
		Timestamp:   m.Timestamp,
		AuthorIsBot: m.WebhookID != "",
	}
	if m.Author != nil {
		out.UserID = m.Author.ID
		out.Username = m.Author.Username
		out.Tag = m.Author.String()
		out.AuthorIsBot = out.AuthorIsBot || m.Author.Bot
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		out.Attachments = append(out.Attachments, engine.Attachment{Filename: a.Filename})
	}
	return out
}

func (s *Server) eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.baseCtx, s.eventTimeout)
}

func (s *Server) handleGuildMemberAdd(_ *discordgo.Session, ev *discordgo.GuildMemberAdd) {
	if ev.Member == nil || ev.User == nil || ev.User.Bot {
		return
	}
	gatewayEvents.WithLabelValues("member_add").Inc()
	ctx, cancel := s.eventContext()
	defer cancel()

	member := memberFromDiscord(ev.GuildID, ev.Member)
	if _, err := s.engine.OnMemberJoin(ctx, member); err != nil {
		s.logEventError("member_add", err, "guild", member.GuildID, "user", member.UserID)
	}
}

func (s *Server) handleMessageCreate(_ *discordgo.Session, ev *discordgo.MessageCreate) {
	// direct messages have no guild and no rules
	if ev.Message == nil || ev.GuildID == "" {
		return
	}
	gatewayEvents.WithLabelValues("message_create").Inc()
	ctx, cancel := s.eventContext()
	defer cancel()

	msg := messageFromDiscord(ev.Message)
	exempt := s.exempt.IsExempt(msg.GuildID, msg.UserID, ev.Member)
	if _, err := s.engine.OnMessage(ctx, msg, exempt); err != nil {
		s.logEventError("message_create", err, "guild", msg.GuildID, "user", msg.UserID, "channel", msg.ChannelID, "message", msg.ID)
	}
}

func (s *Server) logEventError(eventType string, err error, args ...any) {
	gatewayEventErrors.WithLabelValues(eventType).Inc()
	args = append(args, "type", eventType, "err", err)
	if errors.Is(err, engine.ErrActionFailed) {
		// platform refused; the case is already recorded
		s.logger.Warn("automod enforcement failed", args...)
		return
	}
	s.logger.Error("automod event processing failed", args...)
}

