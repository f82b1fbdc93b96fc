// Automod component for executing moderation actions against the chat platform.
//
// Includes an interface, a Discord implementation (via discordgo), and an in-memory recorder for tests.
package gateway

import (
	"context"
	"time"
)

type MemberRef struct {
	GuildID string
	UserID  string
}

type MessageRef struct {
	GuildID   string
	ChannelID string
	MessageID string
}

type Gateway interface {
	Ban(ctx context.Context, member MemberRef, reason string) error
	Kick(ctx context.Context, member MemberRef, reason string) error
	Timeout(ctx context.Context, member MemberRef, until time.Time, reason string) error
	DeleteMessage(ctx context.Context, msg MessageRef) error
}
