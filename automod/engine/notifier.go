package engine

import (
	"context"
)

// Summary of one enforced violation, handed to notifiers after the case is written.
type Notice struct {
	GuildID   string
	ChannelID string
	UserID    string
	UserTag   string
	RuleID    string
	RuleType  RuleType
	Action    Action
	Reason    string
	CaseID    string
	// false when the platform action failed
	Success bool
}

// Interface for a type that can handle sending notifications. Notification failures are logged but never fail enforcement.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}
