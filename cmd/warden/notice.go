package main

import (
	"context"
	"fmt"
	"time"

	"github.com/wardenbot/warden/automod/engine"
	"github.com/wardenbot/warden/automod/gateway"
)

// Posts a short-lived notice in the channel where a message-bound violation happened.
type channelNotifier struct {
	gw  *gateway.DiscordGateway
	ttl time.Duration
}

var _ engine.Notifier = (*channelNotifier)(nil)

func (n *channelNotifier) Notify(ctx context.Context, notice engine.Notice) error {
	if notice.ChannelID == "" || !notice.Success {
		return nil
	}
	return n.gw.PostNotice(ctx, notice.ChannelID, noticeText(notice), n.ttl)
}

func noticeText(n engine.Notice) string {
	var verb string
	switch n.Action {
	case engine.ActionWarn:
		verb = "you have been warned"
	case engine.ActionDelete:
		verb = "your message was removed"
	case engine.ActionTimeout:
		verb = "you have been timed out"
	case engine.ActionKick:
		verb = "has been kicked"
	case engine.ActionBan:
		verb = "has been banned"
	default:
		verb = "automod action taken"
	}
	return fmt.Sprintf("<@%s> %s (%s)", n.UserID, verb, n.Reason)
}
