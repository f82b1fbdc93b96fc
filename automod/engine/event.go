package engine

import (
	"time"

	"github.com/wardenbot/warden/automod/gateway"
)

// Snapshot of a member at join time, as fetched by the hosting process.
type Member struct {
	GuildID  string
	UserID   string
	Username string
	// display form of the account (eg "name#1234"), copied into cases
	Tag              string
	AccountCreatedAt time.Time
	// empty when the account has no avatar
	AvatarHash string
}

func (m *Member) Ref() gateway.MemberRef {
	return gateway.MemberRef{GuildID: m.GuildID, UserID: m.UserID}
}

type Attachment struct {
	Filename string
}

type Message struct {
	ID          string
	GuildID     string
	ChannelID   string
	UserID      string
	Username    string
	Tag         string
	Content     string
	Attachments []Attachment
	AuthorIsBot bool
	Timestamp   time.Time
}

func (m *Message) Ref() gateway.MessageRef {
	return gateway.MessageRef{GuildID: m.GuildID, ChannelID: m.ChannelID, MessageID: m.ID}
}

func (m *Message) Author() Member {
	return Member{
		GuildID:  m.GuildID,
		UserID:   m.UserID,
		Username: m.Username,
		Tag:      m.Tag,
	}
}

// The first rule an event broke, with a human-readable explanation.
type Violation struct {
	Rule   Rule
	Reason string
}
