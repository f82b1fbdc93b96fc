// Automod component for reading a guild's configured moderation rules.
//
// Rules are authored and persisted elsewhere; this package only reads them. Includes an interface and implementations backed by process memory, a SQL database (via gorm), and a remote HTTP API.
package rulestore

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// A rule as persisted by the authoring system. The config document is not interpreted here; it is validated and compiled by the engine when rules are loaded.
type StoredRule struct {
	ID        string          `json:"id"`
	GuildID   string          `json:"guildId"`
	Type      string          `json:"type"`
	Config    json.RawMessage `json:"config"`
	Action    string          `json:"action"`
	Priority  int             `json:"priority"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"createdAt"`
}

type RuleStore interface {
	// Returns all rules (active or not) configured for the guild. A guild with no rules is not an error.
	GetRules(ctx context.Context, guildID string) ([]StoredRule, error)
}
