// Automod component for persisting moderation cases, the audit trail of enforcement actions.
//
// Includes an interface and implementations backed by process memory and a SQL database (via gorm).
package caselog

import (
	"context"
	"time"
)

// Immutable record of one moderation action (or attempted action).
type Case struct {
	ID           string
	GuildID      string
	UserID       string
	UserTag      string
	ModeratorID  string
	ModeratorTag string
	Action       string
	Reason       string
	CreatedAt    time.Time
}

type CaseLog interface {
	// Persists a new case and returns its identifier. The ID field of the argument is ignored.
	CreateCase(ctx context.Context, c Case) (string, error)
}
