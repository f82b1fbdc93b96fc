// Automod component for receiving out-of-band "rules changed" signals, so cached guild rules can be dropped as soon as they are edited.
//
// The signal carries only a guild ID. Subscribers are provided for redis pub/sub and NATS; publish helpers exist for the systems that edit rules.
package invalidation

import (
	"context"
)

// Called once per received signal, with the guild whose rules changed.
type Handler func(guildID string)

type Subscriber interface {
	// Blocks delivering signals to h until ctx is done or the subscription fails.
	Run(ctx context.Context, h Handler) error
}
