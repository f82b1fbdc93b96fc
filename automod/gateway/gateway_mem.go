package gateway

import (
	"context"
	"sync"
	"time"
)

const (
	OpBan           = "ban"
	OpKick          = "kick"
	OpTimeout       = "timeout"
	OpDeleteMessage = "delete_message"
)

// One recorded gateway invocation.
type Call struct {
	Op        string
	GuildID   string
	UserID    string
	ChannelID string
	MessageID string
	Until     time.Time
	Reason    string
}

// Records calls instead of executing them. Failures can be injected per operation.
type MemGateway struct {
	mu     sync.Mutex
	calls  []Call
	errors map[string]error
}

var _ Gateway = (*MemGateway)(nil)

func NewMemGateway() *MemGateway {
	return &MemGateway{
		errors: make(map[string]error),
	}
}

// Makes every subsequent call of the given operation (eg, OpBan) fail with err. A nil err clears the failure.
func (g *MemGateway) FailOp(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.errors, op)
		return
	}
	g.errors[op] = err
}

func (g *MemGateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

func (g *MemGateway) record(c Call) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, c)
	return g.errors[c.Op]
}

func (g *MemGateway) Ban(ctx context.Context, member MemberRef, reason string) error {
	return g.record(Call{Op: OpBan, GuildID: member.GuildID, UserID: member.UserID, Reason: reason})
}

func (g *MemGateway) Kick(ctx context.Context, member MemberRef, reason string) error {
	return g.record(Call{Op: OpKick, GuildID: member.GuildID, UserID: member.UserID, Reason: reason})
}

func (g *MemGateway) Timeout(ctx context.Context, member MemberRef, until time.Time, reason string) error {
	return g.record(Call{Op: OpTimeout, GuildID: member.GuildID, UserID: member.UserID, Until: until, Reason: reason})
}

func (g *MemGateway) DeleteMessage(ctx context.Context, msg MessageRef) error {
	return g.record(Call{Op: OpDeleteMessage, GuildID: msg.GuildID, ChannelID: msg.ChannelID, MessageID: msg.MessageID})
}
