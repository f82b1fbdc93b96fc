package invalidation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Subject prefix; the full subject is "<prefix>.<guildID>"
const NATSSubjectPrefix = "automod.rules.changed"

type NATSSubscriber struct {
	Conn   *nats.Conn
	Logger *slog.Logger
}

var _ Subscriber = (*NATSSubscriber)(nil)

// Connects to NATS with reconnects enabled indefinitely. Connection state changes are logged.
func ConnectNATS(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "nats")
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info("nats connected", "url", nc.ConnectedUrl())
	return nc, nil
}

func NewNATSSubscriber(conn *nats.Conn, logger *slog.Logger) *NATSSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSubscriber{
		Conn:   conn,
		Logger: logger.With("component", "invalidation", "transport", "nats"),
	}
}

func (s *NATSSubscriber) Run(ctx context.Context, h Handler) error {
	sub, err := s.Conn.Subscribe(NATSSubjectPrefix+".*", func(msg *nats.Msg) {
		guildID, ok := GuildFromSubject(msg.Subject)
		if !ok {
			s.Logger.Warn("ignoring malformed rule invalidation subject", "subject", msg.Subject)
			return
		}
		invalidationsReceived.WithLabelValues("nats").Inc()
		h(guildID)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", NATSSubjectPrefix, err)
	}
	s.Logger.Info("listening for rule invalidations", "subject", NATSSubjectPrefix+".*")

	<-ctx.Done()
	return sub.Unsubscribe()
}

func SubjectForGuild(guildID string) string {
	return NATSSubjectPrefix + "." + guildID
}

// Extracts the guild ID from a full invalidation subject.
func GuildFromSubject(subject string) (string, bool) {
	guildID, ok := strings.CutPrefix(subject, NATSSubjectPrefix+".")
	if !ok || guildID == "" || strings.Contains(guildID, ".") {
		return "", false
	}
	return guildID, true
}

func PublishNATS(conn *nats.Conn, guildID string) error {
	return conn.Publish(SubjectForGuild(guildID), nil)
}
