package invalidation

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestGuildFromSubject(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		subject string
		guildID string
		ok      bool
	}{
		{subject: SubjectForGuild("1234"), guildID: "1234", ok: true},
		{subject: "automod.rules.changed.", ok: false},
		{subject: "automod.rules.changed", ok: false},
		{subject: "automod.rules.changed.12.34", ok: false},
		{subject: "other.subject.1234", ok: false},
	}

	for _, fix := range fixtures {
		guildID, ok := GuildFromSubject(fix.subject)
		assert.Equal(fix.ok, ok, fix.subject)
		assert.Equal(fix.guildID, guildID, fix.subject)
	}
}

func TestRedisSubscriber(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)

	opt, err := redis.ParseURL("redis://localhost:6379/0")
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 1)
	sub := NewRedisSubscriber(rdb, nil)
	go sub.Run(ctx, func(guildID string) {
		got <- guildID
	})
	time.Sleep(100 * time.Millisecond)

	assert.NoError(PublishRedis(ctx, rdb, "g42"))
	select {
	case guildID := <-got:
		assert.Equal("g42", guildID)
	case <-ctx.Done():
		t.Fatal("no invalidation received")
	}
}

func TestNATSSubscriber(t *testing.T) {
	t.Skip("live test, need nats running locally")
	assert := assert.New(t)

	nc, err := ConnectNATS("nats://localhost:4222", "warden-test", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 1)
	go NewNATSSubscriber(nc, nil).Run(ctx, func(guildID string) {
		got <- guildID
	})
	time.Sleep(100 * time.Millisecond)

	assert.NoError(PublishNATS(nc, "g42"))
	select {
	case guildID := <-got:
		assert.Equal("g42", guildID)
	case <-ctx.Done():
		t.Fatal("no invalidation received")
	}
}
