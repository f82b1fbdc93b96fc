package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlackNotifier(t *testing.T) {
	assert := assert.New(t)

	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := &SlackNotifier{SlackWebhookURL: srv.URL}
	err := n.Notify(context.Background(), Notice{GuildID: "g1", UserID: "u1", UserTag: "bad#1234", RuleID: "r1", RuleType: RuleUsernamePattern, Action: ActionBan, Reason: "bad name", CaseID: "7", Success: true})
	assert.NoError(err)
	assert.Contains(body, "bad#1234")
	assert.Contains(body, "Case: `7`")

	// unconfigured notifier is a no-op
	assert.NoError((&SlackNotifier{}).Notify(context.Background(), Notice{}))

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer failing.Close()
	n.SlackWebhookURL = failing.URL
	assert.Error(n.Notify(context.Background(), Notice{}))
}
