package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// Posts enforcement notices to a moderators' slack channel via "incoming webhook".
type SlackNotifier struct {
	SlackWebhookURL string
	Client          *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) Notify(ctx context.Context, notice Notice) error {
	if n.SlackWebhookURL == "" {
		return nil
	}
	return n.sendSlackMsg(ctx, slackBody(notice))
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(n Notice) string {
	msg := "⚠️ Automod Action ⚠️\n"
	if !n.Success {
		msg = "⚠️ Automod Action FAILED ⚠️\n"
	}
	msg += fmt.Sprintf("guild `%s` / user `%s` (`%s`)\n", n.GuildID, n.UserTag, n.UserID)
	msg += fmt.Sprintf("Action: `%s` (rule `%s`, %s)\n", n.Action, n.RuleID, n.RuleType)
	msg += fmt.Sprintf("Reason: %s\n", n.Reason)
	if n.CaseID != "" {
		msg += fmt.Sprintf("Case: `%s`\n", n.CaseID)
	}
	return msg
}
