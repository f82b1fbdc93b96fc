package rulestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/wardenbot/warden/util"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// Reads rules from a remote HTTP API:
//
//	GET {Host}/guilds/{guildID}/automod/rules
//
// which returns a JSON array of StoredRule. A 404 means the guild has no rules.
type HTTPRuleStore struct {
	Host    string
	Token   string
	Client  *http.Client
	Limiter *rate.Limiter
}

var _ RuleStore = (*HTTPRuleStore)(nil)

// Configures a store with a retrying HTTP client and a request rate limit (requests per second; zero or negative disables limiting).
func NewHTTPRuleStore(host, token string, rateLimit int) *HTTPRuleStore {
	s := &HTTPRuleStore{
		Host:   strings.TrimSuffix(host, "/"),
		Token:  token,
		Client: util.RobustHTTPClient(),
	}
	if rateLimit > 0 {
		s.Limiter = rate.NewLimiter(rate.Limit(rateLimit), 1)
	}
	return s
}

func (s *HTTPRuleStore) GetRules(ctx context.Context, guildID string) ([]StoredRule, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := fmt.Sprintf("%s/guilds/%s/automod/rules", s.Host, url.PathEscape(guildID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching rules for guild %s: %w", guildID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []StoredRule{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		// drain a little of the body for the error message
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetching rules for guild %s: status=%d body=%q", guildID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var rules []StoredRule
	if err := json.NewDecoder(resp.Body).Decode(&rules); err != nil {
		return nil, fmt.Errorf("parsing rules for guild %s: %w", guildID, err)
	}
	for i := range rules {
		if rules[i].GuildID == "" {
			rules[i].GuildID = guildID
		}
	}
	return rules, nil
}
