package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wardenbot/warden/automod"
	"github.com/wardenbot/warden/automod/caselog"
	"github.com/wardenbot/warden/automod/engine"
	"github.com/wardenbot/warden/automod/gateway"
	"github.com/wardenbot/warden/automod/rulestore"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

func testAdminAPI(t *testing.T) (http.Handler, *automod.Engine, *rulestore.MemRuleStore) {
	store := rulestore.NewMemRuleStore()
	store.AddRule(engine.RuleFixture("g1", "r1", engine.RuleMessageRate, engine.ActionTimeout, 1, map[string]any{"maxMessages": 5, "timeframeSeconds": 10}))
	eng, cache := automod.NewEngine(automod.EngineConfig{
		Rules:   store,
		Cases:   caselog.NewMemCaseLog(),
		Gateway: gateway.NewMemGateway(),
	}, slog.Default())
	return newAdminAPI(slog.Default(), eng, cache, "secret"), eng, store
}

func doRequest(h http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminAPIHealth(t *testing.T) {
	assert := assert.New(t)
	h, _, _ := testAdminAPI(t)

	rec := doRequest(h, http.MethodGet, "/_health", "")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"status":"ok"`)
}

func TestAdminAPIAuth(t *testing.T) {
	assert := assert.New(t)
	h, _, _ := testAdminAPI(t)

	assert.Equal(http.StatusUnauthorized, doRequest(h, http.MethodGet, "/admin/guilds/g1/rules", "").Code)
	assert.Equal(http.StatusUnauthorized, doRequest(h, http.MethodGet, "/admin/guilds/g1/rules", "Bearer wrong").Code)
	assert.Equal(http.StatusUnauthorized, doRequest(h, http.MethodPost, "/admin/guilds/g1/rules/reload", "secret").Code)
}

func TestAdminAPIRules(t *testing.T) {
	assert := assert.New(t)
	h, eng, store := testAdminAPI(t)

	// nothing cached yet
	rec := doRequest(h, http.MethodGet, "/admin/guilds/g1/rules", "Bearer secret")
	assert.Equal(http.StatusOK, rec.Code)
	var status RuleSetStatus
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(status.Cached)
	assert.Empty(status.Rules)

	eng.Rules.Get(context.Background(), "g1")
	rec = doRequest(h, http.MethodGet, "/admin/guilds/g1/rules", "Bearer secret")
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(status.Cached)
	assert.True(status.Fresh)
	assert.True(status.Healthy)
	if assert.Len(status.Rules, 1) {
		assert.Equal("r1", status.Rules[0].ID)
		assert.Equal("10m0s", status.Rules[0].TimeoutDuration)
	}

	// reload marks the cached set stale, and the next lookup picks up the change
	store.AddRule(engine.RuleFixture("g1", "r2", engine.RuleFileExtension, engine.ActionDelete, 2, map[string]any{"blockedExtensions": []string{"exe"}}))
	rec = doRequest(h, http.MethodPost, "/admin/guilds/g1/rules/reload", "Bearer secret")
	assert.Equal(http.StatusOK, rec.Code)

	rec = doRequest(h, http.MethodGet, "/admin/guilds/g1/rules", "Bearer secret")
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(status.Fresh)

	assert.Len(eng.Rules.Get(context.Background(), "g1"), 2)
}

func TestAdminAPICounts(t *testing.T) {
	assert := assert.New(t)
	h, eng, _ := testAdminAPI(t)

	_, err := eng.OnMemberJoin(context.Background(), engine.Member{GuildID: "g1", UserID: "u1", Username: "fine"})
	assert.NoError(err)

	rec := doRequest(h, http.MethodGet, "/admin/guilds/g1/counts?period=total", "Bearer secret")
	assert.Equal(http.StatusOK, rec.Code)
	var counts ActionCounts
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal("total", counts.Period)
	assert.Equal(0, counts.Counts["ban"])

	rec = doRequest(h, http.MethodGet, "/admin/guilds/g1/counts?period=fortnight", "Bearer secret")
	assert.Equal(http.StatusBadRequest, rec.Code)
	assert.True(strings.Contains(rec.Body.String(), "unknown period"))
}
