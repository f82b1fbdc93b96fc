package main

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/wardenbot/warden/automod"
	"github.com/wardenbot/warden/automod/countstore"
	"github.com/wardenbot/warden/automod/engine"
	"github.com/wardenbot/warden/automod/rulecache"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// collectors register globally, so the middleware is built once per process
var adminMetrics = sync.OnceValue(func() echo.MiddlewareFunc {
	return echoprometheus.NewMiddleware("warden_admin")
})

type adminAPI struct {
	logger *slog.Logger
	engine *automod.Engine
	cache  *rulecache.Cache
	// full expected header value, eg "Bearer abc"
	expectedAuthHeader string
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Message string `json:"msg,omitempty"`
}

type RuleSummary struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Action          string `json:"action"`
	Priority        int    `json:"priority"`
	TimeoutDuration string `json:"timeoutDuration,omitempty"`
}

type RuleSetStatus struct {
	GuildID   string        `json:"guildId"`
	Cached    bool          `json:"cached"`
	Fresh     bool          `json:"fresh"`
	Healthy   bool          `json:"healthy"`
	FetchedAt *time.Time    `json:"fetchedAt,omitempty"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
	Skipped   int           `json:"skipped"`
	Rules     []RuleSummary `json:"rules"`
}

type ActionCounts struct {
	GuildID string         `json:"guildId"`
	Period  string         `json:"period"`
	Counts  map[string]int `json:"counts"`
}

func newAdminAPI(logger *slog.Logger, eng *automod.Engine, cache *rulecache.Cache, password string) *echo.Echo {
	api := &adminAPI{
		logger:             logger,
		engine:             eng,
		cache:              cache,
		expectedAuthHeader: "Bearer " + password,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(otelecho.Middleware("warden"))
	e.Use(adminMetrics())
	e.HTTPErrorHandler = api.errorHandler

	e.GET("/_health", api.HandleHealthCheck)

	admin := e.Group("/admin", api.requireAdmin)
	admin.GET("/guilds/:guild/rules", api.HandleGetRules)
	admin.POST("/guilds/:guild/rules/reload", api.HandleReloadRules)
	admin.GET("/guilds/:guild/counts", api.HandleGetCounts)
	return e
}

// requires header `Authorization: Bearer {admin password}`
func (api *adminAPI) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(api.expectedAuthHeader)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "admin auth required")
		}
		return next(c)
	}
}

func (api *adminAPI) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		api.logger.Warn("warden-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "warden", Message: errorMessage})
}

func (api *adminAPI) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "warden", Version: versioninfo.Short()})
}

func (api *adminAPI) HandleGetRules(c echo.Context) error {
	guildID := c.Param("guild")
	status := RuleSetStatus{GuildID: guildID, Rules: []RuleSummary{}}

	snap, ok := api.cache.Snapshot(guildID)
	if ok {
		status.Cached = true
		status.Fresh = api.cache.Fresh(snap)
		status.Healthy = snap.Healthy
		status.Skipped = snap.Skipped
		if !snap.FetchedAt.IsZero() {
			status.FetchedAt = &snap.FetchedAt
		}
		status.ExpiresAt = &snap.ExpiresAt
		for _, r := range snap.Rules {
			status.Rules = append(status.Rules, summarizeRule(r))
		}
	}
	return c.JSON(http.StatusOK, status)
}

func summarizeRule(r engine.Rule) RuleSummary {
	rs := RuleSummary{
		ID:       r.ID,
		Type:     string(r.Type),
		Action:   string(r.Action),
		Priority: r.Priority,
	}
	if r.Action == engine.ActionTimeout {
		rs.TimeoutDuration = r.TimeoutDuration.String()
	}
	return rs
}

func (api *adminAPI) HandleReloadRules(c echo.Context) error {
	api.engine.Reload(c.Param("guild"))
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "warden"})
}

func (api *adminAPI) HandleGetCounts(c echo.Context) error {
	guildID := c.Param("guild")
	period := c.QueryParam("period")
	if period == "" {
		period = countstore.PeriodDay
	}
	switch period {
	case countstore.PeriodTotal, countstore.PeriodDay, countstore.PeriodHour:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown period: %s", period))
	}

	out := ActionCounts{GuildID: guildID, Period: period, Counts: make(map[string]int)}
	for _, action := range []engine.Action{engine.ActionWarn, engine.ActionDelete, engine.ActionTimeout, engine.ActionKick, engine.ActionBan} {
		n, err := api.engine.GetCount(c.Request().Context(), guildID, action, period)
		if err != nil {
			return fmt.Errorf("reading %s count: %w", action, err)
		}
		out.Counts[string(action)] = n
	}
	return c.JSON(http.StatusOK, out)
}
