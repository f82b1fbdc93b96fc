package automod

import (
	"log/slog"
	"time"

	"github.com/wardenbot/warden/automod/activity"
	"github.com/wardenbot/warden/automod/caselog"
	"github.com/wardenbot/warden/automod/countstore"
	"github.com/wardenbot/warden/automod/engine"
	"github.com/wardenbot/warden/automod/gateway"
	"github.com/wardenbot/warden/automod/rulecache"
	"github.com/wardenbot/warden/automod/rulestore"
)

type Engine = engine.Engine
type ActionExecutor = engine.ActionExecutor
type Rule = engine.Rule
type Member = engine.Member
type Message = engine.Message
type Attachment = engine.Attachment
type Violation = engine.Violation

type Notifier = engine.Notifier
type SlackNotifier = engine.SlackNotifier

var (
	ErrInvalidRuleConfig = engine.ErrInvalidRuleConfig
	ErrActionFailed      = engine.ErrActionFailed

	PeriodTotal = countstore.PeriodTotal
	PeriodDay   = countstore.PeriodDay
	PeriodHour  = countstore.PeriodHour
)

// Collaborators and tunables for building an Engine with NewEngine.
type EngineConfig struct {
	Rules    rulestore.RuleStore
	Cases    caselog.CaseLog
	Gateway  gateway.Gateway
	Counters countstore.CountStore
	// optional
	Notifiers []engine.Notifier

	Cache            rulecache.Config
	ActivityCapacity int
	// zero for the tracker defaults
	ActivityMaxAge time.Duration
}

// Builds an Engine, with its own rule cache and activity tracker, from config. Nothing is shared between engines.
func NewEngine(cfg EngineConfig, logger *slog.Logger) (*Engine, *rulecache.Cache) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Counters == nil {
		cfg.Counters = countstore.NewMemCountStore()
	}
	if cfg.ActivityCapacity <= 0 {
		cfg.ActivityCapacity = activity.DefaultCapacity
	}
	if cfg.ActivityMaxAge <= 0 {
		cfg.ActivityMaxAge = activity.DefaultMaxAge
	}
	// rate rules must fit in what the tracker keeps
	cfg.Cache.Limits = engine.TrackerLimits{Capacity: cfg.ActivityCapacity, MaxAge: cfg.ActivityMaxAge}
	cache := rulecache.NewCache(cfg.Rules, cfg.Cache, logger)
	eng := &Engine{
		Logger:  logger.With("component", "automod"),
		Rules:   cache,
		Tracker: activity.NewTracker(cfg.ActivityCapacity),
		Executor: &engine.ActionExecutor{
			Gateway:   cfg.Gateway,
			Cases:     cfg.Cases,
			Counters:  cfg.Counters,
			Notifiers: cfg.Notifiers,
			Logger:    logger.With("component", "automod-executor"),
		},
		Counters: cfg.Counters,
	}
	eng.MaxActivityAge = cfg.ActivityMaxAge
	return eng, cache
}
