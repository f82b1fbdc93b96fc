package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wardenbot/warden/automod/activity"
	"github.com/wardenbot/warden/automod/engine"
	"github.com/wardenbot/warden/automod/rulecache"
	"github.com/wardenbot/warden/automod/rulestore"
	"github.com/wardenbot/warden/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "guild auto-moderation daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: text or json",
			EnvVars: []string{"WARDEN_LOG_FMT", "LOG_FMT"},
		},
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "write logs to this file instead of stdout",
			EnvVars: []string{"WARDEN_LOG_FILE"},
		},
		&cli.IntFlag{
			Name:    "log-rotate-mb",
			Usage:   "rotate the log file at this size, in megabytes (0 disables)",
			EnvVars: []string{"WARDEN_LOG_ROTATE_MB"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database for rules and cases (sqlite:// or postgres://)",
			Value:   "sqlite://data/warden/warden.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit OpenTelemetry spans for database queries",
			EnvVars: []string{"WARDEN_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "rulestore-url",
			Usage:   "base URL of a remote rule API; when unset rules are read from the database",
			EnvVars: []string{"WARDEN_RULESTORE_URL"},
		},
		&cli.StringFlag{
			Name:    "rulestore-token",
			Usage:   "bearer token for the remote rule API",
			EnvVars: []string{"WARDEN_RULESTORE_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "rulestore-rate-limit",
			Usage:   "max requests per second to the remote rule API",
			Value:   20,
			EnvVars: []string{"WARDEN_RULESTORE_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "activity-capacity",
			Usage:   "recent messages remembered per user",
			Value:   activity.DefaultCapacity,
			EnvVars: []string{"WARDEN_ACTIVITY_CAPACITY"},
		},
		&cli.DurationFlag{
			Name:    "activity-max-age",
			Usage:   "activity older than this is dropped by the periodic sweep; rate rules with longer timeframes are rejected",
			Value:   activity.DefaultMaxAge,
			EnvVars: []string{"WARDEN_ACTIVITY_MAX_AGE"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		checkRulesCmd,
	}

	app.Before = func(cctx *cli.Context) error {
		_, err := cliutil.SetupSlog(cliutil.LogOptions{
			LogLevel:    cctx.String("log-level"),
			LogFormat:   cctx.String("log-format"),
			LogPath:     cctx.String("log-file"),
			LogRotateMB: cctx.Int("log-rotate-mb"),
			KeepOld:     3,
		})
		return err
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "discord-token",
			Usage:    "bot token for the Discord API",
			Required: true,
			EnvVars:  []string{"DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis for counters and rule invalidation signals (optional)",
			EnvVars: []string{"WARDEN_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server for rule invalidation signals (optional)",
			EnvVars: []string{"WARDEN_NATS_URL", "NATS_URL"},
		},
		&cli.DurationFlag{
			Name:    "rule-cache-ttl",
			Usage:   "how long fetched guild rules are used before re-fetching",
			Value:   rulecache.DefaultTTL,
			EnvVars: []string{"WARDEN_RULE_CACHE_TTL"},
		},
		&cli.DurationFlag{
			Name:    "rule-fetch-timeout",
			Usage:   "timeout for each rule fetch attempt",
			Value:   rulecache.DefaultFetchTimeout,
			EnvVars: []string{"WARDEN_RULE_FETCH_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "rule-fetch-retries",
			Value:   rulecache.DefaultFetchRetries,
			EnvVars: []string{"WARDEN_RULE_FETCH_RETRIES"},
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Value:   activity.DefaultSweepInterval,
			EnvVars: []string{"WARDEN_SWEEP_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "action-timeout",
			Usage:   "timeout for each moderation action against the Discord API",
			Value:   engine.DefaultActionTimeout,
			EnvVars: []string{"WARDEN_ACTION_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "notice-ttl",
			Usage:   "post a short-lived notice in the channel after enforcement (0 disables)",
			Value:   10 * time.Second,
			EnvVars: []string{"WARDEN_NOTICE_TTL"},
		},
		&cli.StringSliceFlag{
			Name:    "exempt-role",
			Usage:   "role IDs whose members are never evaluated",
			EnvVars: []string{"WARDEN_EXEMPT_ROLES"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "admin-password",
			Usage:   "bearer token for admin API endpoints; admin API is disabled when unset",
			EnvVars: []string{"WARDEN_ADMIN_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := slog.Default()

		shutdownOTEL, err := configOTEL(ctx, "warden")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		db, err := setupDatabase(cctx)
		if err != nil {
			return err
		}
		store, err := configRuleStore(cctx, db)
		if err != nil {
			return err
		}

		srv, err := NewServer(
			db,
			store,
			Config{
				Logger:           logger,
				DiscordToken:     cctx.String("discord-token"),
				RedisURL:         cctx.String("redis-url"),
				NATSURL:          cctx.String("nats-url"),
				RuleCacheTTL:     cctx.Duration("rule-cache-ttl"),
				RuleFetchTimeout: cctx.Duration("rule-fetch-timeout"),
				RuleFetchRetries: cctx.Int("rule-fetch-retries"),
				ActivityCapacity: cctx.Int("activity-capacity"),
				ActivityMaxAge:   cctx.Duration("activity-max-age"),
				SweepInterval:    cctx.Duration("sweep-interval"),
				ActionTimeout:    cctx.Duration("action-timeout"),
				NoticeTTL:        cctx.Duration("notice-ttl"),
				ExemptRoles:      cctx.StringSlice("exempt-role"),
				Bind:             cctx.String("bind"),
				AdminPassword:    cctx.String("admin-password"),
				SlackWebhookURL:  cctx.String("slack-webhook-url"),
			},
		)
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run automod service: %w", err)
		}
		return nil
	},
}

var checkRulesCmd = &cli.Command{
	Name:      "check-rules",
	Usage:     "fetch and compile a guild's rules, reporting any which would be skipped",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "guild",
			Usage:    "guild ID to check",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, cancel := context.WithTimeout(cctx.Context, rulecache.DefaultFetchTimeout)
		defer cancel()

		db, err := setupDatabase(cctx)
		if err != nil {
			return err
		}
		store, err := configRuleStore(cctx, db)
		if err != nil {
			return err
		}
		guildID := cctx.String("guild")
		stored, err := store.GetRules(ctx, guildID)
		if err != nil {
			return err
		}
		limits := engine.TrackerLimits{
			Capacity: cctx.Int("activity-capacity"),
			MaxAge:   cctx.Duration("activity-max-age"),
		}
		return printRuleCheck(cctx.App.Writer, guildID, stored, limits)
	},
}

// Opens the database named by --database-url (which defaults to a local sqlite file). Returns nil only when the flag is explicitly empty.
func setupDatabase(cctx *cli.Context) (*gorm.DB, error) {
	dburl := cctx.String("database-url")
	if dburl == "" {
		return nil, nil
	}
	slog.Info("setting up database")
	db, err := cliutil.SetupDatabase(dburl, cctx.Int("max-db-connections"))
	if err != nil {
		return nil, err
	}
	if cctx.Bool("db-tracing") {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func configRuleStore(cctx *cli.Context, db *gorm.DB) (rulestore.RuleStore, error) {
	if host := cctx.String("rulestore-url"); host != "" {
		slog.Info("reading rules from remote API", "host", host)
		return rulestore.NewHTTPRuleStore(host, cctx.String("rulestore-token"), cctx.Int("rulestore-rate-limit")), nil
	}
	if db == nil {
		return nil, fmt.Errorf("either --rulestore-url or --database-url is required")
	}
	return rulestore.NewSQLRuleStore(db)
}
