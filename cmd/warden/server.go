package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wardenbot/warden/automod"
	"github.com/wardenbot/warden/automod/caselog"
	"github.com/wardenbot/warden/automod/countstore"
	"github.com/wardenbot/warden/automod/engine"
	"github.com/wardenbot/warden/automod/gateway"
	"github.com/wardenbot/warden/automod/invalidation"
	"github.com/wardenbot/warden/automod/rulecache"
	"github.com/wardenbot/warden/automod/rulestore"

	"github.com/bwmarrin/discordgo"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Server struct {
	logger  *slog.Logger
	engine  *automod.Engine
	cache   *rulecache.Cache
	session *discordgo.Session
	exempt  *exemptChecker
	rdb     *redis.Client
	nc      *nats.Conn
	httpd   *http.Server
	cron    *cron.Cron

	// bounds handling of a single gateway event
	eventTimeout time.Duration
	// cancelled on shutdown; parent of event handling contexts
	baseCtx context.Context
}

type Config struct {
	Logger           *slog.Logger
	DiscordToken     string
	RedisURL         string
	NATSURL          string
	RuleCacheTTL     time.Duration
	RuleFetchTimeout time.Duration
	RuleFetchRetries int
	ActivityCapacity int
	ActivityMaxAge   time.Duration
	SweepInterval    time.Duration
	ActionTimeout    time.Duration
	NoticeTTL        time.Duration
	ExemptRoles      []string
	Bind             string
	AdminPassword    string
	SlackWebhookURL  string
}

func NewServer(db *gorm.DB, store rulestore.RuleStore, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	session, err := discordgo.New("Bot " + config.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	gw := gateway.NewDiscordGateway(session, logger)

	var cases caselog.CaseLog
	if db != nil {
		sc, err := caselog.NewSQLCaseLog(db)
		if err != nil {
			return nil, fmt.Errorf("initializing case log: %w", err)
		}
		cases = sc
	} else {
		logger.Warn("no database configured, automod cases will only be kept in memory")
		cases = caselog.NewMemCaseLog()
	}

	var counters countstore.CountStore
	var rdb *redis.Client
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		_, err = rdb.Ping(context.TODO()).Result()
		if err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}
		counters = countstore.NewRedisCountStore(rdb)
	} else {
		counters = countstore.NewMemCountStore()
	}

	var nc *nats.Conn
	if config.NATSURL != "" {
		nc, err = invalidation.ConnectNATS(config.NATSURL, "warden", logger)
		if err != nil {
			return nil, err
		}
	}

	var notifiers []engine.Notifier
	if config.SlackWebhookURL != "" {
		notifiers = append(notifiers, &engine.SlackNotifier{SlackWebhookURL: config.SlackWebhookURL})
	}
	if config.NoticeTTL > 0 {
		notifiers = append(notifiers, &channelNotifier{gw: gw, ttl: config.NoticeTTL})
	}

	eng, cache := automod.NewEngine(automod.EngineConfig{
		Rules:     store,
		Cases:     cases,
		Gateway:   gw,
		Counters:  counters,
		Notifiers: notifiers,
		Cache: rulecache.Config{
			TTL:          config.RuleCacheTTL,
			FetchTimeout: config.RuleFetchTimeout,
			FetchRetries: config.RuleFetchRetries,
		},
		ActivityCapacity: config.ActivityCapacity,
		ActivityMaxAge:   config.ActivityMaxAge,
	}, logger)
	eng.Executor.ActionTimeout = config.ActionTimeout

	s := &Server{
		logger:       logger,
		engine:       eng,
		cache:        cache,
		session:      session,
		exempt:       newExemptChecker(config.ExemptRoles, session.State),
		rdb:          rdb,
		nc:           nc,
		cron:         cron.New(),
		eventTimeout: 30 * time.Second,
		baseCtx:      context.Background(),
	}

	interval := config.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if _, err := s.cron.AddFunc("@every "+interval.String(), s.sweep); err != nil {
		return nil, fmt.Errorf("scheduling activity sweep: %w", err)
	}

	if config.AdminPassword != "" {
		s.httpd = &http.Server{
			Handler:        newAdminAPI(logger, eng, cache, config.AdminPassword),
			Addr:           config.Bind,
			WriteTimeout:   1 * time.Minute,
			ReadTimeout:    1 * time.Minute,
			MaxHeaderBytes: 1 * (1024 * 1024),
		}
	} else {
		logger.Warn("no admin password configured, admin API disabled")
	}

	session.AddHandler(s.handleGuildMemberAdd)
	session.AddHandler(s.handleMessageCreate)
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		logger.Info("discord session ready", "user", r.User.ID, "guilds", len(r.Guilds))
	})

	return s, nil
}

func (s *Server) sweep() {
	removed := s.engine.Sweep(time.Now())
	s.logger.Info("activity sweep complete", "removed", removed, "subjects", s.engine.Tracker.Len())
}

// Runs until SIGINT/SIGTERM, or until a component fails.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	s.baseCtx = ctx

	if err := s.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	s.cron.Start()

	g, gctx := errgroup.WithContext(ctx)
	if s.rdb != nil {
		sub := invalidation.NewRedisSubscriber(s.rdb, s.logger)
		g.Go(func() error { return sub.Run(gctx, s.engine.Reload) })
	}
	if s.nc != nil {
		sub := invalidation.NewNATSSubscriber(s.nc, s.logger)
		g.Go(func() error { return sub.Run(gctx, s.engine.Reload) })
	}
	if s.httpd != nil {
		g.Go(func() error {
			s.logger.Info("starting admin API", "bind", s.httpd.Addr)
			if err := s.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin API: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		return s.shutdown()
	})

	err := g.Wait()
	s.logger.Info("graceful shutdown complete")
	return err
}

func (s *Server) shutdown() error {
	var errs []error
	<-s.cron.Stop().Done()
	if s.httpd != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpd.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin API shutdown: %w", err))
		}
	}
	if err := s.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing discord session: %w", err))
	}
	if s.nc != nil {
		s.nc.Close()
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}
