package cliutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Opens a gorm database handle from a DATABASE_URL style string.
//
// Supported forms: "sqlite://path", "sqlite=path", "postgres://...", "postgresql://...", "postgres=dsn".
func SetupDatabase(dburl string, maxConnections int) (*gorm.DB, error) {
	var dial gorm.Dialector
	// NOTE: might also handle file:// as sqlite, but let's keep it explicit for now

	isSqlite := false
	openConns := maxConnections
	if strings.HasPrefix(dburl, "sqlite://") || strings.HasPrefix(dburl, "sqlite=") {
		sqliteSuffix := strings.TrimPrefix(strings.TrimPrefix(dburl, "sqlite://"), "sqlite=")
		// if this isn't ":memory:", ensure that directory exists (eg, if db
		// file is being initialized)
		if !strings.Contains(sqliteSuffix, ":memory:") {
			if err := os.MkdirAll(filepath.Dir(sqliteSuffix), os.ModePerm); err != nil {
				return nil, err
			}
		}
		dial = sqlite.Open(sqliteSuffix)
		openConns = 1
		isSqlite = true
	} else if strings.HasPrefix(dburl, "postgresql://") || strings.HasPrefix(dburl, "postgres://") {
		// can pass entire URL, with prefix, to gorm driver
		dial = postgres.Open(dburl)
	} else if strings.HasPrefix(dburl, "postgres=") {
		dsn := dburl[len("postgres="):]
		dial = postgres.Open(dsn)
	} else {
		// don't echo the value back; it may contain a password
		return nil, fmt.Errorf("unsupported or unrecognized DATABASE_URL scheme")
	}

	gormLogger := slogGorm.New()

	db, err := gorm.Open(dial, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}

	if openConns <= 0 {
		openConns = 10
	}
	sqldb.SetMaxIdleConns(openConns)
	sqldb.SetMaxOpenConns(openConns)
	sqldb.SetConnMaxIdleTime(time.Hour)

	if isSqlite {
		// Set pragmas for sqlite
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA synchronous=normal;").Error; err != nil {
			return nil, err
		}
	}

	return db, nil
}

type LogOptions struct {
	// info|debug|warn|error
	LogLevel string

	// text|json
	LogFormat string

	// path to write to; "" or "-" means stdout
	LogPath string

	// rotate the log file at this size, in megabytes (0 disables rotation)
	LogRotateMB int

	// keep N old log files when rotating
	KeepOld int
}

func firstenv(envVarNames ...string) string {
	for _, name := range envVarNames {
		val := os.Getenv(name)
		if val != "" {
			return val
		}
	}
	return ""
}

// SetupSlog integrates passed in options and env vars, and installs the resulting logger as the slog default.
//
// passing default cliutil.LogOptions{} is ok.
//
// WARDEN_LOG_LEVEL=info|debug|warn|error
//
// WARDEN_LOG_FMT=text|json
//
// WARDEN_LOG_FILE=path (or "-" or "" for stdout)
func SetupSlog(options LogOptions) (*slog.Logger, error) {
	var hopts slog.HandlerOptions
	if options.LogLevel == "" {
		options.LogLevel = firstenv("WARDEN_LOG_LEVEL", "LOG_LEVEL")
	}
	switch strings.ToLower(options.LogLevel) {
	case "", "info":
		hopts.Level = slog.LevelInfo
	case "debug":
		hopts.Level = slog.LevelDebug
	case "warn":
		hopts.Level = slog.LevelWarn
	case "error":
		hopts.Level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %#v", options.LogLevel)
	}

	if options.LogFormat == "" {
		options.LogFormat = firstenv("WARDEN_LOG_FMT", "LOG_FMT")
	}
	if options.LogFormat == "" {
		options.LogFormat = "text"
	}
	options.LogFormat = strings.ToLower(options.LogFormat)

	if options.LogPath == "" {
		options.LogPath = firstenv("WARDEN_LOG_FILE")
	}
	var out io.Writer
	if options.LogPath == "" || options.LogPath == "-" {
		out = os.Stdout
	} else if options.LogRotateMB > 0 {
		out = &lumberjack.Logger{
			Filename:   options.LogPath,
			MaxSize:    options.LogRotateMB,
			MaxBackups: options.KeepOld,
		}
	} else {
		f, err := os.OpenFile(options.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", options.LogPath, err)
		}
		out = f
	}

	var handler slog.Handler
	switch options.LogFormat {
	case "text":
		handler = slog.NewTextHandler(out, &hopts)
	case "json":
		handler = slog.NewJSONHandler(out, &hopts)
	default:
		return nil, fmt.Errorf("unknown log format: %#v", options.LogFormat)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
