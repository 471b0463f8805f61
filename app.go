package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hazyhaar/scribby/internal/config"
	"github.com/hazyhaar/scribby/internal/db"
	"github.com/hazyhaar/scribby/internal/llm"
	"github.com/hazyhaar/scribby/internal/passage"
	"github.com/hazyhaar/scribby/internal/rediscache"
	"github.com/hazyhaar/scribby/internal/service"
	"github.com/hazyhaar/scribby/pkg/audit"
	"github.com/hazyhaar/scribby/pkg/trace"
)

// app holds every long-lived component of one CLI invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *db.DB
	metrics *db.MetricsDB
	traces  *trace.Store
	audit   *audit.SQLiteLogger
	redis   *rediscache.Cache
	router  *llm.Router
	svc     *service.Service
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func openApp(ctx context.Context, configPath string) (*app, error) {
	if err := config.LoadDotenv(".env"); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	var err error
	if a.db, err = db.Open(a.cfg.Database.Path); err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if a.metrics, err = db.OpenMetrics(a.cfg.Database.MetricsPath, a.logger); err != nil {
		return fmt.Errorf("opening metrics database: %w", err)
	}

	a.traces = trace.NewStore(a.metrics.DB, a.logger)
	if err := a.traces.Init(); err != nil {
		return fmt.Errorf("initializing trace store: %w", err)
	}
	a.audit = audit.NewSQLiteLogger(a.db.DB, a.logger)
	if err := a.audit.Init(); err != nil {
		return fmt.Errorf("initializing audit log: %w", err)
	}

	ttl := time.Duration(a.cfg.Cache.TTLHours) * time.Hour
	var studies llm.StudyCache
	var passages passage.Cache
	switch a.cfg.Cache.Backend {
	case "redis":
		if a.redis, err = rediscache.New(ctx, a.cfg.Cache.RedisURL, ttl); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		studies, passages = a.redis, a.redis
	default:
		studies, passages = a.db.Studies(ttl), a.db
	}

	reg := llm.NewFromConfig(a.cfg.LLM, llm.Options{Logger: a.logger, Recorder: a.metrics})
	a.router = llm.NewRouter(reg, llm.RouterConfig{
		Mode:           a.cfg.LLM.Provider,
		AttemptTimeout: time.Duration(a.cfg.LLM.AttemptTimeoutSec) * time.Second,
		Cache:          studies,
		Tracer:         a.traces,
		Logger:         a.logger,
	})

	pc := passage.New(passage.Config{
		APIKey:          a.cfg.Passage.APIKey,
		BaseURL:         a.cfg.Passage.BaseURL,
		IncludeHeadings: a.cfg.Passage.IncludeHeadings,
		Timeout:         time.Duration(a.cfg.Passage.TimeoutSec) * time.Second,
	}, passages, a.logger)

	a.svc = &service.Service{
		Router:   a.router,
		Passages: pc,
		History:  a.db,
		Logger:   a.logger,
	}

	a.logger.Debug("scribby ready",
		"database", a.cfg.Database.Path,
		"cache", a.cfg.Cache.Backend,
		"mode", a.router.Mode(),
		"available", len(reg.Available()))
	return nil
}

// Close flushes the async writers before closing the databases.
func (a *app) Close() {
	if a.audit != nil {
		a.audit.Close()
	}
	if a.traces != nil {
		a.traces.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.metrics != nil {
		a.metrics.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
