package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/storyweave/storyd/internal/config"
	"github.com/storyweave/storyd/internal/gateway"
	"github.com/storyweave/storyd/internal/generation"
	"github.com/storyweave/storyd/internal/jobs"
	"github.com/storyweave/storyd/internal/lock"
	"github.com/storyweave/storyd/internal/logging"
	"github.com/storyweave/storyd/internal/orchestrator"
	"github.com/storyweave/storyd/internal/store"
	"github.com/storyweave/storyd/internal/tools"
)

// app holds the wired components shared by the serve and generate
// commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	nc      *nats.Conn
	gateway *gateway.Gateway
	locker  lock.Locker
	tracker *jobs.Tracker
	service *orchestrator.Service
}

// newApp loads configuration and wires every component. Callers must
// Close.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	st, err := store.Open(a.cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = st
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	a.locker = a.newLocker(ctx)
	a.nc = a.connectNATS()

	read, err := tools.NewReadRegistry(st)
	if err != nil {
		return fmt.Errorf("build read tools: %w", err)
	}
	write, err := tools.NewWriteRegistry(st)
	if err != nil {
		return fmt.Errorf("build write tools: %w", err)
	}

	a.gateway, err = gateway.New(gateway.Config{
		Read:          read,
		Write:         write,
		TrustedCaller: a.cfg.Server.TrustedCaller,
		Logger:        a.logger,
	})
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}

	engine, err := orchestrator.NewEngine(a.gateway, a.newGenerator(), a.logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	a.tracker = jobs.NewTracker(a.nc, a.logger)
	a.service, err = orchestrator.NewService(engine, a.locker, a.tracker, lock.Options{
		TTL:               a.cfg.Lock.TTL.Duration(),
		HeartbeatInterval: a.cfg.Lock.HeartbeatInterval.Duration(),
	}, a.logger)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	return nil
}

// newLocker prefers the shared SQL lock; when its table cannot be
// prepared it falls back to the process-local lock so a single
// instance still runs.
func (a *app) newLocker(ctx context.Context) lock.Locker {
	sqlLocker := lock.NewSQLLocker(a.store.DB())
	if err := sqlLocker.Migrate(ctx); err != nil {
		a.logger.Warn("sql lock unavailable, falling back to process-local lock",
			zap.Error(err))
		return lock.NewLocalLocker()
	}
	return sqlLocker
}

// connectNATS connects for job event publishing. Failure is not
// fatal; tracking degrades to in-memory only.
func (a *app) connectNATS() *nats.Conn {
	if a.cfg.NATS.URL == "" {
		return nil
	}
	nc, err := nats.Connect(a.cfg.NATS.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		a.logger.Warn("nats unavailable, job events disabled",
			zap.String("url", a.cfg.NATS.URL),
			zap.Error(err))
		return nil
	}
	a.logger.Info("connected to nats", zap.String("url", a.cfg.NATS.URL))
	return nc
}

// newGenerator builds the provider client, or the always-failing
// generator when no key is configured. With no provider every chapter
// comes from the local fallback.
func (a *app) newGenerator() generation.Generator {
	if !a.cfg.Generation.APIKey.IsSet() {
		a.logger.Warn("no generation api key configured, using local fallback only")
		return generation.Disabled{}
	}
	gen, err := generation.NewOpenAI(
		a.cfg.Generation.Model,
		a.cfg.Generation.BaseURL,
		a.cfg.Generation.APIKey.Value(),
	)
	if err != nil {
		a.logger.Warn("generation provider init failed, using local fallback only",
			zap.Error(err))
		return generation.Disabled{}
	}
	a.logger.Info("generation provider configured",
		zap.String("model", a.cfg.Generation.Model))
	return gen
}

func (a *app) Close() {
	if a.nc != nil {
		a.nc.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
	}
	_ = logging.Sync(a.logger)
}
