package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/brdforge/internal/classify"
	"github.com/fyrsmithlabs/brdforge/internal/config"
	"github.com/fyrsmithlabs/brdforge/internal/events"
	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"github.com/fyrsmithlabs/brdforge/internal/model"
	"github.com/fyrsmithlabs/brdforge/internal/store"
	"github.com/fyrsmithlabs/brdforge/internal/synthesis"
	"github.com/fyrsmithlabs/brdforge/internal/telemetry"
	"github.com/fyrsmithlabs/brdforge/internal/validate"
)

// app holds the wired services shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     store.Store
	publisher events.Publisher

	pipeline  *classify.Pipeline
	synth     *synthesis.Orchestrator
	validator *validate.Validator

	closers []func(context.Context) error
}

// loadConfig loads the config file and environment, then applies flag
// overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.storeDriver != "" {
		cfg.Store.Driver = opts.storeDriver
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

// newBaseRuntime initializes config, telemetry, logging and the store.
// Commands that never call the model stop here.
func newBaseRuntime(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	rt := &app{cfg: cfg, publisher: events.NopPublisher{}}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	rt.telemetry = tel
	rt.closers = append(rt.closers, tel.Shutdown)

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}
	logCfg.Output.OTEL = cfg.Telemetry.Enabled
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	rt.logger = logger
	rt.closers = append(rt.closers, func(context.Context) error {
		_ = logger.Sync() // Best-effort sync on shutdown
		return nil
	})
	if health := tel.Health(); health.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", health.Reasons))
	}

	switch cfg.Store.Driver {
	case "postgres":
		pg, err := store.OpenPostgres(ctx, cfg.Store, logger)
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		rt.store = pg
	default:
		rt.store = store.NewMemoryStore()
	}
	rt.closers = append(rt.closers, func(context.Context) error { return rt.store.Close() })

	if cfg.Events.Enabled {
		pub, err := events.Connect(cfg.Events.URL, cfg.Events.SubjectPrefix)
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("failed to initialize events: %w", err)
		}
		rt.publisher = pub
		rt.closers = append(rt.closers, func(context.Context) error { return pub.Close() })
		logger.Info(ctx, "connected to nats", zap.String("url", cfg.Events.URL))
	}

	logger.Info(ctx, "runtime initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("events", cfg.Events.Enabled),
		zap.Bool("telemetry", tel.IsEnabled()))
	return rt, nil
}

// newRuntime additionally wires the model client and the three services
// that call it.
func newRuntime(ctx context.Context, opts *rootOptions) (*app, error) {
	rt, err := newBaseRuntime(ctx, opts)
	if err != nil {
		return nil, err
	}
	client, err := model.NewClient(rt.cfg.Model, rt.logger)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	rt.logger.Info(ctx, "model client initialized",
		zap.String("provider", rt.cfg.Model.Provider),
		zap.String("model", rt.cfg.Model.Name),
		logging.Secret("api_key", rt.cfg.Model.APIKey))

	batch := classify.NewBatchClient(client, classify.BatchConfigFrom(rt.cfg.Classify), rt.logger)
	rt.pipeline = classify.NewPipeline(batch, rt.store,
		classify.WithPublisher(rt.publisher),
		classify.WithLogger(rt.logger),
	)
	rt.synth = synthesis.NewOrchestrator(rt.store, client, synthesis.ConfigFrom(rt.cfg.Synthesis),
		synthesis.WithPublisher(rt.publisher),
		synthesis.WithLogger(rt.logger),
	)
	rt.validator = validate.NewValidator(rt.store, client,
		validate.WithPublisher(rt.publisher),
		validate.WithLogger(rt.logger),
	)
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
