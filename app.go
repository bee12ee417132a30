package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/adapter/llm"
	"github.com/Nitesh802/customerintel-sub008/internal/config"
	"github.com/Nitesh802/customerintel-sub008/internal/logging"
	"github.com/Nitesh802/customerintel-sub008/internal/pipeline"
	"github.com/Nitesh802/customerintel-sub008/internal/repository"
	"github.com/Nitesh802/customerintel-sub008/internal/schema"
	"github.com/Nitesh802/customerintel-sub008/internal/service"
	"github.com/Nitesh802/customerintel-sub008/policy"
)

// app is the wired process: store, model client, orchestrator and service.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *repository.SQLiteStore
	schemas *schema.Registry
	orch    *pipeline.Orchestrator
	svc     *service.Service
}

func loadConfig() (*config.Config, error) {
	if rootFlags.configFile != "" {
		os.Setenv("CONFIG_FILE", rootFlags.configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if rootFlags.logLevel != "" {
		cfg.Logging.Level = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.Logging.Format = rootFlags.logFormat
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	db, err := repository.NewSQLiteStore(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	schemas, err := schema.NewRegistry(cfg.Pipeline.SchemaDir, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	client, err := llm.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}

	policyEngine, err := policy.NewDefaultEngine(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	orch := pipeline.New(db, client, schemas, policyEngine, cfg, logger)
	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   db,
		schemas: schemas,
		orch:    orch,
		svc:     service.New(db, orch, cfg, logger),
	}, nil
}

func (a *app) Close() {
	a.svc.Wait()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
