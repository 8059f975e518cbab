package main

import (
	"fmt"

	"histlens/internal/analyzer"
	"histlens/internal/auth"
	"histlens/internal/cache"
	"histlens/internal/config"
	"histlens/internal/eligibility"
	"histlens/internal/gitsource"
	"histlens/internal/logging"
	"histlens/internal/orchestrator"
	"histlens/internal/prompt"
	"histlens/internal/routing"
	"histlens/internal/storage"
)

// engine bundles the wired subsystems a command needs.
type engine struct {
	cfg    *config.Config
	logger *logging.Logger
	source *gitsource.Source
	cache  *cache.Cache
	router *routing.Router
	orch   *orchestrator.Orchestrator
	db     *storage.DB
	tokens *auth.Store
}

// buildEngine loads configuration and wires the full analysis stack
// for a repository.
func buildEngine(repoRoot string) (*engine, error) {
	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.LogLevel(cfg.Logging.Level),
	})

	source := gitsource.New(repoRoot, logger)

	var store *cache.Cache
	if cfg.Cache.Enabled {
		store = cache.New(cache.Options{
			Dir:                  config.StorageDir(repoRoot),
			FastTierMaxEntries:   cfg.Cache.FastTierMaxEntries,
			PersistentMaxEntries: cfg.Cache.PersistentMaxEntries,
			TTL:                  cfg.Cache.TTL(),
			SweepInterval:        cfg.Cache.SweepInterval(),
		}, logger)
		store.StartSweeper()
	}

	db, err := storage.Open(repoRoot, logger)
	if err != nil {
		return nil, fmt.Errorf("opening metrics store: %w", err)
	}

	overrides, err := prompt.LoadOverrides(cfg.Analysis.PromptOverride)
	if err != nil {
		return nil, err
	}

	policy, err := eligibility.LoadPolicy(cfg.Filter.PolicyFile)
	if err != nil {
		return nil, err
	}
	filterCfg := policy.Apply(cfg.Filter)

	router := routing.NewRouter(logger)
	orch := orchestrator.New(orchestrator.Options{
		Config:  cfg,
		Source:  source,
		Filter:  eligibility.New(filterCfg, source, logger),
		Cache:   store,
		Client:  analyzer.New(cfg.Analysis, logger),
		Router:  router,
		Prompts: prompt.NewBuilder(cfg.Analysis.Model, overrides),
		Metrics: db,
		Logger:  logger,
	})

	return &engine{
		cfg:    cfg,
		logger: logger,
		source: source,
		cache:  store,
		router: router,
		orch:   orch,
		db:     db,
		tokens: auth.NewStore(db),
	}, nil
}

func (e *engine) close() {
	if e.cache != nil {
		e.cache.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
}
