package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"

	"cascade/internal/config"
	"cascade/internal/dispatch"
	"cascade/internal/orchestrator"
	"cascade/internal/provider"
	"cascade/internal/signals"
	"cascade/internal/state"
	"cascade/internal/synth"
)

// openStore opens the project database when a .cascade directory exists
// in or above the working directory, otherwise the global one.
func openStore() (state.Store, error) {
	db, err := state.Open(statePath())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// statePath resolves the database path, preferring a project-local
// .cascade directory.
func statePath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return state.GlobalDBPath()
	}
	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, ".cascade")); err == nil {
			return state.ProjectDBPath(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return state.GlobalDBPath()
}

// buildRegistry registers the requested provider adapter. The adapter
// named "bedrock" routes through AWS; anything else is the direct API.
func buildRegistry(cfg *config.Config, providerName, model string) (*provider.Registry, error) {
	if providerName == "" {
		providerName = cfg.Provider.Name
	}
	if model == "" {
		model = cfg.Provider.Model
	}

	adapter, err := provider.NewAnthropic(provider.AnthropicConfig{
		Model:      anthropic.Model(model),
		APIKey:     cfg.Provider.APIKey,
		MaxTokens:  cfg.Provider.MaxTokens,
		UseBedrock: providerName == "bedrock",
		AWSRegion:  cfg.Provider.AWSRegion,
		AWSProfile: cfg.Provider.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: provider %q: %v", orchestrator.ErrConfig, providerName, err)
	}
	if adapter.Name() != providerName {
		return nil, fmt.Errorf("%w: unknown provider %q", orchestrator.ErrConfig, providerName)
	}

	registry := provider.NewRegistry()
	registry.Register(adapter)
	return registry, nil
}

// buildEngine assembles the full orchestration stack. The returned
// cleanup closes the store and the signal watcher.
func buildEngine(cfg *config.Config, providerName, model string) (*orchestrator.Engine, state.Store, func(), error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, nil, err
	}

	registry, err := buildRegistry(cfg, providerName, model)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	retry := provider.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Retry.MaxAttempts
	retry.InitialDelay = cfg.Retry.InitialDelay
	retry.MaxDelay = cfg.Retry.MaxDelay
	retry.CallTimeout = cfg.Retry.CallTimeout

	dispatcher := dispatch.New(dispatch.Config{
		Registry:    registry,
		Retry:       retry,
		PoolSize:    cfg.Limits.PoolSize,
		TierTimeout: cfg.Limits.TierTimeout,
		CarryBudget: cfg.Limits.CarryBudget,
	})
	synthesizer := synth.New(registry, retry)

	// Signal files live next to the database.
	sigs, err := signals.NewManager(filepath.Dir(statePath()))
	if err != nil {
		sigs = nil
	}

	engine := orchestrator.NewEngine(orchestrator.EngineConfig{
		Store:       store,
		Dispatcher:  dispatcher,
		Synthesizer: synthesizer,
		Signals:     sigs,
	})

	cleanup := func() {
		if sigs != nil {
			sigs.Close()
		}
		store.Close()
	}
	return engine, store, cleanup, nil
}
