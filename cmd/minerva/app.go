package main

import (
	"fmt"
	"log/slog"

	"mercator-hq/minerva/pkg/audit"
	auditstorage "mercator-hq/minerva/pkg/audit/storage"
	"mercator-hq/minerva/pkg/cli"
	"mercator-hq/minerva/pkg/config"
	"mercator-hq/minerva/pkg/ruleset"
	rulesetstorage "mercator-hq/minerva/pkg/ruleset/storage"
	"mercator-hq/minerva/pkg/telemetry/logging"
)

// app holds the collaborators every subcommand needs: configuration,
// logging, and the two stores with their managers.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	rulesetStore ruleset.Store
	auditStore   audit.Store
	manager      *ruleset.VersionManager
	recorder     *audit.Recorder

	closers []func() error
}

// newApp loads configuration and opens the stores. SQLite backends are
// selected by configured paths; empty paths fall back to in-memory stores,
// which is only useful for one-shot commands fed by --dir flags.
func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, closeLog, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, cli.NewConfigError("logging", err.Error())
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, closeLog)

	if cfg.Rulesets.StorePath != "" {
		store, err := rulesetstorage.NewSQLiteStore(rulesetstorage.SQLiteConfig{
			DBPath: cfg.Rulesets.StorePath,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open ruleset store: %w", err)
		}
		a.rulesetStore = store
	} else {
		a.rulesetStore = rulesetstorage.NewMemoryStore()
	}
	a.closers = append(a.closers, a.rulesetStore.Close)

	if cfg.Audit.DBPath != "" {
		store, err := auditstorage.NewSQLiteStore(&auditstorage.SQLiteConfig{
			Path: cfg.Audit.DBPath,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		a.auditStore = store
	} else {
		a.auditStore = auditstorage.NewMemoryStore()
	}
	a.closers = append(a.closers, a.auditStore.Close)

	a.manager = ruleset.NewVersionManager(a.rulesetStore, logger)
	a.recorder = audit.NewRecorder(a.auditStore, logger)
	return a, nil
}

// Close releases resources in reverse open order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
