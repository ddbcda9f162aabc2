package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mercator-hq/minerva/pkg/audit/retention"
	"mercator-hq/minerva/pkg/cli"
	"mercator-hq/minerva/pkg/decision"
	"mercator-hq/minerva/pkg/engine"
	"mercator-hq/minerva/pkg/profile"
	"mercator-hq/minerva/pkg/ruleset/source"
	"mercator-hq/minerva/pkg/telemetry/metrics"
	"mercator-hq/minerva/pkg/telemetry/tracing"
)

var runFlags struct {
	profilesPath string
	logLevel     string
	dryRun       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Minerva decision engine",
	Long: `Start the Minerva decision engine with the specified configuration.

The engine loads ruleset definitions from the configured source directory,
watches it for changes, serves Prometheus metrics when enabled, and runs the
decision cache sweep and audit retention schedules.

Examples:
  # Start with default config
  minerva run

  # Start with custom config
  minerva run --config /etc/minerva/config.yaml

  # Validate config without starting
  minerva run --dry-run`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.profilesPath, "profiles", "", "organization profiles YAML file")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runEngine(cmd *cobra.Command, args []string) error {
	if runFlags.logLevel != "" {
		// Folded in through the same pathway as the other env overrides.
		os.Setenv("MINERVA_LOG_LEVEL", runFlags.logLevel)
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()
	cfg := app.cfg

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Mercator Minerva v%s\n", Version)
	fmt.Println("✓ Configuration loaded")

	// Profile source
	profiles := profile.Source(profile.NewStaticSource())
	if runFlags.profilesPath != "" {
		loaded, err := profile.LoadFile(runFlags.profilesPath)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		profiles = loaded
		fmt.Println("✓ Organization profiles loaded")
	}

	// Telemetry
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics, nil)
	}

	tracer, err := tracing.New(cfg.Tracing)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			app.logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	// Engine
	cache := decision.NewCache()
	svc, err := engine.NewService(engine.ServiceConfig{
		Profiles:    profiles,
		Manager:     app.manager,
		Recorder:    app.recorder,
		Cache:       cache,
		Metrics:     collector,
		Tracer:      tracer,
		Logger:      app.logger,
		Executor:    cfg.Engine.Executor,
		DecisionTTL: cfg.Decisions.TTL,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	svc.SubscribeScopeChanges(func(ev engine.ScopeChangedEvent) {
		app.logger.Info("derived scope changed",
			"tenant", ev.TenantID,
			"ruleset", ev.RulesetCode,
			"artifacts", len(ev.New),
			"log_id", ev.ExecutionLogID,
		)
	})
	fmt.Println("✓ Decision engine initialized")

	ctx := cli.SetupSignalHandler()

	// Ruleset file source
	if cfg.Rulesets.SourceDir != "" {
		syncer := source.NewSyncer(source.NewLoader(), app.manager, app.rulesetStore, app.logger)
		syncer.AutoActivate = cfg.Rulesets.AutoActivate

		if cfg.Rulesets.Watch {
			watcher, err := source.NewWatcher(source.WatcherConfig{
				Dir:              cfg.Rulesets.SourceDir,
				DebounceInterval: cfg.Rulesets.DebounceInterval,
			}, syncer, app.logger)
			if err != nil {
				return cli.NewCommandError("run", err)
			}
			if err := watcher.Start(ctx); err != nil {
				return cli.NewCommandError("run", err)
			}
			defer watcher.Stop()
			fmt.Printf("✓ Watching rulesets in %s\n", cfg.Rulesets.SourceDir)
		} else {
			n, err := syncer.SyncDir(ctx, cfg.Rulesets.SourceDir)
			if err != nil {
				return cli.NewCommandError("run", err)
			}
			fmt.Printf("✓ Rulesets synced (%d versions applied)\n", n)
		}
	}

	// Decision cache sweep
	if cfg.Decisions.SweepEnabled {
		sweeper := decision.NewSweeper(cache, cfg.Decisions.SweepSchedule, app.logger)
		if collector != nil {
			sweeper.OnEvict = collector.CacheEvicted
		}
		if err := sweeper.Start(); err != nil {
			return cli.NewCommandError("run", err)
		}
		defer sweeper.Stop()
		fmt.Println("✓ Decision cache sweep scheduled")
	}

	// Audit retention
	if cfg.Audit.DecisionRetention > 0 {
		pruner, err := retention.NewPruner(app.auditStore, cfg.Audit.DecisionRetention, app.logger)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		scheduler := retention.NewScheduler(pruner, cfg.Audit.RetentionSchedule, app.logger)
		if err := scheduler.Start(); err != nil {
			return cli.NewCommandError("run", err)
		}
		defer scheduler.Stop()
		fmt.Println("✓ Audit retention scheduled")
	}

	// Metrics exposition
	var metricsSrv *http.Server
	if collector != nil && cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				app.logger.Error("metrics server failed", "error", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.Metrics.ListenAddr)
	}

	fmt.Println("\nPress Ctrl+C to stop")
	<-ctx.Done()

	fmt.Println("\nShutting down gracefully...")
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error("metrics shutdown failed", "error", err)
		}
	}
	fmt.Println("✓ Engine stopped")
	return nil
}
