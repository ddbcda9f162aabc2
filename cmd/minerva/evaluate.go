package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/minerva/pkg/cli"
	"mercator-hq/minerva/pkg/decision"
	"mercator-hq/minerva/pkg/engine"
	"mercator-hq/minerva/pkg/profile"
	"mercator-hq/minerva/pkg/ruleset/source"
)

var evaluateFlags struct {
	tenant       string
	rulesetCode  string
	profilesPath string
	rulesetDir   string
	format       string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Derive a tenant's compliance scope",
	Long: `Evaluate the Active version of a ruleset against a tenant's organization
profile and print the derived compliance scope.

The run is recorded in the audit store like any other evaluation.

Examples:
  # Evaluate against the configured ruleset store
  minerva evaluate --tenant t-acme --ruleset KSA-BASE --profiles profiles.yaml

  # Load and activate rulesets from a directory first (ad-hoc runs)
  minerva evaluate --tenant t-acme --ruleset KSA-BASE \
    --profiles profiles.yaml --dir rulesets/

  # JSON output for scripting
  minerva evaluate --tenant t-acme --ruleset KSA-BASE \
    --profiles profiles.yaml --format json`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&evaluateFlags.tenant, "tenant", "t", "", "tenant id (required)")
	evaluateCmd.Flags().StringVarP(&evaluateFlags.rulesetCode, "ruleset", "r", "", "ruleset code (required)")
	evaluateCmd.Flags().StringVarP(&evaluateFlags.profilesPath, "profiles", "p", "", "organization profiles YAML file (required)")
	evaluateCmd.Flags().StringVarP(&evaluateFlags.rulesetDir, "dir", "d", "", "sync ruleset definitions from this directory first")
	evaluateCmd.Flags().StringVar(&evaluateFlags.format, "format", "text", "output format: text, json")
	evaluateCmd.MarkFlagRequired("tenant")
	evaluateCmd.MarkFlagRequired("ruleset")
	evaluateCmd.MarkFlagRequired("profiles")
}

// oneShotService builds an engine service for a single command invocation:
// profiles from a file, stores from the app, no metrics or tracing.
func oneShotService(ctx context.Context, app *app, profilesPath, rulesetDir string) (*engine.Service, error) {
	profiles, err := profile.LoadFile(profilesPath)
	if err != nil {
		return nil, err
	}

	if rulesetDir != "" {
		syncer := source.NewSyncer(source.NewLoader(), app.manager, app.rulesetStore, app.logger)
		if _, err := syncer.SyncDir(ctx, rulesetDir); err != nil {
			return nil, err
		}
	}

	return engine.NewService(engine.ServiceConfig{
		Profiles:    profiles,
		Manager:     app.manager,
		Recorder:    app.recorder,
		Cache:       decision.NewCache(),
		Logger:      app.logger,
		Executor:    app.cfg.Engine.Executor,
		DecisionTTL: app.cfg.Decisions.TTL,
	})
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(evaluateFlags.format)
	if err != nil {
		return err
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	svc, err := oneShotService(ctx, app, evaluateFlags.profilesPath, evaluateFlags.rulesetDir)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	result, err := svc.Evaluate(ctx, evaluateFlags.tenant, evaluateFlags.rulesetCode)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, result.Scope)
	}

	fmt.Printf("Tenant:     %s\n", evaluateFlags.tenant)
	fmt.Printf("Ruleset:    %s\n", evaluateFlags.rulesetCode)
	fmt.Printf("Log ID:     %s\n", result.ExecutionLogID)
	fmt.Printf("Rules:      %d evaluated, %d matched\n", result.RulesEvaluated, len(result.Matched))
	fmt.Printf("Confidence: %d\n\n", result.Confidence)

	if len(result.Scope.Artifacts) == 0 {
		fmt.Println("No artifacts derived.")
	}
	for _, artifact := range result.Scope.Artifacts {
		fmt.Printf("  %-9s %-20s %s\n", artifact.Kind, artifact.Code, artifact.Applicability)
		for _, reason := range artifact.Reasons {
			fmt.Printf("            via %s (priority %d): %s\n", reason.RuleCode, reason.Priority, reason.Action)
		}
	}
	for _, artifact := range result.Scope.Excluded {
		fmt.Printf("  %-9s %-20s %s (excluded)\n", artifact.Kind, artifact.Code, artifact.Applicability)
	}
	for _, field := range result.Scope.Fields {
		fmt.Printf("  field     %s = %q (by %s)\n", field.Field, field.Value, field.RuleCode)
	}
	for _, tag := range result.Scope.Tags {
		fmt.Printf("  tag       %s = %q (by %s)\n", tag.Field, tag.Value, tag.RuleCode)
	}

	if len(result.Warnings) > 0 {
		fmt.Println()
		for _, w := range result.Warnings {
			fmt.Printf("⚠  %s\n", w.String())
		}
	}
	return nil
}
