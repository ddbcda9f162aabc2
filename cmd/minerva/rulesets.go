package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mercator-hq/minerva/pkg/cli"
	"mercator-hq/minerva/pkg/ruleset"
	"mercator-hq/minerva/pkg/ruleset/source"
)

var rulesetsCmd = &cobra.Command{
	Use:   "rulesets",
	Short: "Manage ruleset versions",
	Long: `Manage ruleset version lineages: list versions, activate drafts, and
sync definitions from files.

Examples:
  # List versions of the shared KSA-BASE lineage
  minerva rulesets list --code KSA-BASE

  # List a tenant-specific lineage
  minerva rulesets list --tenant t-acme --code KSA-BASE

  # Activate a draft
  minerva rulesets activate --code KSA-BASE --version 2

  # Load definitions from a directory as drafts
  minerva rulesets sync --dir rulesets/ --no-activate`,
}

var rulesetsListFlags struct {
	tenant string
	code   string
}

var rulesetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List versions of a ruleset lineage",
	RunE:  runRulesetsList,
}

var rulesetsActivateFlags struct {
	tenant  string
	code    string
	version int
}

var rulesetsActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Activate a draft version",
	Long: `Activate a draft version of a ruleset lineage.

The previously Active version of the same lineage is retired in the same
transaction; there is never more than one Active version per lineage.`,
	RunE: runRulesetsActivate,
}

var rulesetsSyncFlags struct {
	dir        string
	noActivate bool
}

var rulesetsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load ruleset definitions from a directory",
	RunE:  runRulesetsSync,
}

func init() {
	rootCmd.AddCommand(rulesetsCmd)
	rulesetsCmd.AddCommand(rulesetsListCmd, rulesetsActivateCmd, rulesetsSyncCmd)

	rulesetsListCmd.Flags().StringVarP(&rulesetsListFlags.tenant, "tenant", "t", "", "tenant id (empty for shared)")
	rulesetsListCmd.Flags().StringVarP(&rulesetsListFlags.code, "code", "C", "", "ruleset code (required)")
	rulesetsListCmd.MarkFlagRequired("code")

	rulesetsActivateCmd.Flags().StringVarP(&rulesetsActivateFlags.tenant, "tenant", "t", "", "tenant id (empty for shared)")
	rulesetsActivateCmd.Flags().StringVarP(&rulesetsActivateFlags.code, "code", "C", "", "ruleset code (required)")
	rulesetsActivateCmd.Flags().IntVarP(&rulesetsActivateFlags.version, "version", "V", 0, "version to activate (required)")
	rulesetsActivateCmd.MarkFlagRequired("code")
	rulesetsActivateCmd.MarkFlagRequired("version")

	rulesetsSyncCmd.Flags().StringVarP(&rulesetsSyncFlags.dir, "dir", "d", "", "directory of ruleset definition files (required)")
	rulesetsSyncCmd.Flags().BoolVar(&rulesetsSyncFlags.noActivate, "no-activate", false, "load as drafts without activating")
	rulesetsSyncCmd.MarkFlagRequired("dir")
}

func runRulesetsList(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	scope := ruleset.ScopeKey{TenantID: rulesetsListFlags.tenant, Code: rulesetsListFlags.code}
	versions, err := app.rulesetStore.ListVersions(context.Background(), scope)
	if err != nil {
		return cli.NewCommandError("rulesets list", err)
	}
	if len(versions) == 0 {
		fmt.Printf("No versions for %s\n", scope)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATUS\tCREATED\tACTIVATED\tNOTES")
	for _, v := range versions {
		activated := "-"
		if !v.ActivatedAt.IsZero() {
			activated = v.ActivatedAt.UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			v.Version, v.Status,
			v.CreatedAt.UTC().Format("2006-01-02 15:04"),
			activated, v.ChangeNotes)
	}
	return w.Flush()
}

func runRulesetsActivate(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	scope := ruleset.ScopeKey{TenantID: rulesetsActivateFlags.tenant, Code: rulesetsActivateFlags.code}
	rs, err := app.manager.Activate(context.Background(), scope, rulesetsActivateFlags.version)
	if err != nil {
		return cli.NewCommandError("rulesets activate", err)
	}

	fmt.Printf("✓ Activated %s v%d (%d rules)\n", scope, rs.Version, len(rs.Rules))
	return nil
}

func runRulesetsSync(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	syncer := source.NewSyncer(source.NewLoader(), app.manager, app.rulesetStore, app.logger)
	syncer.AutoActivate = !rulesetsSyncFlags.noActivate

	n, err := syncer.SyncDir(context.Background(), rulesetsSyncFlags.dir)
	if err != nil {
		return cli.NewCommandError("rulesets sync", err)
	}

	fmt.Printf("✓ Applied %d version(s) from %s\n", n, rulesetsSyncFlags.dir)
	return nil
}
