package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "minerva",
	Short: "Mercator Minerva - rule and policy decision engine",
	Long: `Mercator Minerva is a multi-tenant rule and policy decision engine for
compliance platforms.

It evaluates versioned rulesets against tenant organization profiles to derive
each tenant's compliance scope:
  - Applicable baselines, control packages, and templates
  - Deterministic conflict resolution with full reason traces
  - Cached policy decisions keyed by context fingerprint
  - Append-only execution logs for every run

For more information, visit: https://github.com/mercator-hq/minerva`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
