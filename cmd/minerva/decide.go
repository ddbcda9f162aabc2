package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/minerva/pkg/cli"
)

var decideFlags struct {
	tenant       string
	policyType   string
	profilesPath string
	rulesetDir   string
	format       string
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Answer a policy question for a tenant",
	Long: `Evaluate a policy-type ruleset for a tenant and print the decision.

Decisions are fingerprinted by evaluation context and cached; within one
process repeated questions with the same context are served from cache.

Examples:
  # Ask whether a data-residency policy applies
  minerva decide --tenant t-acme --policy DATA-RES --profiles profiles.yaml

  # JSON output
  minerva decide --tenant t-acme --policy DATA-RES \
    --profiles profiles.yaml --format json`,
	RunE: runDecide,
}

func init() {
	rootCmd.AddCommand(decideCmd)

	decideCmd.Flags().StringVarP(&decideFlags.tenant, "tenant", "t", "", "tenant id (required)")
	decideCmd.Flags().StringVarP(&decideFlags.policyType, "policy", "P", "", "policy type, i.e. ruleset code (required)")
	decideCmd.Flags().StringVarP(&decideFlags.profilesPath, "profiles", "p", "", "organization profiles YAML file (required)")
	decideCmd.Flags().StringVarP(&decideFlags.rulesetDir, "dir", "d", "", "sync ruleset definitions from this directory first")
	decideCmd.Flags().StringVar(&decideFlags.format, "format", "text", "output format: text, json")
	decideCmd.MarkFlagRequired("tenant")
	decideCmd.MarkFlagRequired("policy")
	decideCmd.MarkFlagRequired("profiles")
}

func runDecide(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(decideFlags.format)
	if err != nil {
		return err
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	svc, err := oneShotService(ctx, app, decideFlags.profilesPath, decideFlags.rulesetDir)
	if err != nil {
		return cli.NewCommandError("decide", err)
	}

	d, err := svc.DecidePolicy(ctx, decideFlags.tenant, decideFlags.policyType, nil)
	if err != nil {
		return cli.NewCommandError("decide", err)
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, d)
	}

	fmt.Printf("Decision:    %s\n", d.Decision)
	fmt.Printf("Reason:      %s\n", d.Reason)
	fmt.Printf("Policy:      %s v%d\n", d.PolicyType, d.PolicyVersion)
	fmt.Printf("Confidence:  %d\n", d.Confidence)
	fmt.Printf("Fingerprint: %s\n", d.Fingerprint)
	fmt.Printf("From cache:  %v\n", d.FromCache)
	if !d.ExpiresAt.IsZero() {
		fmt.Printf("Expires:     %s\n", d.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return nil
}
