package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/minerva/pkg/audit"
	"mercator-hq/minerva/pkg/cli"
)

var logsFlags struct {
	tenant      string
	rulesetCode string
	correlation string
	status      string
	since       string
	limit       int
	format      string
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query execution logs",
	Long: `Query the append-only execution log.

Every evaluation run, successful or failed, leaves a record. Use filters to
narrow by tenant, ruleset, status, correlation id, or time.

Examples:
  # Recent runs for a tenant
  minerva logs --tenant t-acme --limit 20

  # Failed runs only
  minerva logs --status failure

  # Runs in the last hour
  minerva logs --since 1h

  # Follow a request chain
  minerva logs --correlation 9f86d081-...`,
	RunE: runLogs,
}

var logsShowCmd = &cobra.Command{
	Use:   "show <log-id>",
	Short: "Show one execution record in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsShow,
}

var logsDecisionsFlags struct {
	tenant     string
	policyType string
	limit      int
	format     string
}

var logsDecisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Show persisted decision history for a tenant and policy",
	RunE:  runLogsDecisions,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsShowCmd, logsDecisionsCmd)

	logsCmd.Flags().StringVarP(&logsFlags.tenant, "tenant", "t", "", "filter by tenant id")
	logsCmd.Flags().StringVarP(&logsFlags.rulesetCode, "ruleset", "r", "", "filter by ruleset code")
	logsCmd.Flags().StringVar(&logsFlags.correlation, "correlation", "", "filter by correlation id")
	logsCmd.Flags().StringVar(&logsFlags.status, "status", "", "filter by status: success, failure")
	logsCmd.Flags().StringVar(&logsFlags.since, "since", "", "only runs newer than this duration (e.g. 1h, 30m)")
	logsCmd.Flags().IntVarP(&logsFlags.limit, "limit", "n", 50, "maximum records")
	logsCmd.Flags().StringVar(&logsFlags.format, "format", "text", "output format: text, json")

	logsDecisionsCmd.Flags().StringVarP(&logsDecisionsFlags.tenant, "tenant", "t", "", "tenant id (required)")
	logsDecisionsCmd.Flags().StringVarP(&logsDecisionsFlags.policyType, "policy", "P", "", "policy type (required)")
	logsDecisionsCmd.Flags().IntVarP(&logsDecisionsFlags.limit, "limit", "n", 20, "maximum records")
	logsDecisionsCmd.Flags().StringVar(&logsDecisionsFlags.format, "format", "text", "output format: text, json")
	logsDecisionsCmd.MarkFlagRequired("tenant")
	logsDecisionsCmd.MarkFlagRequired("policy")
}

func runLogs(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(logsFlags.format)
	if err != nil {
		return err
	}

	q := audit.Query{
		TenantID:      logsFlags.tenant,
		RulesetCode:   logsFlags.rulesetCode,
		CorrelationID: logsFlags.correlation,
		Limit:         logsFlags.limit,
	}
	switch logsFlags.status {
	case "":
	case "success":
		q.Status = audit.StatusSuccess
	case "failure":
		q.Status = audit.StatusFailure
	default:
		return fmt.Errorf("unknown status %q (want success or failure)", logsFlags.status)
	}
	if logsFlags.since != "" {
		d, err := time.ParseDuration(logsFlags.since)
		if err != nil {
			return fmt.Errorf("invalid --since duration: %w", err)
		}
		q.From = time.Now().Add(-d)
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	records, err := app.recorder.Executions(context.Background(), q)
	if err != nil {
		return cli.NewCommandError("logs", err)
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, records)
	}

	if len(records) == 0 {
		fmt.Println("No execution records found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXECUTED\tID\tTENANT\tRULESET\tSTATUS\tMATCHED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s v%d\t%s\t%d/%d\n",
			rec.ExecutedAt.UTC().Format("2006-01-02 15:04:05"),
			shortID(rec.ID),
			rec.TenantID,
			rec.RulesetCode, rec.RulesetVersion,
			rec.Status,
			len(rec.MatchedRuleCodes), rec.RulesEvaluated,
		)
	}
	return w.Flush()
}

func runLogsShow(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	rec, err := app.recorder.Execution(context.Background(), args[0])
	if err != nil {
		return cli.NewCommandError("logs show", err)
	}

	fmt.Printf("ID:            %s\n", rec.ID)
	fmt.Printf("Correlation:   %s\n", rec.CorrelationID)
	fmt.Printf("Tenant:        %s\n", rec.TenantID)
	fmt.Printf("Ruleset:       %s v%d (%s)\n", rec.RulesetCode, rec.RulesetVersion, rec.RulesetID)
	fmt.Printf("Executor:      %s\n", rec.Executor)
	fmt.Printf("Executed:      %s\n", rec.ExecutedAt.UTC().Format(time.RFC3339))
	fmt.Printf("Status:        %s\n", rec.Status)
	if rec.ErrorDetail != "" {
		fmt.Printf("Error:         %s\n", rec.ErrorDetail)
	}
	fmt.Printf("Matched rules: %s\n", strings.Join(rec.MatchedRuleCodes, ", "))
	fmt.Printf("Evaluated:     %d\n", rec.RulesEvaluated)
	for _, warning := range rec.Warnings {
		fmt.Printf("⚠  %s\n", warning)
	}
	if len(rec.Context) > 0 {
		fmt.Printf("\nContext:\n%s\n", rec.Context)
	}
	if len(rec.DerivedScope) > 0 {
		fmt.Printf("\nDerived scope:\n%s\n", rec.DerivedScope)
	}
	return nil
}

func runLogsDecisions(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(logsDecisionsFlags.format)
	if err != nil {
		return err
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	decisions, err := app.recorder.Decisions(context.Background(),
		logsDecisionsFlags.tenant, logsDecisionsFlags.policyType, logsDecisionsFlags.limit)
	if err != nil {
		return cli.NewCommandError("logs decisions", err)
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(os.Stdout, decisions)
	}

	if len(decisions) == 0 {
		fmt.Println("No persisted decisions found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVALUATED\tPOLICY\tDECISION\tCONFIDENCE\tFINGERPRINT")
	for _, d := range decisions {
		fmt.Fprintf(w, "%s\t%s v%d\t%s\t%d\t%s\n",
			d.EvaluatedAt.UTC().Format("2006-01-02 15:04:05"),
			d.PolicyType, d.PolicyVersion,
			d.Decision, d.Confidence, shortID(d.Fingerprint),
		)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
