package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mercator-hq/minerva/pkg/cli"
	"mercator-hq/minerva/pkg/ruleset/source"
)

var lintFlags struct {
	file   string
	dir    string
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate ruleset definition files",
	Long: `Validate ruleset definition files for syntax and semantic errors.

The lint command parses definition files and performs the same validation
the engine applies when loading:
  - YAML syntax validation
  - Condition tree validation (operators, value types, structure)
  - Action validation (artifact codes, field names)
  - Duplicate rule code detection

Examples:
  # Lint a single file
  minerva lint --file rulesets/ksa-base.yaml

  # Lint a directory
  minerva lint --dir rulesets/

  # JSON output for CI/CD
  minerva lint --dir rulesets/ --format json`,
	RunE: lintRulesets,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.file, "file", "f", "", "ruleset file to validate")
	lintCmd.Flags().StringVarP(&lintFlags.dir, "dir", "d", "", "directory of ruleset files")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json")
}

// LintResult is the validation outcome for one definition file.
type LintResult struct {
	File  string `json:"file"`
	Valid bool   `json:"valid"`
	Code  string `json:"code,omitempty"`
	Rules int    `json:"rules,omitempty"`
	Error string `json:"error,omitempty"`
}

func lintRulesets(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(lintFlags.format)
	if err != nil {
		return err
	}
	if lintFlags.file == "" && lintFlags.dir == "" {
		return fmt.Errorf("either --file or --dir must be specified")
	}

	var files []string
	if lintFlags.file != "" {
		files = append(files, lintFlags.file)
	}
	if lintFlags.dir != "" {
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(lintFlags.dir, pattern))
			if err != nil {
				return fmt.Errorf("failed to list ruleset files: %w", err)
			}
			files = append(files, matches...)
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no ruleset files found")
	}

	loader := source.NewLoader()
	results := make([]LintResult, 0, len(files))
	failed := 0
	for _, file := range files {
		result := LintResult{File: file, Valid: true}
		rs, err := loader.LoadFile(file)
		if err != nil {
			result.Valid = false
			failed++
			var loadErr *source.LoadError
			if errors.As(err, &loadErr) {
				result.Error = loadErr.Message
				if loadErr.Cause != nil {
					result.Error = fmt.Sprintf("%s: %v", loadErr.Message, loadErr.Cause)
				}
			} else {
				result.Error = err.Error()
			}
		} else {
			result.Code = rs.Code
			result.Rules = len(rs.Rules)
		}
		results = append(results, result)
	}

	if format == cli.FormatJSON {
		if err := cli.NewFormatter(format).FormatTo(os.Stdout, results); err != nil {
			return err
		}
	} else {
		for _, result := range results {
			if result.Valid {
				fmt.Printf("✓ %s: %s (%d rules)\n", result.File, result.Code, result.Rules)
			} else {
				fmt.Printf("✗ %s: %s\n", result.File, result.Error)
			}
		}
		fmt.Printf("\nSummary: %d file(s), %d invalid\n", len(results), failed)
	}

	if failed > 0 {
		return cli.NewCommandError("lint", fmt.Errorf("validation failed"))
	}
	return nil
}
