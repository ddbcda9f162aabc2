// Minerva is a rule and policy decision engine for compliance platforms.
//
// It derives each tenant's compliance scope (applicable baselines, control
// packages, and templates) from versioned rulesets evaluated against the
// tenant's organization profile, and answers cached policy questions with
// full audit trails.
//
// Usage:
//
//	# Start the engine with default configuration
//	minerva run
//
//	# Start with a custom configuration file
//	minerva run --config /path/to/config.yaml
//
//	# Derive a tenant's compliance scope
//	minerva evaluate --tenant t-acme --ruleset KSA-BASE --profiles profiles.yaml
//
//	# Answer a policy question (cached)
//	minerva decide --tenant t-acme --policy DATA-RES --profiles profiles.yaml
//
//	# Manage ruleset versions
//	minerva rulesets list --code KSA-BASE
//	minerva rulesets activate --code KSA-BASE --version 2
//
//	# Inspect execution logs
//	minerva logs --tenant t-acme --limit 20
//
//	# Validate ruleset definition files
//	minerva lint --file rulesets/ksa-base.yaml
//
// For complete documentation, see: https://github.com/mercator-hq/minerva
package main

func main() {
	Execute()
}
