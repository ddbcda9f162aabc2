package engine

import (
	"errors"
	"sort"

	"mercator-hq/minerva/pkg/ruleset"
)

// MatchedRule is one rule whose condition matched, with the leaves that
// made it match.
type MatchedRule struct {
	Rule          *ruleset.Rule
	MatchedLeaves []string
}

// MatchResult is the outcome of matching a ruleset version against a
// context.
type MatchResult struct {
	// Matched lists the matched rules in priority order (descending,
	// rule code ascending for ties).
	Matched []*MatchedRule

	// Evaluated counts the Active rules considered.
	Evaluated int

	// Skipped counts rules skipped for malformed expressions.
	Skipped int

	// Warnings aggregates evaluation warnings across all rules.
	Warnings []Warning
}

// MatchRules evaluates every Active rule of a ruleset version against a
// context and collects all matches. Rules whose condition cannot be
// interpreted are skipped with a warning; the run never aborts for a
// single bad rule.
func MatchRules(rs *ruleset.Ruleset, ec *Context) *MatchResult {
	rules := rs.ActiveRules()
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].Code < rules[j].Code
	})

	result := &MatchResult{Evaluated: len(rules)}
	for _, rule := range rules {
		eval, err := EvaluateCondition(rule.Condition, ec)
		if err != nil {
			var malformed *MalformedExpressionError
			if errors.As(err, &malformed) {
				result.Skipped++
				result.Warnings = append(result.Warnings, Warning{
					RuleCode: rule.Code,
					Message:  "skipped: " + malformed.Detail,
				})
				continue
			}
			// EvaluateCondition only returns MalformedExpressionError;
			// treat anything else the same way rather than abort.
			result.Skipped++
			result.Warnings = append(result.Warnings, Warning{
				RuleCode: rule.Code,
				Message:  "skipped: " + err.Error(),
			})
			continue
		}

		for _, w := range eval.Warnings {
			w.RuleCode = rule.Code
			result.Warnings = append(result.Warnings, w)
		}
		if eval.Matched {
			result.Matched = append(result.Matched, &MatchedRule{
				Rule:          rule,
				MatchedLeaves: eval.MatchedLeaves,
			})
		}
	}
	return result
}
