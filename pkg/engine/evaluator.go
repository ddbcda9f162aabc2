package engine

import (
	"fmt"

	"mercator-hq/minerva/pkg/rules/ast"
)

// Warning is a non-fatal evaluation event: a type mismatch, a skipped
// malformed rule, or a resolved action conflict.
type Warning struct {
	RuleCode string
	Field    string
	Message  string
}

func (w Warning) String() string {
	switch {
	case w.RuleCode != "" && w.Field != "":
		return fmt.Sprintf("rule %s: field %s: %s", w.RuleCode, w.Field, w.Message)
	case w.RuleCode != "":
		return fmt.Sprintf("rule %s: %s", w.RuleCode, w.Message)
	case w.Field != "":
		return fmt.Sprintf("field %s: %s", w.Field, w.Message)
	default:
		return w.Message
	}
}

// EvalResult is the outcome of evaluating one condition tree.
type EvalResult struct {
	// Matched is the overall boolean result.
	Matched bool

	// MatchedLeaves lists the leaf predicates that evaluated true, in
	// tree order, for explainability.
	MatchedLeaves []string

	// Warnings holds type mismatches encountered during evaluation.
	Warnings []Warning
}

// MalformedExpressionError indicates a condition tree that cannot be
// interpreted. With eager parse-time validation this is rare; it guards
// rules constructed programmatically without Validate.
type MalformedExpressionError struct {
	Detail string
}

func (e *MalformedExpressionError) Error() string {
	return "malformed expression: " + e.Detail
}

// EvaluateCondition evaluates a condition tree against a context.
// A nil tree always matches. Evaluation is pure: identical inputs yield
// identical results. Leaves referencing absent facts evaluate false
// (except exists/not_exists); type mismatches evaluate false and produce a
// warning. The only error is MalformedExpressionError.
func EvaluateCondition(cond *ast.ConditionNode, ec *Context) (EvalResult, error) {
	if cond == nil {
		return EvalResult{Matched: true}, nil
	}

	e := &evaluation{ctx: ec}
	matched, err := e.eval(cond)
	if err != nil {
		return EvalResult{}, err
	}
	return EvalResult{
		Matched:       matched,
		MatchedLeaves: e.matchedLeaves,
		Warnings:      e.warnings,
	}, nil
}

type evaluation struct {
	ctx           *Context
	matchedLeaves []string
	warnings      []Warning
}

func (e *evaluation) eval(node *ast.ConditionNode) (bool, error) {
	switch node.Type {
	case ast.ConditionTypeLeaf:
		// Comparison predicates need a value. Parsed rules cannot reach
		// here without one, but rules built directly can.
		if node.Value == nil && node.Operator != ast.OperatorExists && node.Operator != ast.OperatorNotExists {
			return false, &MalformedExpressionError{
				Detail: fmt.Sprintf("predicate %s %s has no value", node.Field, node.Operator),
			}
		}
		matched, warning := evalLeaf(node, e.ctx)
		if warning != nil {
			e.warnings = append(e.warnings, *warning)
		}
		if matched {
			e.matchedLeaves = append(e.matchedLeaves, node.String())
		}
		return matched, nil

	case ast.ConditionTypeAnd:
		if len(node.Children) == 0 {
			return false, &MalformedExpressionError{Detail: "and node has no children"}
		}
		// Children are all evaluated, no short-circuit, so the matched
		// leaf list is complete for the audit trail.
		all := true
		for _, child := range node.Children {
			matched, err := e.eval(child)
			if err != nil {
				return false, err
			}
			all = all && matched
		}
		return all, nil

	case ast.ConditionTypeOr:
		if len(node.Children) == 0 {
			return false, &MalformedExpressionError{Detail: "or node has no children"}
		}
		any := false
		for _, child := range node.Children {
			matched, err := e.eval(child)
			if err != nil {
				return false, err
			}
			any = any || matched
		}
		return any, nil

	case ast.ConditionTypeNot:
		if len(node.Children) != 1 {
			return false, &MalformedExpressionError{
				Detail: fmt.Sprintf("not node has %d children, want 1", len(node.Children)),
			}
		}
		matched, err := e.eval(node.Children[0])
		if err != nil {
			return false, err
		}
		return !matched, nil

	default:
		return false, &MalformedExpressionError{
			Detail: fmt.Sprintf("unknown condition type %q", node.Type),
		}
	}
}
