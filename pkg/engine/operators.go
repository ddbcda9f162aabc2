package engine

import (
	"fmt"
	"strings"

	"mercator-hq/minerva/pkg/rules/ast"
)

// evalLeaf evaluates one leaf predicate against the context.
// Absent facts evaluate false except for exists/not_exists. Type
// mismatches evaluate false with a warning; they never abort the run.
// The caller has already rejected comparison predicates without a value,
// so node.Value is non-nil past the exists cases.
func evalLeaf(node *ast.ConditionNode, ec *Context) (bool, *Warning) {
	fact := ec.Fact(node.Field)

	switch node.Operator {
	case ast.OperatorExists:
		return fact != nil, nil
	case ast.OperatorNotExists:
		return fact == nil, nil
	}

	if fact == nil {
		return false, nil
	}

	switch node.Operator {
	case ast.OperatorEquals:
		return compareEquals(node, fact)
	case ast.OperatorNotEquals:
		matched, warning := compareEquals(node, fact)
		if warning != nil {
			return false, warning
		}
		return !matched, nil
	case ast.OperatorIn:
		return compareIn(node, fact, false)
	case ast.OperatorNotIn:
		return compareIn(node, fact, true)
	case ast.OperatorContains:
		return compareContains(node, fact)
	case ast.OperatorGreaterThan, ast.OperatorLessThan:
		return compareNumeric(node, fact)
	default:
		return false, mismatch(node, fmt.Sprintf("unsupported operator %q", node.Operator))
	}
}

func compareEquals(node *ast.ConditionNode, fact *ast.ValueNode) (bool, *Warning) {
	if fact.Type != node.Value.Type {
		return false, typeMismatch(node, fact)
	}
	switch fact.Type {
	case ast.ValueTypeString:
		want, _ := node.Value.AsString()
		got, _ := fact.AsString()
		return got == want, nil
	case ast.ValueTypeNumber:
		want, _ := node.Value.AsNumber()
		got, _ := fact.AsNumber()
		return got == want, nil
	case ast.ValueTypeBoolean:
		want, _ := node.Value.AsBool()
		got, _ := fact.AsBool()
		return got == want, nil
	default:
		return false, mismatch(node, "equals is not defined for set facts")
	}
}

// compareIn tests string-fact membership in the predicate's set.
func compareIn(node *ast.ConditionNode, fact *ast.ValueNode, negate bool) (bool, *Warning) {
	got, ok := fact.AsString()
	if !ok {
		return false, typeMismatch(node, fact)
	}
	members, _ := node.Value.AsSet()
	found := false
	for _, m := range members {
		if m == got {
			found = true
			break
		}
	}
	return found != negate, nil
}

// compareContains tests set-fact membership of the predicate's string, or
// substring containment for string facts.
func compareContains(node *ast.ConditionNode, fact *ast.ValueNode) (bool, *Warning) {
	want, ok := node.Value.AsString()
	if !ok {
		return false, mismatch(node, "contains requires a string value")
	}
	switch fact.Type {
	case ast.ValueTypeSet:
		members, _ := fact.AsSet()
		for _, m := range members {
			if m == want {
				return true, nil
			}
		}
		return false, nil
	case ast.ValueTypeString:
		got, _ := fact.AsString()
		return strings.Contains(got, want), nil
	default:
		return false, typeMismatch(node, fact)
	}
}

func compareNumeric(node *ast.ConditionNode, fact *ast.ValueNode) (bool, *Warning) {
	got, ok := fact.AsNumber()
	if !ok {
		return false, typeMismatch(node, fact)
	}
	want, _ := node.Value.AsNumber()
	if node.Operator == ast.OperatorGreaterThan {
		return got > want, nil
	}
	return got < want, nil
}

func typeMismatch(node *ast.ConditionNode, fact *ast.ValueNode) *Warning {
	return mismatch(node, fmt.Sprintf("type mismatch: fact is %s, predicate %s expects %s",
		fact.Type, node.Operator, node.Value.Type))
}

func mismatch(node *ast.ConditionNode, message string) *Warning {
	return &Warning{Field: node.Field, Message: message}
}
