package engine

import (
	"testing"

	"mercator-hq/minerva/pkg/rules/ast"
)

func leaf(field string, op ast.Operator, value *ast.ValueNode) *ast.ConditionNode {
	return &ast.ConditionNode{
		Type:     ast.ConditionTypeLeaf,
		Field:    field,
		Operator: op,
		Value:    value,
	}
}

func testContext() *Context {
	c := NewContext("acme")
	c.SetString("sector", "Healthcare")
	c.SetString("country", "SA")
	c.SetNumber("employeeCount", 1200)
	c.SetBool("isRegulatedEntity", true)
	c.SetSet("dataTypes", "PHI", "PII")
	return c
}

func TestEvaluateLeafOperators(t *testing.T) {
	tests := []struct {
		name    string
		cond    *ast.ConditionNode
		matched bool
		warning bool
	}{
		{"equals match", leaf("sector", ast.OperatorEquals, ast.StringValue("Healthcare")), true, false},
		{"equals no match", leaf("sector", ast.OperatorEquals, ast.StringValue("Finance")), false, false},
		{"not_equals", leaf("sector", ast.OperatorNotEquals, ast.StringValue("Finance")), true, false},
		{"in match", leaf("country", ast.OperatorIn, ast.SetValue("SA", "AE")), true, false},
		{"in no match", leaf("country", ast.OperatorIn, ast.SetValue("US", "GB")), false, false},
		{"not_in", leaf("country", ast.OperatorNotIn, ast.SetValue("US", "GB")), true, false},
		{"contains set member", leaf("dataTypes", ast.OperatorContains, ast.StringValue("PHI")), true, false},
		{"contains set miss", leaf("dataTypes", ast.OperatorContains, ast.StringValue("PCI")), false, false},
		{"contains substring", leaf("sector", ast.OperatorContains, ast.StringValue("Health")), true, false},
		{"greater_than", leaf("employeeCount", ast.OperatorGreaterThan, ast.NumberValue(1000)), true, false},
		{"less_than", leaf("employeeCount", ast.OperatorLessThan, ast.NumberValue(1000)), false, false},
		{"bool equals", leaf("isRegulatedEntity", ast.OperatorEquals, ast.BoolValue(true)), true, false},
		{"exists present", leaf("sector", ast.OperatorExists, nil), true, false},
		{"exists absent", leaf("missing", ast.OperatorExists, nil), false, false},
		{"not_exists absent", leaf("missing", ast.OperatorNotExists, nil), true, false},
		{"missing fact is false not error", leaf("missing", ast.OperatorEquals, ast.StringValue("x")), false, false},
		{"missing fact not_equals is false", leaf("missing", ast.OperatorNotEquals, ast.StringValue("x")), false, false},
		{"type mismatch warns", leaf("sector", ast.OperatorGreaterThan, ast.NumberValue(5)), false, true},
		{"set fact with in warns", leaf("dataTypes", ast.OperatorIn, ast.SetValue("PHI")), false, true},
	}

	ctx := testContext()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EvaluateCondition(tt.cond, ctx)
			if err != nil {
				t.Fatalf("EvaluateCondition() error = %v", err)
			}
			if result.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v", result.Matched, tt.matched)
			}
			if (len(result.Warnings) > 0) != tt.warning {
				t.Errorf("warnings = %v, want warning=%v", result.Warnings, tt.warning)
			}
		})
	}
}

func TestEvaluateLogicalNodes(t *testing.T) {
	sectorHC := leaf("sector", ast.OperatorEquals, ast.StringValue("Healthcare"))
	countrySA := leaf("country", ast.OperatorEquals, ast.StringValue("SA"))
	countryUS := leaf("country", ast.OperatorEquals, ast.StringValue("US"))

	tests := []struct {
		name    string
		cond    *ast.ConditionNode
		matched bool
		leaves  int
	}{
		{
			"and all true",
			&ast.ConditionNode{Type: ast.ConditionTypeAnd, Children: []*ast.ConditionNode{sectorHC, countrySA}},
			true, 2,
		},
		{
			"and one false",
			&ast.ConditionNode{Type: ast.ConditionTypeAnd, Children: []*ast.ConditionNode{sectorHC, countryUS}},
			false, 1,
		},
		{
			"or one true",
			&ast.ConditionNode{Type: ast.ConditionTypeOr, Children: []*ast.ConditionNode{countryUS, sectorHC}},
			true, 1,
		},
		{
			"not inverts",
			&ast.ConditionNode{Type: ast.ConditionTypeNot, Children: []*ast.ConditionNode{countryUS}},
			true, 0,
		},
		{
			"nested",
			&ast.ConditionNode{Type: ast.ConditionTypeAnd, Children: []*ast.ConditionNode{
				sectorHC,
				{Type: ast.ConditionTypeOr, Children: []*ast.ConditionNode{countrySA, countryUS}},
			}},
			true, 2,
		},
	}

	ctx := testContext()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EvaluateCondition(tt.cond, ctx)
			if err != nil {
				t.Fatalf("EvaluateCondition() error = %v", err)
			}
			if result.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v", result.Matched, tt.matched)
			}
			if len(result.MatchedLeaves) != tt.leaves {
				t.Errorf("MatchedLeaves = %v, want %d entries", result.MatchedLeaves, tt.leaves)
			}
		})
	}
}

func TestEvaluateNilConditionMatches(t *testing.T) {
	result, err := EvaluateCondition(nil, testContext())
	if err != nil {
		t.Fatalf("EvaluateCondition(nil) error = %v", err)
	}
	if !result.Matched {
		t.Error("nil condition should always match")
	}
}

func TestEvaluateMalformedTree(t *testing.T) {
	tests := []struct {
		name string
		cond *ast.ConditionNode
	}{
		{"empty and", &ast.ConditionNode{Type: ast.ConditionTypeAnd}},
		{"not with two children", &ast.ConditionNode{Type: ast.ConditionTypeNot, Children: []*ast.ConditionNode{
			leaf("a", ast.OperatorExists, nil), leaf("b", ast.OperatorExists, nil),
		}}},
		{"unknown node type", &ast.ConditionNode{Type: "xor"}},
		{"equals without value", leaf("sector", ast.OperatorEquals, nil)},
		{"in without value", leaf("hostingModel", ast.OperatorIn, nil)},
		{"nested leaf without value", &ast.ConditionNode{Type: ast.ConditionTypeAnd, Children: []*ast.ConditionNode{
			leaf("country", ast.OperatorEquals, ast.StringValue("SA")),
			leaf("employeeCount", ast.OperatorGreaterThan, nil),
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EvaluateCondition(tt.cond, testContext())
			if _, ok := err.(*MalformedExpressionError); !ok {
				t.Fatalf("error = %v, want MalformedExpressionError", err)
			}
		})
	}
}

func TestEvaluateDeterminism(t *testing.T) {
	cond := &ast.ConditionNode{Type: ast.ConditionTypeAnd, Children: []*ast.ConditionNode{
		leaf("sector", ast.OperatorEquals, ast.StringValue("Healthcare")),
		leaf("dataTypes", ast.OperatorContains, ast.StringValue("PHI")),
	}}
	ctx := testContext()

	first, err := EvaluateCondition(cond, ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := EvaluateCondition(cond, ctx)
		if err != nil {
			t.Fatal(err)
		}
		if again.Matched != first.Matched || len(again.MatchedLeaves) != len(first.MatchedLeaves) {
			t.Fatal("repeated evaluation diverged")
		}
	}
}
