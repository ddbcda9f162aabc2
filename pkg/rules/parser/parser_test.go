package parser

import (
	"errors"
	"testing"

	"mercator-hq/minerva/pkg/rules/ast"
)

func TestParseConditionLeaf(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		field    string
		operator ast.Operator
	}{
		{
			name:     "explicit equals",
			doc:      `{"field": "sector", "operator": "equals", "value": "Healthcare"}`,
			field:    "sector",
			operator: ast.OperatorEquals,
		},
		{
			name:     "operator defaults to equals",
			doc:      `{"field": "country", "value": "SA"}`,
			field:    "country",
			operator: ast.OperatorEquals,
		},
		{
			name:     "in with values list",
			doc:      `{"field": "hostingModel", "operator": "in", "values": ["cloud", "hybrid"]}`,
			field:    "hostingModel",
			operator: ast.OperatorIn,
		},
		{
			name:     "exists takes no value",
			doc:      `{"field": "primaryRegulator", "operator": "exists"}`,
			field:    "primaryRegulator",
			operator: ast.OperatorExists,
		},
		{
			name:     "numeric comparison",
			doc:      `{"field": "employeeCount", "operator": "greater_than", "value": 250}`,
			field:    "employeeCount",
			operator: ast.OperatorGreaterThan,
		},
		{
			name:     "boolean value",
			doc:      `{"field": "processesPersonalData", "operator": "equals", "value": true}`,
			field:    "processesPersonalData",
			operator: ast.OperatorEquals,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := ParseCondition([]byte(tt.doc))
			if err != nil {
				t.Fatalf("ParseCondition() error = %v", err)
			}
			if !node.IsLeaf() {
				t.Fatalf("node type = %q, want leaf", node.Type)
			}
			if node.Field != tt.field || node.Operator != tt.operator {
				t.Errorf("parsed %s %s, want %s %s", node.Field, node.Operator, tt.field, tt.operator)
			}
		})
	}
}

func TestParseConditionLogical(t *testing.T) {
	doc := `{
		"type": "and",
		"conditions": [
			{"field": "sector", "operator": "equals", "value": "Healthcare"},
			{"type": "not", "conditions": [
				{"field": "country", "operator": "not_equals", "value": "SA"}
			]}
		]
	}`

	node, err := ParseCondition([]byte(doc))
	if err != nil {
		t.Fatalf("ParseCondition() error = %v", err)
	}
	if node.Type != ast.ConditionTypeAnd || len(node.Children) != 2 {
		t.Fatalf("root = %s with %d children, want and with 2", node.Type, len(node.Children))
	}
	if node.Children[1].Type != ast.ConditionTypeNot {
		t.Errorf("second child = %s, want not", node.Children[1].Type)
	}
	if got := len(node.Leaves()); got != 2 {
		t.Errorf("Leaves() returned %d nodes, want 2", got)
	}
}

func TestParseConditionEmptyIsAlwaysMatch(t *testing.T) {
	for _, doc := range [][]byte{nil, []byte(`{}`)} {
		node, err := ParseCondition(doc)
		if err != nil {
			t.Fatalf("ParseCondition(%q) error = %v", doc, err)
		}
		if node != nil {
			t.Errorf("ParseCondition(%q) = %v, want nil", doc, node)
		}
	}
}

func TestParseConditionErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid json", `{"field": `},
		{"unknown node type", `{"type": "xor", "conditions": [{"field": "a", "value": "b"}]}`},
		{"and without children", `{"type": "and"}`},
		{"not with two children", `{"type": "not", "conditions": [{"field": "a", "value": "x"}, {"field": "b", "value": "y"}]}`},
		{"unknown operator", `{"field": "sector", "operator": "matches", "value": "x"}`},
		{"missing value", `{"field": "sector", "operator": "equals"}`},
		{"greater_than on string", `{"field": "employeeCount", "operator": "greater_than", "value": "many"}`},
		{"unsupported value type", `{"field": "sector", "operator": "equals", "value": {"nested": true}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCondition([]byte(tt.doc))
			if err == nil {
				t.Fatal("ParseCondition() succeeded, want error")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error type = %T, want *ParseError", err)
			}
			if perr.Kind != "condition" {
				t.Errorf("Kind = %q, want condition", perr.Kind)
			}
		})
	}
}

func TestParseActions(t *testing.T) {
	doc := `[
		{"action": "apply_baseline", "code": "NPHIES-BL"},
		{"action": "exclude_package", "code": "LEGACY-PKG"},
		{"action": "set_field", "key": "riskTier", "value": "high"},
		{"action": "tag", "key": "jurisdiction", "value": "KSA"}
	]`

	actions, err := ParseActions([]byte(doc))
	if err != nil {
		t.Fatalf("ParseActions() error = %v", err)
	}
	if len(actions) != 4 {
		t.Fatalf("parsed %d actions, want 4", len(actions))
	}
	if actions[0].Type != ast.ActionTypeApplyBaseline || actions[0].Code != "NPHIES-BL" {
		t.Errorf("first action = %s %s, want apply_baseline NPHIES-BL", actions[0].Type, actions[0].Code)
	}
	if actions[2].Field != "riskTier" || actions[2].Value != "high" {
		t.Errorf("set_field parsed as %s=%s, want riskTier=high", actions[2].Field, actions[2].Value)
	}
}

func TestParseActionsErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid json", `[{"action"`},
		{"unknown action type", `[{"action": "launch_missiles", "code": "X"}]`},
		{"include without code", `[{"action": "apply_baseline"}]`},
		{"set_field without key", `[{"action": "set_field", "value": "high"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseActions([]byte(tt.doc))
			if err == nil {
				t.Fatal("ParseActions() succeeded, want error")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error type = %T, want *ParseError", err)
			}
		})
	}
}

func TestConditionRoundTrip(t *testing.T) {
	doc := `{
		"type": "or",
		"conditions": [
			{"field": "sector", "operator": "in", "values": ["Banking", "Insurance"]},
			{"type": "and", "conditions": [
				{"field": "isCriticalInfrastructure", "operator": "equals", "value": true},
				{"field": "employeeCount", "operator": "less_than", "value": 500}
			]}
		]
	}`

	node, err := ParseCondition([]byte(doc))
	if err != nil {
		t.Fatalf("ParseCondition() error = %v", err)
	}

	encoded, err := EncodeCondition(node)
	if err != nil {
		t.Fatalf("EncodeCondition() error = %v", err)
	}

	reparsed, err := ParseCondition(encoded)
	if err != nil {
		t.Fatalf("reparse error = %v", err)
	}
	if reparsed.String() != node.String() {
		t.Errorf("round trip changed condition: %s != %s", reparsed, node)
	}
}

func TestActionsRoundTrip(t *testing.T) {
	actions := []*ast.Action{
		{Type: ast.ActionTypeApplyPackage, Code: "CLOUD-SEC-PKG"},
		{Type: ast.ActionTypeTag, Field: "jurisdiction", Value: "KSA"},
	}

	encoded, err := EncodeActions(actions)
	if err != nil {
		t.Fatalf("EncodeActions() error = %v", err)
	}

	reparsed, err := ParseActions(encoded)
	if err != nil {
		t.Fatalf("ParseActions() error = %v", err)
	}
	if len(reparsed) != 2 {
		t.Fatalf("reparsed %d actions, want 2", len(reparsed))
	}
	if reparsed[1].Type != ast.ActionTypeTag || reparsed[1].Field != "jurisdiction" {
		t.Errorf("tag action lost in round trip: %+v", reparsed[1])
	}
}

func TestEncodeConditionNil(t *testing.T) {
	data, err := EncodeCondition(nil)
	if err != nil {
		t.Fatalf("EncodeCondition(nil) error = %v", err)
	}
	if data != nil {
		t.Errorf("EncodeCondition(nil) = %q, want nil", data)
	}
}
