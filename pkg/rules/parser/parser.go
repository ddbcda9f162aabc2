package parser

import (
	"encoding/json"
	"fmt"

	"mercator-hq/minerva/pkg/rules/ast"
)

// ParseError indicates a serialized expression failed to parse or validate.
// It carries enough context for the caller to record a per-rule warning.
type ParseError struct {
	Kind    string // "condition" or "actions"
	Message string
	Cause   error
}

// Error returns the error message.
func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed %s expression: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed %s expression: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// conditionDoc is the JSON wire form of a condition node.
type conditionDoc struct {
	Type       string          `json:"type,omitempty"`
	Field      string          `json:"field,omitempty"`
	Operator   string          `json:"operator,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Values     []string        `json:"values,omitempty"`
	Conditions []conditionDoc  `json:"conditions,omitempty"`
}

// actionDoc is the JSON wire form of an action.
type actionDoc struct {
	Action string `json:"action"`
	Code   string `json:"code,omitempty"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`
}

// ParseCondition parses a serialized condition document into a validated
// AST. An empty or nil document yields a nil tree, which the engine treats
// as always-match.
func ParseCondition(data []byte) (*ast.ConditionNode, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var doc conditionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Kind: "condition", Message: "invalid JSON", Cause: err}
	}

	node, err := buildCondition(&doc)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, nil
	}

	if err := node.Validate(); err != nil {
		return nil, &ParseError{Kind: "condition", Message: "validation failed", Cause: err}
	}

	return node, nil
}

// buildCondition converts one wire node into an AST node.
func buildCondition(doc *conditionDoc) (*ast.ConditionNode, error) {
	// A node that names a field is a leaf predicate regardless of "type".
	if doc.Field != "" {
		return buildLeaf(doc)
	}

	switch doc.Type {
	case "", "and":
		if len(doc.Conditions) == 0 {
			// Empty root document: always-match.
			if doc.Type == "" {
				return nil, nil
			}
			return nil, &ParseError{Kind: "condition", Message: "and node has no conditions"}
		}
		return buildLogical(ast.ConditionTypeAnd, doc.Conditions)

	case "or":
		return buildLogical(ast.ConditionTypeOr, doc.Conditions)

	case "not":
		if len(doc.Conditions) != 1 {
			return nil, &ParseError{Kind: "condition", Message: fmt.Sprintf("not node requires exactly one condition, got %d", len(doc.Conditions))}
		}
		return buildLogical(ast.ConditionTypeNot, doc.Conditions)

	default:
		return nil, &ParseError{Kind: "condition", Message: fmt.Sprintf("unknown node type %q", doc.Type)}
	}
}

// buildLogical converts the children of a logical node.
func buildLogical(nodeType ast.ConditionType, docs []conditionDoc) (*ast.ConditionNode, error) {
	node := &ast.ConditionNode{Type: nodeType}
	for i := range docs {
		child, err := buildCondition(&docs[i])
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, &ParseError{Kind: "condition", Message: fmt.Sprintf("%s child %d is empty", nodeType, i)}
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// buildLeaf converts a leaf wire node into a leaf predicate.
func buildLeaf(doc *conditionDoc) (*ast.ConditionNode, error) {
	op := ast.Operator(doc.Operator)
	if doc.Operator == "" {
		op = ast.OperatorEquals
	}

	node := &ast.ConditionNode{
		Type:     ast.ConditionTypeLeaf,
		Field:    doc.Field,
		Operator: op,
	}

	// in/not_in take the "values" list; exists predicates take no value.
	switch op {
	case ast.OperatorIn, ast.OperatorNotIn:
		node.Value = ast.SetValue(doc.Values...)
		return node, nil
	case ast.OperatorExists, ast.OperatorNotExists:
		return node, nil
	}

	value, err := parseScalar(doc.Field, doc.Value)
	if err != nil {
		return nil, err
	}
	node.Value = value
	return node, nil
}

// parseScalar decodes a scalar JSON value into a typed value node.
func parseScalar(field string, raw json.RawMessage) (*ast.ValueNode, error) {
	if len(raw) == 0 {
		return nil, &ParseError{Kind: "condition", Message: fmt.Sprintf("field %q has no value", field)}
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ParseError{Kind: "condition", Message: fmt.Sprintf("field %q has invalid value", field), Cause: err}
	}

	switch val := v.(type) {
	case string:
		return ast.StringValue(val), nil
	case float64:
		return ast.NumberValue(val), nil
	case bool:
		return ast.BoolValue(val), nil
	default:
		return nil, &ParseError{Kind: "condition", Message: fmt.Sprintf("field %q has unsupported value type %T", field, v)}
	}
}

// ParseActions parses a serialized action list into validated AST actions.
// An empty document yields an empty list (a rule with no actions contributes
// nothing to the derived scope but still appears in the match trace).
func ParseActions(data []byte) ([]*ast.Action, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var docs []actionDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, &ParseError{Kind: "actions", Message: "invalid JSON", Cause: err}
	}

	actions := make([]*ast.Action, 0, len(docs))
	for i, doc := range docs {
		action := &ast.Action{
			Type:  ast.ActionType(doc.Action),
			Code:  doc.Code,
			Field: doc.Key,
			Value: doc.Value,
		}
		if err := action.Validate(); err != nil {
			return nil, &ParseError{Kind: "actions", Message: fmt.Sprintf("action %d", i), Cause: err}
		}
		actions = append(actions, action)
	}

	return actions, nil
}

// EncodeCondition serializes a condition tree back to its JSON wire form.
// A nil tree encodes to an empty document.
func EncodeCondition(node *ast.ConditionNode) ([]byte, error) {
	if node == nil {
		return nil, nil
	}
	doc, err := encodeCondition(node)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// encodeCondition converts an AST node to its wire form.
func encodeCondition(node *ast.ConditionNode) (*conditionDoc, error) {
	if node.IsLeaf() {
		doc := &conditionDoc{
			Field:    node.Field,
			Operator: string(node.Operator),
		}
		switch node.Operator {
		case ast.OperatorIn, ast.OperatorNotIn:
			members, _ := node.Value.AsSet()
			doc.Values = members
		case ast.OperatorExists, ast.OperatorNotExists:
			// No value.
		default:
			raw, err := json.Marshal(node.Value.Value)
			if err != nil {
				return nil, err
			}
			doc.Value = raw
		}
		return doc, nil
	}

	doc := &conditionDoc{Type: string(node.Type)}
	for _, child := range node.Children {
		childDoc, err := encodeCondition(child)
		if err != nil {
			return nil, err
		}
		doc.Conditions = append(doc.Conditions, *childDoc)
	}
	return doc, nil
}

// EncodeActions serializes an action list back to its JSON wire form.
func EncodeActions(actions []*ast.Action) ([]byte, error) {
	if len(actions) == 0 {
		return nil, nil
	}

	docs := make([]actionDoc, 0, len(actions))
	for _, action := range actions {
		docs = append(docs, actionDoc{
			Action: string(action.Type),
			Code:   action.Code,
			Key:    action.Field,
			Value:  action.Value,
		})
	}
	return json.Marshal(docs)
}
