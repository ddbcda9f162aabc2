package ast

import (
	"fmt"
	"strings"
)

// ValueType represents the type of an expected value in a leaf predicate.
// The fact vocabulary is deliberately small: strings, numbers, booleans,
// and sets of strings. There is no automatic coercion between types.
type ValueType string

const (
	ValueTypeString  ValueType = "string"
	ValueTypeNumber  ValueType = "number"
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeSet     ValueType = "set"
)

// ValueNode represents a literal value in a condition or action.
type ValueNode struct {
	Type  ValueType   // Type of the value
	Value interface{} // string, float64, bool, or []string depending on Type
}

// StringValue creates a string-typed value node.
func StringValue(s string) *ValueNode {
	return &ValueNode{Type: ValueTypeString, Value: s}
}

// NumberValue creates a number-typed value node.
func NumberValue(n float64) *ValueNode {
	return &ValueNode{Type: ValueTypeNumber, Value: n}
}

// BoolValue creates a boolean-typed value node.
func BoolValue(b bool) *ValueNode {
	return &ValueNode{Type: ValueTypeBoolean, Value: b}
}

// SetValue creates a set-typed value node.
func SetValue(members ...string) *ValueNode {
	return &ValueNode{Type: ValueTypeSet, Value: members}
}

// AsString returns the string value; ok is false for other types.
func (v *ValueNode) AsString() (string, bool) {
	s, ok := v.Value.(string)
	return s, ok && v.Type == ValueTypeString
}

// AsNumber returns the numeric value; ok is false for other types.
func (v *ValueNode) AsNumber() (float64, bool) {
	n, ok := v.Value.(float64)
	return n, ok && v.Type == ValueTypeNumber
}

// AsBool returns the boolean value; ok is false for other types.
func (v *ValueNode) AsBool() (bool, bool) {
	b, ok := v.Value.(bool)
	return b, ok && v.Type == ValueTypeBoolean
}

// AsSet returns the set members; ok is false for other types.
func (v *ValueNode) AsSet() ([]string, bool) {
	s, ok := v.Value.([]string)
	return s, ok && v.Type == ValueTypeSet
}

// String renders the value for reason traces.
func (v *ValueNode) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.Type {
	case ValueTypeSet:
		if members, ok := v.AsSet(); ok {
			return "[" + strings.Join(members, ",") + "]"
		}
		return "[?]"
	default:
		return fmt.Sprint(v.Value)
	}
}
