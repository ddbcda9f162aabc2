package ast

import "fmt"

// ConditionType represents the type of a condition node.
type ConditionType string

const (
	ConditionTypeLeaf ConditionType = "leaf" // field op value
	ConditionTypeAnd  ConditionType = "and"  // AND of children
	ConditionTypeOr   ConditionType = "or"   // OR of children
	ConditionTypeNot  ConditionType = "not"  // NOT of a single child
)

// Operator represents a comparison operator in a leaf predicate.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "not_in"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorExists      Operator = "exists"
	OperatorNotExists   Operator = "not_exists"
)

// ConditionNode represents one node of a rule's condition tree.
// Leaf nodes compare a context fact against an expected value; logical
// nodes combine children.
type ConditionNode struct {
	Type     ConditionType    // Node discriminator
	Field    string           // Fact name (leaf nodes)
	Operator Operator         // Comparison operator (leaf nodes)
	Value    *ValueNode       // Expected value (leaf nodes, except exists/not_exists)
	Children []*ConditionNode // Child conditions (and/or/not nodes)
}

// IsLeaf returns true if this is a leaf predicate.
func (c *ConditionNode) IsLeaf() bool {
	return c.Type == ConditionTypeLeaf
}

// IsLogical returns true if this is a logical operator node.
func (c *ConditionNode) IsLogical() bool {
	return c.Type == ConditionTypeAnd || c.Type == ConditionTypeOr || c.Type == ConditionTypeNot
}

// Validate checks structural invariants of the condition tree.
// It is called once at rule-load time; the evaluator assumes a tree that
// passed validation.
func (c *ConditionNode) Validate() error {
	switch c.Type {
	case ConditionTypeLeaf:
		return c.validateLeaf()

	case ConditionTypeAnd, ConditionTypeOr:
		if len(c.Children) == 0 {
			return fmt.Errorf("%s condition must have at least one child", c.Type)
		}
		for i, child := range c.Children {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("%s child %d: %w", c.Type, i, err)
			}
		}
		return nil

	case ConditionTypeNot:
		if len(c.Children) != 1 {
			return fmt.Errorf("not condition must have exactly one child, got %d", len(c.Children))
		}
		return c.Children[0].Validate()

	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
}

// validateLeaf checks a leaf predicate.
func (c *ConditionNode) validateLeaf() error {
	if c.Field == "" {
		return fmt.Errorf("leaf condition must name a field")
	}

	switch c.Operator {
	case OperatorExists, OperatorNotExists:
		// Existence predicates take no value.
		return nil

	case OperatorEquals, OperatorNotEquals, OperatorContains:
		if c.Value == nil {
			return fmt.Errorf("operator %q on field %q requires a value", c.Operator, c.Field)
		}
		return nil

	case OperatorIn, OperatorNotIn:
		if c.Value == nil || c.Value.Type != ValueTypeSet {
			return fmt.Errorf("operator %q on field %q requires a set value", c.Operator, c.Field)
		}
		return nil

	case OperatorGreaterThan, OperatorLessThan:
		if c.Value == nil || c.Value.Type != ValueTypeNumber {
			return fmt.Errorf("operator %q on field %q requires a numeric value", c.Operator, c.Field)
		}
		return nil

	default:
		return fmt.Errorf("unknown operator %q on field %q", c.Operator, c.Field)
	}
}

// Leaves returns all leaf predicates of the tree in depth-first order.
func (c *ConditionNode) Leaves() []*ConditionNode {
	if c.IsLeaf() {
		return []*ConditionNode{c}
	}

	var leaves []*ConditionNode
	for _, child := range c.Children {
		leaves = append(leaves, child.Leaves()...)
	}
	return leaves
}

// String renders a compact representation of the predicate, used in reason
// traces and warnings.
func (c *ConditionNode) String() string {
	switch c.Type {
	case ConditionTypeLeaf:
		if c.Operator == OperatorExists || c.Operator == OperatorNotExists {
			return fmt.Sprintf("%s(%s)", c.Operator, c.Field)
		}
		return fmt.Sprintf("%s %s %s", c.Field, c.Operator, c.Value)
	case ConditionTypeNot:
		if len(c.Children) == 1 {
			return fmt.Sprintf("not(%s)", c.Children[0])
		}
		return "not(?)"
	default:
		return string(c.Type)
	}
}
