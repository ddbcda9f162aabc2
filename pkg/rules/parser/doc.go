// Package parser converts serialized rule expressions into the typed AST
// defined in pkg/rules/ast.
//
// Rule conditions and actions are stored as JSON documents (the format the
// rule authoring tools and the ruleset stores exchange). The parser decodes
// a document into an ast tree and validates it eagerly, so a malformed
// expression is rejected when the rule is loaded rather than when it is
// first evaluated.
//
// The wire format for conditions:
//
//	{"type": "and", "conditions": [
//	  {"field": "country", "operator": "equals", "value": "SA"},
//	  {"field": "sector", "operator": "in", "values": ["Banking", "Insurance"]}
//	]}
//
// A document whose root names a field is a single leaf predicate. Logical
// nodes nest arbitrarily via "conditions".
//
// The wire format for actions:
//
//	[{"action": "apply_baseline", "code": "NCA_ECC"},
//	 {"action": "tag", "key": "jurisdiction", "value": "KSA"}]
package parser
