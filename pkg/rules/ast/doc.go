// Package ast defines the abstract syntax tree for Minerva rule conditions
// and actions.
//
// A rule condition is a tree of logical nodes (and/or/not) over leaf
// predicates that compare a single context fact against an expected value.
// A rule action describes one contribution to the derived compliance scope:
// including or excluding a baseline, package, or template, assigning a
// scalar field, or attaching a metadata tag.
//
// The AST is the only representation the engine evaluates. Serialized rule
// blobs are parsed into this tree exactly once at rule-load time (see
// pkg/rules/parser), so malformed expressions surface as load-time
// validation failures rather than evaluation-time surprises.
//
// Design principles:
//   - Tagged variants: every node carries an explicit type discriminator
//   - No recursion beyond the tree itself: conditions cannot reference rules
//   - Validation is eager: Validate() checks structural invariants so the
//     evaluator can assume a well-formed tree
package ast
