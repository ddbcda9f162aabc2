// Package storage provides ruleset persistence backends.
//
// Two implementations are available: an in-memory store for tests and
// single-process deployments, and a SQLite store for durable lineages.
// Both satisfy ruleset.Store and serialize rule conditions and actions
// through the wire codec in pkg/rules/parser, so rulesets round-trip
// identically regardless of backend.
package storage
