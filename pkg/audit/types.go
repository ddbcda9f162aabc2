package audit

import (
	"context"
	"time"

	"mercator-hq/minerva/pkg/decision"
)

// Status marks an execution record as a clean run or a failed one.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// ExecutionRecord is the immutable record of one evaluation run.
type ExecutionRecord struct {
	// ID uniquely identifies the record.
	ID string

	// TenantID is the tenant the evaluation ran for.
	TenantID string

	// RulesetID, RulesetCode, and RulesetVersion identify the exact
	// ruleset version evaluated. Empty/zero on NoActiveRuleset failures.
	RulesetID      string
	RulesetCode    string
	RulesetVersion int

	// Executor identifies who or what triggered the run.
	Executor string

	// CorrelationID links the run to the caller's request chain.
	CorrelationID string

	// ExecutedAt is when the run happened.
	ExecutedAt time.Time

	// MatchedRuleCodes lists the matched rules in evaluation order.
	MatchedRuleCodes []string

	// RulesEvaluated counts the Active rules considered.
	RulesEvaluated int

	// Context is the serialized snapshot of the evaluation context.
	Context []byte

	// DerivedScope is the serialized snapshot of the derived scope.
	// Failure records carry whatever partial scope was computed.
	DerivedScope []byte

	// Warnings holds non-fatal evaluation warnings (type mismatches,
	// skipped malformed rules, resolved action conflicts).
	Warnings []string

	// Status is Success or Failure.
	Status Status

	// ErrorDetail explains a Failure; empty on Success.
	ErrorDetail string
}

// Query filters execution record lookups. Zero fields are ignored.
type Query struct {
	TenantID      string
	RulesetCode   string
	CorrelationID string
	From          time.Time
	To            time.Time
	Status        Status

	// Limit bounds the result count; 0 means the store default.
	Limit int
}

// Store persists audit records. Execution records are append-only and are
// never pruned; persisted decisions are regenerable and subject to
// retention.
type Store interface {
	// SaveExecution appends an execution record.
	SaveExecution(ctx context.Context, rec *ExecutionRecord) error

	// GetExecution returns an execution record by id.
	GetExecution(ctx context.Context, id string) (*ExecutionRecord, error)

	// QueryExecutions returns execution records matching the query,
	// newest first.
	QueryExecutions(ctx context.Context, q Query) ([]*ExecutionRecord, error)

	// SaveDecision persists a policy decision for history queries.
	SaveDecision(ctx context.Context, d *decision.PolicyDecision) error

	// QueryDecisions returns a tenant's persisted decisions for a policy
	// type, newest first, bounded by limit.
	QueryDecisions(ctx context.Context, tenantID, policyType string, limit int) ([]*decision.PolicyDecision, error)

	// PruneDecisionsBefore deletes persisted decisions evaluated before
	// the cutoff and returns how many were removed. Execution records
	// are never touched.
	PruneDecisionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases resources held by the store.
	Close() error
}
