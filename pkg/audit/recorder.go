package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mercator-hq/minerva/pkg/decision"
)

// Recorder writes audit records. It assigns ids and timestamps so callers
// only describe what happened.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		logger: logger.With("component", "audit.recorder"),
	}
}

// RecordExecution appends an execution record and returns its id.
// Missing id, correlation id, and timestamp are filled in.
func (r *Recorder) RecordExecution(ctx context.Context, rec *ExecutionRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CorrelationID == "" {
		rec.CorrelationID = uuid.New().String()
	}
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now().UTC()
	}

	if err := r.store.SaveExecution(ctx, rec); err != nil {
		return "", err
	}

	if rec.Status == StatusFailure {
		r.logger.Warn("recorded failed evaluation",
			"log_id", rec.ID,
			"tenant", rec.TenantID,
			"ruleset", rec.RulesetCode,
			"error", rec.ErrorDetail,
		)
	}
	return rec.ID, nil
}

// RecordDecision persists a policy decision for history queries.
func (r *Recorder) RecordDecision(ctx context.Context, d *decision.PolicyDecision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.EvaluatedAt.IsZero() {
		d.EvaluatedAt = time.Now().UTC()
	}
	return r.store.SaveDecision(ctx, d)
}

// Execution returns a recorded run by id.
func (r *Recorder) Execution(ctx context.Context, id string) (*ExecutionRecord, error) {
	return r.store.GetExecution(ctx, id)
}

// Executions queries recorded runs.
func (r *Recorder) Executions(ctx context.Context, q Query) ([]*ExecutionRecord, error) {
	return r.store.QueryExecutions(ctx, q)
}

// Decisions queries persisted policy decisions.
func (r *Recorder) Decisions(ctx context.Context, tenantID, policyType string, limit int) ([]*decision.PolicyDecision, error) {
	return r.store.QueryDecisions(ctx, tenantID, policyType, limit)
}
