package audit

import (
	"context"
	"testing"
	"time"

	"mercator-hq/minerva/pkg/decision"
)

// memStore is a minimal in-memory Store for recorder tests. The full
// backends live in pkg/audit/storage and have their own tests.
type memStore struct {
	executions []*ExecutionRecord
	decisions  []*decision.PolicyDecision
}

func (s *memStore) SaveExecution(_ context.Context, rec *ExecutionRecord) error {
	s.executions = append(s.executions, rec)
	return nil
}

func (s *memStore) GetExecution(_ context.Context, id string) (*ExecutionRecord, error) {
	for _, rec := range s.executions {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, &NotFoundError{ID: id}
}

func (s *memStore) QueryExecutions(_ context.Context, q Query) ([]*ExecutionRecord, error) {
	return s.executions, nil
}

func (s *memStore) SaveDecision(_ context.Context, d *decision.PolicyDecision) error {
	s.decisions = append(s.decisions, d)
	return nil
}

func (s *memStore) QueryDecisions(_ context.Context, tenantID, policyType string, limit int) ([]*decision.PolicyDecision, error) {
	return s.decisions, nil
}

func (s *memStore) PruneDecisionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *memStore) Close() error { return nil }

func TestRecordExecutionAssignsIdentifiers(t *testing.T) {
	store := &memStore{}
	rec := NewRecorder(store, nil)

	id, err := rec.RecordExecution(context.Background(), &ExecutionRecord{
		TenantID:    "t-acme",
		RulesetCode: "KSA-BASE",
		Status:      StatusSuccess,
	})
	if err != nil {
		t.Fatalf("RecordExecution() error = %v", err)
	}
	if id == "" {
		t.Fatal("RecordExecution() returned empty id")
	}

	saved := store.executions[0]
	if saved.ID != id {
		t.Errorf("stored id = %q, returned %q", saved.ID, id)
	}
	if saved.CorrelationID == "" {
		t.Error("correlation id not assigned")
	}
	if saved.ExecutedAt.IsZero() {
		t.Error("timestamp not assigned")
	}
}

func TestRecordExecutionKeepsCallerIdentifiers(t *testing.T) {
	store := &memStore{}
	rec := NewRecorder(store, nil)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id, err := rec.RecordExecution(context.Background(), &ExecutionRecord{
		ID:            "run-1",
		CorrelationID: "corr-1",
		ExecutedAt:    at,
		TenantID:      "t-acme",
		Status:        StatusSuccess,
	})
	if err != nil {
		t.Fatalf("RecordExecution() error = %v", err)
	}
	if id != "run-1" {
		t.Errorf("id = %q, want run-1", id)
	}

	saved := store.executions[0]
	if saved.CorrelationID != "corr-1" || !saved.ExecutedAt.Equal(at) {
		t.Errorf("caller identifiers overwritten: %+v", saved)
	}
}

func TestRecordDecisionAssignsIdentifiers(t *testing.T) {
	store := &memStore{}
	rec := NewRecorder(store, nil)

	d := &decision.PolicyDecision{
		TenantID:   "t-acme",
		PolicyType: "KSA-BASE",
		Decision:   "applicable",
	}
	if err := rec.RecordDecision(context.Background(), d); err != nil {
		t.Fatalf("RecordDecision() error = %v", err)
	}
	if d.ID == "" {
		t.Error("decision id not assigned")
	}
	if d.EvaluatedAt.IsZero() {
		t.Error("decision timestamp not assigned")
	}
}
