package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/minerva/pkg/audit"
	"mercator-hq/minerva/pkg/decision"
)

const defaultQueryLimit = 100

// MemoryStore is an in-memory audit.Store.
type MemoryStore struct {
	mu         sync.RWMutex
	executions []*audit.ExecutionRecord
	byID       map[string]*audit.ExecutionRecord
	decisions  []*decision.PolicyDecision
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*audit.ExecutionRecord)}
}

// SaveExecution appends an execution record.
func (s *MemoryStore) SaveExecution(_ context.Context, rec *audit.ExecutionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("execution record id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[rec.ID]; exists {
		return fmt.Errorf("execution record %s already exists", rec.ID)
	}
	cp := copyExecution(rec)
	s.executions = append(s.executions, cp)
	s.byID[rec.ID] = cp
	return nil
}

// GetExecution returns an execution record by id.
func (s *MemoryStore) GetExecution(_ context.Context, id string) (*audit.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, &audit.NotFoundError{ID: id}
	}
	return copyExecution(rec), nil
}

// QueryExecutions returns matching records, newest first.
func (s *MemoryStore) QueryExecutions(_ context.Context, q audit.Query) ([]*audit.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*audit.ExecutionRecord
	for _, rec := range s.executions {
		if matches(rec, q) {
			out = append(out, copyExecution(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExecutedAt.After(out[j].ExecutedAt)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveDecision persists a policy decision.
func (s *MemoryStore) SaveDecision(_ context.Context, d *decision.PolicyDecision) error {
	if d.ID == "" {
		return fmt.Errorf("decision id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *d
	s.decisions = append(s.decisions, &cp)
	return nil
}

// QueryDecisions returns a tenant's persisted decisions for a policy type,
// newest first.
func (s *MemoryStore) QueryDecisions(_ context.Context, tenantID, policyType string, limit int) ([]*decision.PolicyDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*decision.PolicyDecision
	for _, d := range s.decisions {
		if d.TenantID == tenantID && d.PolicyType == policyType {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EvaluatedAt.After(out[j].EvaluatedAt)
	})

	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneDecisionsBefore deletes persisted decisions older than the cutoff.
func (s *MemoryStore) PruneDecisionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.decisions[:0]
	var pruned int64
	for _, d := range s.decisions {
		if d.EvaluatedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, d)
	}
	s.decisions = kept
	return pruned, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func matches(rec *audit.ExecutionRecord, q audit.Query) bool {
	if q.TenantID != "" && rec.TenantID != q.TenantID {
		return false
	}
	if q.RulesetCode != "" && rec.RulesetCode != q.RulesetCode {
		return false
	}
	if q.CorrelationID != "" && rec.CorrelationID != q.CorrelationID {
		return false
	}
	if q.Status != "" && rec.Status != q.Status {
		return false
	}
	if !q.From.IsZero() && rec.ExecutedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && rec.ExecutedAt.After(q.To) {
		return false
	}
	return true
}

func copyExecution(rec *audit.ExecutionRecord) *audit.ExecutionRecord {
	cp := *rec
	cp.MatchedRuleCodes = append([]string(nil), rec.MatchedRuleCodes...)
	cp.Warnings = append([]string(nil), rec.Warnings...)
	cp.Context = append([]byte(nil), rec.Context...)
	cp.DerivedScope = append([]byte(nil), rec.DerivedScope...)
	return &cp
}
