package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/minerva/pkg/audit"
	"mercator-hq/minerva/pkg/decision"
	"mercator-hq/minerva/pkg/profile"
	"mercator-hq/minerva/pkg/ruleset"
	"mercator-hq/minerva/pkg/telemetry/metrics"
	"mercator-hq/minerva/pkg/telemetry/tracing"
)

// ScopeChangedEvent is emitted when a tenant's derived artifact set changes
// between evaluations. Delivery to downstream systems is the subscriber's
// responsibility.
type ScopeChangedEvent struct {
	TenantID       string
	RulesetCode    string
	Old            []string
	New            []string
	ExecutionLogID string
}

// EvaluationResult is the outcome of one Evaluate call.
type EvaluationResult struct {
	Scope          *DerivedScope
	ExecutionLogID string
	Matched        []*MatchedRule
	RulesEvaluated int
	Confidence     int
	Warnings       []Warning
}

// ServiceConfig wires the engine's collaborators.
type ServiceConfig struct {
	// Profiles supplies organization profiles (required).
	Profiles profile.Source

	// Manager supplies Active ruleset versions (required).
	Manager *ruleset.VersionManager

	// Recorder writes execution logs and decisions (required).
	Recorder *audit.Recorder

	// Cache is the decision cache; nil gets a fresh one.
	Cache *decision.Cache

	// Metrics is optional.
	Metrics *metrics.Collector

	// Tracer is optional; nil disables tracing.
	Tracer *tracing.Tracer

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Executor is recorded on execution logs.
	Executor string

	// DecisionTTL bounds cached decision reuse; 0 means no expiry.
	DecisionTTL time.Duration
}

// Service is the rule evaluation engine: one engine, two entry points.
// Evaluate derives a tenant's compliance scope; DecidePolicy answers a
// cached point question. Both share the condition evaluator and the
// decision cache.
type Service struct {
	contexts *ContextBuilder
	manager  *ruleset.VersionManager
	cache    *decision.Cache
	recorder *audit.Recorder
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	logger   *slog.Logger

	executor    string
	decisionTTL time.Duration

	scopeMu        sync.Mutex
	lastScopes     map[string][]string
	scopeListeners []func(ScopeChangedEvent)
}

// NewService creates the engine and subscribes it to ruleset activations
// for cache invalidation.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Profiles == nil {
		return nil, fmt.Errorf("profile source is required")
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("version manager is required")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = decision.NewCache()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Executor == "" {
		cfg.Executor = "system"
	}

	s := &Service{
		contexts:    NewContextBuilder(cfg.Profiles),
		manager:     cfg.Manager,
		cache:       cfg.Cache,
		recorder:    cfg.Recorder,
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger.With("component", "engine"),
		executor:    cfg.Executor,
		decisionTTL: cfg.DecisionTTL,
		lastScopes:  make(map[string][]string),
	}

	cfg.Manager.Subscribe(s.onActivation)
	return s, nil
}

// SubscribeScopeChanges registers a listener for scope-changed events.
// Listeners run synchronously after the execution log is written and must
// not block.
func (s *Service) SubscribeScopeChanges(fn func(ScopeChangedEvent)) {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()
	s.scopeListeners = append(s.scopeListeners, fn)
}

// onActivation invalidates cached decisions tied to the superseded version.
// Lazy version checks at lookup already protect correctness; this bounds
// stale memory.
func (s *Service) onActivation(ev ruleset.ActivationEvent) {
	if ev.Scope.TenantID == "" {
		s.cache.InvalidateSharedPolicy(ev.Scope.Code)
	} else {
		s.cache.InvalidatePolicy(ev.Scope.TenantID, ev.Scope.Code)
	}
	if s.metrics != nil {
		s.metrics.Activation()
	}
}

// Evaluate derives the tenant's compliance scope from the Active version
// of the named ruleset. Every run is recorded; failures produce a
// Failure-status record capturing whatever was computed.
func (s *Service) Evaluate(ctx context.Context, tenantID, rulesetCode string) (*EvaluationResult, error) {
	started := time.Now()
	ctx, span := s.startSpan(ctx, "engine.Evaluate",
		attribute.String("tenant.id", tenantID),
		attribute.String("ruleset.code", rulesetCode),
	)
	defer span.End()

	ec, err := s.contexts.Build(ctx, tenantID)
	if err != nil {
		s.recordFailure(ctx, tenantID, rulesetCode, nil, nil, err)
		s.observe("failure", started, 0, 0, 0)
		return nil, fmt.Errorf("build context for tenant %s: %w", tenantID, err)
	}

	rs, err := s.manager.Active(ctx, tenantID, rulesetCode)
	if err != nil {
		if ruleset.IsNoActiveVersion(err) {
			logID := s.recordFailure(ctx, tenantID, rulesetCode, ec, nil, err)
			s.observe("failure", started, 0, 0, 0)
			return nil, &NoActiveRulesetError{
				TenantID:       tenantID,
				Code:           rulesetCode,
				ExecutionLogID: logID,
			}
		}
		s.observe("failure", started, 0, 0, 0)
		return nil, err
	}

	run := s.run(rs, ec)

	logID, err := s.recordSuccess(ctx, tenantID, rs, ec, run)
	if err != nil {
		return nil, fmt.Errorf("record execution: %w", err)
	}
	for _, artifact := range run.scope.Artifacts {
		artifact.ExecutionLogID = logID
	}
	for _, artifact := range run.scope.Excluded {
		artifact.ExecutionLogID = logID
	}

	s.notifyScopeChange(tenantID, rulesetCode, run.scope, logID)
	s.observe("success", started, run.match.Evaluated, len(run.match.Matched), run.match.Skipped)

	s.logger.Debug("evaluation complete",
		"tenant", tenantID,
		"ruleset", rulesetCode,
		"version", rs.Version,
		"matched", len(run.match.Matched),
		"warnings", len(run.warnings),
		"log_id", logID,
	)

	return &EvaluationResult{
		Scope:          run.scope,
		ExecutionLogID: logID,
		Matched:        run.match.Matched,
		RulesEvaluated: run.match.Evaluated,
		Confidence:     run.confidence,
		Warnings:       run.warnings,
	}, nil
}

// DecidePolicy answers a policy question for a tenant, serving from the
// decision cache when a valid entry exists. A nil context builds one from
// the tenant's profile.
func (s *Service) DecidePolicy(ctx context.Context, tenantID, policyType string, ec *Context) (*decision.PolicyDecision, error) {
	started := time.Now()
	ctx, span := s.startSpan(ctx, "engine.DecidePolicy",
		attribute.String("tenant.id", tenantID),
		attribute.String("policy.type", policyType),
	)
	defer span.End()

	if ec == nil {
		built, err := s.contexts.Build(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("build context for tenant %s: %w", tenantID, err)
		}
		ec = built
	}

	rs, err := s.manager.Active(ctx, tenantID, policyType)
	if err != nil {
		if ruleset.IsNoActiveVersion(err) {
			logID := s.recordFailure(ctx, tenantID, policyType, ec, nil, err)
			return nil, &NoActiveRulesetError{
				TenantID:       tenantID,
				Code:           policyType,
				ExecutionLogID: logID,
			}
		}
		return nil, err
	}

	fingerprint := decision.Fingerprint(ec.Facts)
	if cached, ok := s.cache.Lookup(tenantID, policyType, fingerprint, rs.Version); ok {
		if s.metrics != nil {
			s.metrics.CacheHit()
		}
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMiss()
	}

	run := s.run(rs, ec)

	logID, err := s.recordSuccess(ctx, tenantID, rs, ec, run)
	if err != nil {
		return nil, fmt.Errorf("record execution: %w", err)
	}

	snapshot, err := ec.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot context: %w", err)
	}

	d := &decision.PolicyDecision{
		TenantID:       tenantID,
		PolicyType:     policyType,
		PolicyVersion:  rs.Version,
		Fingerprint:    fingerprint,
		Context:        snapshot,
		Decision:       decisionValue(run.scope),
		Reason:         decisionReason(run),
		RulesEvaluated: run.match.Evaluated,
		RulesMatched:   len(run.match.Matched),
		Confidence:     run.confidence,
		EvaluatedAt:    time.Now().UTC(),
		RelatedEntity:  logID,
	}
	if s.decisionTTL > 0 {
		d.ExpiresAt = d.EvaluatedAt.Add(s.decisionTTL)
	}

	if err := s.recorder.RecordDecision(ctx, d); err != nil {
		return nil, fmt.Errorf("persist decision: %w", err)
	}
	s.cache.Store(d)
	if s.metrics != nil {
		s.metrics.DecisionStored()
	}

	s.observe("success", started, run.match.Evaluated, len(run.match.Matched), run.match.Skipped)
	return d, nil
}

// evaluationRun holds the pure-evaluation outputs shared by both entry
// points.
type evaluationRun struct {
	match      *MatchResult
	scope      *DerivedScope
	warnings   []Warning
	confidence int
}

func (s *Service) run(rs *ruleset.Ruleset, ec *Context) *evaluationRun {
	match := MatchRules(rs, ec)
	scope, applyWarnings := ApplyActions(match.Matched)

	warnings := append(append([]Warning(nil), match.Warnings...), applyWarnings...)
	return &evaluationRun{
		match:      match,
		scope:      scope,
		warnings:   warnings,
		confidence: confidenceScore(match.Evaluated, match.Skipped),
	}
}

// confidenceScore is 100 for a clean run; each skipped rule reduces the
// score proportionally, floored at 50 because a run that produced a usable
// scope is never reported below even odds.
func confidenceScore(evaluated, skipped int) int {
	if evaluated == 0 || skipped == 0 {
		return 100
	}
	score := 100 - (100*skipped)/(2*evaluated)
	if score < 50 {
		return 50
	}
	return score
}

func (s *Service) recordSuccess(ctx context.Context, tenantID string, rs *ruleset.Ruleset, ec *Context, run *evaluationRun) (string, error) {
	contextSnapshot, err := ec.Snapshot()
	if err != nil {
		return "", err
	}
	scopeSnapshot, err := run.scope.Snapshot()
	if err != nil {
		return "", err
	}

	matchedCodes := make([]string, len(run.match.Matched))
	for i, m := range run.match.Matched {
		matchedCodes[i] = m.Rule.Code
	}

	return s.recorder.RecordExecution(ctx, &audit.ExecutionRecord{
		TenantID:         tenantID,
		RulesetID:        rs.ID,
		RulesetCode:      rs.Code,
		RulesetVersion:   rs.Version,
		Executor:         s.executor,
		MatchedRuleCodes: matchedCodes,
		RulesEvaluated:   run.match.Evaluated,
		Context:          contextSnapshot,
		DerivedScope:     scopeSnapshot,
		Warnings:         warningStrings(run.warnings),
		Status:           audit.StatusSuccess,
	})
}

// recordFailure writes a Failure record carrying whatever partial inputs
// were available. Recording failures must not fail the failure path, so
// storage errors are logged and swallowed here.
func (s *Service) recordFailure(ctx context.Context, tenantID, rulesetCode string, ec *Context, scope *DerivedScope, cause error) string {
	rec := &audit.ExecutionRecord{
		TenantID:         tenantID,
		RulesetCode:      rulesetCode,
		Executor:         s.executor,
		MatchedRuleCodes: []string{},
		Status:           audit.StatusFailure,
		ErrorDetail:      cause.Error(),
	}
	if ec != nil {
		if snapshot, err := ec.Snapshot(); err == nil {
			rec.Context = snapshot
		}
	}
	if scope != nil {
		if snapshot, err := scope.Snapshot(); err == nil {
			rec.DerivedScope = snapshot
		}
	}

	logID, err := s.recorder.RecordExecution(ctx, rec)
	if err != nil {
		s.logger.Error("failed to record failure entry",
			"tenant", tenantID, "ruleset", rulesetCode, "error", err)
		if s.metrics != nil {
			s.metrics.StoreError("audit")
		}
		return ""
	}
	return logID
}

func (s *Service) notifyScopeChange(tenantID, rulesetCode string, scope *DerivedScope, logID string) {
	key := tenantID + "/" + rulesetCode
	current := scope.Fingerprintable()

	s.scopeMu.Lock()
	previous, seen := s.lastScopes[key]
	s.lastScopes[key] = current
	listeners := s.scopeListeners
	s.scopeMu.Unlock()

	if seen && slices.Equal(previous, current) {
		return
	}
	if !seen && len(current) == 0 {
		return
	}

	event := ScopeChangedEvent{
		TenantID:       tenantID,
		RulesetCode:    rulesetCode,
		Old:            previous,
		New:            current,
		ExecutionLogID: logID,
	}
	for _, fn := range listeners {
		fn(event)
	}
}

func (s *Service) observe(status string, started time.Time, evaluated, matched, skipped int) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveEvaluation(status, time.Since(started), evaluated, matched, skipped)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if s.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func decisionValue(scope *DerivedScope) string {
	if len(scope.Artifacts) > 0 {
		return "applicable"
	}
	return "not_applicable"
}

func decisionReason(run *evaluationRun) string {
	return fmt.Sprintf("%d of %d rules matched; %d artifacts derived",
		len(run.match.Matched), run.match.Evaluated, len(run.scope.Artifacts))
}

func warningStrings(warnings []Warning) []string {
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.String()
	}
	return out
}
