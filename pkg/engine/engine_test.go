package engine

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/minerva/pkg/audit"
	auditstorage "mercator-hq/minerva/pkg/audit/storage"
	"mercator-hq/minerva/pkg/profile"
	"mercator-hq/minerva/pkg/rules/ast"
	"mercator-hq/minerva/pkg/ruleset"
	"mercator-hq/minerva/pkg/ruleset/storage"
)

type testHarness struct {
	service  *Service
	manager  *ruleset.VersionManager
	profiles *profile.StaticSource
	audits   *auditstorage.MemoryStore
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	profiles := profile.NewStaticSource()
	profiles.Put(&profile.OrganizationProfile{
		TenantID:     "t-acme",
		Sector:       "Healthcare",
		Country:      "SA",
		HostingModel: "cloud",
	})

	rulesetStore := storage.NewMemoryStore()
	t.Cleanup(func() { rulesetStore.Close() })
	manager := ruleset.NewVersionManager(rulesetStore, nil)

	audits := auditstorage.NewMemoryStore()
	t.Cleanup(func() { audits.Close() })

	service, err := NewService(ServiceConfig{
		Profiles: profiles,
		Manager:  manager,
		Recorder: audit.NewRecorder(audits, nil),
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return &testHarness{
		service:  service,
		manager:  manager,
		profiles: profiles,
		audits:   audits,
	}
}

// ksaBaseline is a two-rule ruleset exercising both artifact kinds: a
// healthcare baseline gated on sector and country, and a cloud security
// package gated on hosting model.
func ksaBaseline(id string, version int) *ruleset.Ruleset {
	return &ruleset.Ruleset{
		ID:      id,
		Code:    "KSA-BASE",
		Name:    "KSA baseline derivation",
		Version: version,
		Rules: []*ruleset.Rule{
			{
				Code:     "R-HC-1",
				Priority: 10,
				Status:   ruleset.RuleStatusActive,
				Condition: &ast.ConditionNode{
					Type: ast.ConditionTypeAnd,
					Children: []*ast.ConditionNode{
						leaf("sector", ast.OperatorEquals, ast.StringValue("Healthcare")),
						leaf("country", ast.OperatorEquals, ast.StringValue("SA")),
					},
				},
				Actions: []*ast.Action{
					{Type: ast.ActionTypeApplyBaseline, Code: "NPHIES-BL"},
				},
			},
			{
				Code:      "R-CLOUD-1",
				Priority:  5,
				Status:    ruleset.RuleStatusActive,
				Condition: leaf("hostingModel", ast.OperatorIn, ast.SetValue("cloud", "hybrid")),
				Actions: []*ast.Action{
					{Type: ast.ActionTypeApplyPackage, Code: "CLOUD-SEC-PKG"},
				},
			},
		},
	}
}

func activate(t *testing.T, h *testHarness, rs *ruleset.Ruleset) {
	t.Helper()
	ctx := context.Background()
	if err := h.manager.CreateDraft(ctx, rs); err != nil {
		t.Fatalf("CreateDraft(%s v%d) error = %v", rs.Code, rs.Version, err)
	}
	scope := ruleset.ScopeKey{TenantID: rs.TenantID, Code: rs.Code}
	if _, err := h.manager.Activate(ctx, scope, rs.Version); err != nil {
		t.Fatalf("Activate(%s v%d) error = %v", rs.Code, rs.Version, err)
	}
}

func TestEvaluateDerivesScope(t *testing.T) {
	h := newTestHarness(t)
	activate(t, h, ksaBaseline("rs-v1", 1))
	ctx := context.Background()

	result, err := h.service.Evaluate(ctx, "t-acme", "KSA-BASE")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if got := result.Scope.Baselines(); len(got) != 1 || got[0] != "NPHIES-BL" {
		t.Errorf("Baselines() = %v, want [NPHIES-BL]", got)
	}
	if got := result.Scope.Packages(); len(got) != 1 || got[0] != "CLOUD-SEC-PKG" {
		t.Errorf("Packages() = %v, want [CLOUD-SEC-PKG]", got)
	}
	if len(result.Matched) != 2 || result.Matched[0].Rule.Code != "R-HC-1" || result.Matched[1].Rule.Code != "R-CLOUD-1" {
		t.Errorf("matched rules out of order: %v", matchedCodes(result.Matched))
	}
	if result.RulesEvaluated != 2 {
		t.Errorf("RulesEvaluated = %d, want 2", result.RulesEvaluated)
	}
	if result.Confidence != 100 {
		t.Errorf("Confidence = %d, want 100", result.Confidence)
	}
	if result.ExecutionLogID == "" {
		t.Fatal("ExecutionLogID is empty")
	}
	for _, artifact := range result.Scope.Artifacts {
		if artifact.ExecutionLogID != result.ExecutionLogID {
			t.Errorf("%s %s not stamped with execution log id", artifact.Kind, artifact.Code)
		}
	}

	rec, err := h.audits.GetExecution(ctx, result.ExecutionLogID)
	if err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if rec.Status != audit.StatusSuccess {
		t.Errorf("record status = %q, want success", rec.Status)
	}
	if len(rec.MatchedRuleCodes) != 2 {
		t.Errorf("recorded matched codes = %v, want both rules", rec.MatchedRuleCodes)
	}
	if len(rec.Context) == 0 || len(rec.DerivedScope) == 0 {
		t.Error("record is missing the context or scope snapshot")
	}
}

func TestEvaluateNoActiveRulesetRecordsFailure(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.service.Evaluate(ctx, "t-acme", "KSA-BASE")
	if err == nil {
		t.Fatal("Evaluate() succeeded with no active ruleset")
	}
	var noActive *NoActiveRulesetError
	if !errors.As(err, &noActive) {
		t.Fatalf("error = %v, want NoActiveRulesetError", err)
	}
	if !IsNoActiveRuleset(err) {
		t.Error("IsNoActiveRuleset() = false")
	}
	if noActive.ExecutionLogID == "" {
		t.Fatal("failure was not recorded")
	}

	rec, err := h.audits.GetExecution(ctx, noActive.ExecutionLogID)
	if err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if rec.Status != audit.StatusFailure {
		t.Errorf("record status = %q, want failure", rec.Status)
	}
	if len(rec.MatchedRuleCodes) != 0 {
		t.Errorf("failure record matched codes = %v, want empty", rec.MatchedRuleCodes)
	}
	if rec.ErrorDetail == "" {
		t.Error("failure record has no error detail")
	}
	if len(rec.Context) == 0 {
		t.Error("failure record lost the evaluation context")
	}
}

func TestDecidePolicyNoActiveRulesetRecordsFailure(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.service.DecidePolicy(ctx, "t-acme", "KSA-BASE", nil)
	if err == nil {
		t.Fatal("DecidePolicy() succeeded with no active ruleset")
	}
	var noActive *NoActiveRulesetError
	if !errors.As(err, &noActive) {
		t.Fatalf("error = %v, want NoActiveRulesetError", err)
	}
	if noActive.ExecutionLogID == "" {
		t.Fatal("failure was not recorded")
	}

	rec, err := h.audits.GetExecution(ctx, noActive.ExecutionLogID)
	if err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if rec.Status != audit.StatusFailure {
		t.Errorf("record status = %q, want failure", rec.Status)
	}
	if len(rec.MatchedRuleCodes) != 0 {
		t.Errorf("failure record matched codes = %v, want empty", rec.MatchedRuleCodes)
	}

	// No decision is persisted for a failed question.
	history, err := h.audits.QueryDecisions(ctx, "t-acme", "KSA-BASE", 0)
	if err != nil {
		t.Fatalf("QueryDecisions() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("%d decisions persisted, want 0", len(history))
	}
}

func TestEvaluateUnknownTenant(t *testing.T) {
	h := newTestHarness(t)
	activate(t, h, ksaBaseline("rs-v1", 1))

	_, err := h.service.Evaluate(context.Background(), "t-ghost", "KSA-BASE")
	if err == nil {
		t.Fatal("Evaluate() succeeded for a tenant with no profile")
	}
	var notFound *profile.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("error = %v, want profile.NotFoundError", err)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	h := newTestHarness(t)
	activate(t, h, ksaBaseline("rs-v1", 1))
	ctx := context.Background()

	first, err := h.service.Evaluate(ctx, "t-acme", "KSA-BASE")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := h.service.Evaluate(ctx, "t-acme", "KSA-BASE")
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if got, want := again.Scope.Fingerprintable(), first.Scope.Fingerprintable(); !equalStrings(got, want) {
			t.Fatalf("run %d derived %v, first run derived %v", i, got, want)
		}
	}
}

func TestDecidePolicyCacheLifecycle(t *testing.T) {
	h := newTestHarness(t)
	activate(t, h, ksaBaseline("rs-v1", 1))
	ctx := context.Background()

	first, err := h.service.DecidePolicy(ctx, "t-acme", "KSA-BASE", nil)
	if err != nil {
		t.Fatalf("DecidePolicy() error = %v", err)
	}
	if first.FromCache {
		t.Error("first decision came from cache")
	}
	if first.Decision != "applicable" {
		t.Errorf("Decision = %q, want applicable", first.Decision)
	}
	if first.PolicyVersion != 1 {
		t.Errorf("PolicyVersion = %d, want 1", first.PolicyVersion)
	}
	if first.RelatedEntity == "" {
		t.Error("decision lost its execution log reference")
	}

	second, err := h.service.DecidePolicy(ctx, "t-acme", "KSA-BASE", nil)
	if err != nil {
		t.Fatalf("DecidePolicy() error = %v", err)
	}
	if !second.FromCache {
		t.Error("identical context did not hit the cache")
	}
	if second.Fingerprint != first.Fingerprint {
		t.Errorf("fingerprint changed between identical contexts: %q vs %q", second.Fingerprint, first.Fingerprint)
	}

	// A new active version invalidates cached decisions for the policy.
	activate(t, h, ksaBaseline("rs-v2", 2))

	third, err := h.service.DecidePolicy(ctx, "t-acme", "KSA-BASE", nil)
	if err != nil {
		t.Fatalf("DecidePolicy() error = %v", err)
	}
	if third.FromCache {
		t.Error("decision served from cache after version bump")
	}
	if third.PolicyVersion != 2 {
		t.Errorf("PolicyVersion = %d, want 2", third.PolicyVersion)
	}

	history, err := h.audits.QueryDecisions(ctx, "t-acme", "KSA-BASE", 10)
	if err != nil {
		t.Fatalf("QueryDecisions() error = %v", err)
	}
	if len(history) != 2 {
		t.Errorf("persisted decisions = %d, want 2 (cache hit writes nothing)", len(history))
	}
}

func TestScopeChangedEvents(t *testing.T) {
	h := newTestHarness(t)
	activate(t, h, ksaBaseline("rs-v1", 1))
	ctx := context.Background()

	var events []ScopeChangedEvent
	h.service.SubscribeScopeChanges(func(ev ScopeChangedEvent) {
		events = append(events, ev)
	})

	if _, err := h.service.Evaluate(ctx, "t-acme", "KSA-BASE"); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events after first evaluation = %d, want 1", len(events))
	}
	if len(events[0].Old) != 0 || len(events[0].New) != 2 {
		t.Errorf("first event old=%v new=%v", events[0].Old, events[0].New)
	}

	// Unchanged scope stays quiet.
	if _, err := h.service.Evaluate(ctx, "t-acme", "KSA-BASE"); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("unchanged scope emitted an event (%d total)", len(events))
	}

	// Dropping the cloud rule shrinks the derived scope.
	trimmed := ksaBaseline("rs-v2", 2)
	trimmed.Rules = trimmed.Rules[:1]
	activate(t, h, trimmed)

	if _, err := h.service.Evaluate(ctx, "t-acme", "KSA-BASE"); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events after scope shrink = %d, want 2", len(events))
	}
	if len(events[1].New) != 1 || events[1].New[0] != "baseline:NPHIES-BL" {
		t.Errorf("second event new = %v, want [baseline:NPHIES-BL]", events[1].New)
	}
}

func TestEvaluateSkippedRuleLowersConfidence(t *testing.T) {
	h := newTestHarness(t)

	rs := ksaBaseline("rs-v1", 1)
	rs.Rules = append(rs.Rules, &ruleset.Rule{
		Code:     "R-BROKEN",
		Priority: 1,
		Status:   ruleset.RuleStatusActive,
		Condition: &ast.ConditionNode{
			Type: ast.ConditionTypeAnd, // no children
		},
		Actions: []*ast.Action{
			{Type: ast.ActionTypeApplyBaseline, Code: "NEVER"},
		},
	})
	activate(t, h, rs)

	result, err := h.service.Evaluate(context.Background(), "t-acme", "KSA-BASE")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	// 3 rules considered, 1 skipped: 100 - 100/6 = 84.
	if result.Confidence != 84 {
		t.Errorf("Confidence = %d, want 84", result.Confidence)
	}
	if len(result.Warnings) == 0 {
		t.Error("skipped rule produced no warning")
	}
	if got := result.Scope.Baselines(); len(got) != 1 || got[0] != "NPHIES-BL" {
		t.Errorf("Baselines() = %v, the skipped rule must not contribute", got)
	}
}

func matchedCodes(matched []*MatchedRule) []string {
	out := make([]string, len(matched))
	for i, m := range matched {
		out[i] = m.Rule.Code
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
