package engine

import (
	"testing"

	"mercator-hq/minerva/pkg/rules/ast"
	"mercator-hq/minerva/pkg/ruleset"
)

func matchedWithActions(code string, priority int, actions ...*ast.Action) *MatchedRule {
	return &MatchedRule{
		Rule: &ruleset.Rule{
			Code:     code,
			Priority: priority,
			Status:   ruleset.RuleStatusActive,
			Actions:  actions,
		},
	}
}

func TestApplyActionsUnionsIncludes(t *testing.T) {
	scope, warnings := ApplyActions([]*MatchedRule{
		matchedWithActions("R-1", 10,
			&ast.Action{Type: ast.ActionTypeApplyBaseline, Code: "NPHIES-BL"},
			&ast.Action{Type: ast.ActionTypeApplyPackage, Code: "CLOUD-SEC-PKG"},
		),
		matchedWithActions("R-2", 5,
			&ast.Action{Type: ast.ActionTypeApplyBaseline, Code: "NCA-ECC"},
			&ast.Action{Type: ast.ActionTypeApplyBaseline, Code: "NPHIES-BL"},
		),
	})

	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
	if got := scope.Baselines(); len(got) != 2 || got[0] != "NCA-ECC" || got[1] != "NPHIES-BL" {
		t.Errorf("Baselines() = %v, want [NCA-ECC NPHIES-BL]", got)
	}
	if got := scope.Packages(); len(got) != 1 || got[0] != "CLOUD-SEC-PKG" {
		t.Errorf("Packages() = %v, want [CLOUD-SEC-PKG]", got)
	}

	// Both contributing rules appear in the duplicate's reason trace.
	artifact := scope.Artifact(ast.ArtifactBaseline, "NPHIES-BL")
	if artifact == nil || len(artifact.Reasons) != 2 {
		t.Fatalf("NPHIES-BL reasons = %+v, want both contributions", artifact)
	}
	if artifact.Applicability != ApplicabilityMandatory {
		t.Errorf("Applicability = %q, want mandatory", artifact.Applicability)
	}
}

func TestApplyActionsExclusionPrecedence(t *testing.T) {
	// A priority-10 exclusion beats a priority-1 inclusion.
	scope, warnings := ApplyActions([]*MatchedRule{
		matchedWithActions("R-HIGH", 10,
			&ast.Action{Type: ast.ActionTypeExcludeBaseline, Code: "BL-1"},
		),
		matchedWithActions("R-LOW", 1,
			&ast.Action{Type: ast.ActionTypeApplyBaseline, Code: "BL-1"},
		),
	})

	if len(scope.Baselines()) != 0 {
		t.Errorf("Baselines() = %v, want BL-1 excluded", scope.Baselines())
	}
	if len(scope.Excluded) != 1 || scope.Excluded[0].Code != "BL-1" {
		t.Fatalf("Excluded = %+v, want BL-1", scope.Excluded)
	}
	if scope.Excluded[0].Applicability != ApplicabilityNotApplicable {
		t.Errorf("Applicability = %q, want not_applicable", scope.Excluded[0].Applicability)
	}
	if len(scope.Excluded[0].Reasons) != 2 {
		t.Errorf("reasons = %+v, want both the include and the exclude", scope.Excluded[0].Reasons)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one conflict advisory", warnings)
	}
}

func TestApplyActionsHigherPriorityIncludeBeatsLowerExclude(t *testing.T) {
	scope, _ := ApplyActions([]*MatchedRule{
		matchedWithActions("R-HIGH", 10,
			&ast.Action{Type: ast.ActionTypeApplyBaseline, Code: "BL-1"},
		),
		matchedWithActions("R-LOW", 1,
			&ast.Action{Type: ast.ActionTypeExcludeBaseline, Code: "BL-1"},
		),
	})

	if got := scope.Baselines(); len(got) != 1 || got[0] != "BL-1" {
		t.Errorf("Baselines() = %v, want [BL-1]", got)
	}
}

func TestApplyActionsScalarHighestPriorityWins(t *testing.T) {
	scope, _ := ApplyActions([]*MatchedRule{
		matchedWithActions("P1", 20,
			&ast.Action{Type: ast.ActionTypeSetField, Field: "tier", Value: "Gold"},
		),
		matchedWithActions("P2", 5,
			&ast.Action{Type: ast.ActionTypeSetField, Field: "tier", Value: "Silver"},
		),
	})

	tier := scope.Fields["tier"]
	if tier == nil {
		t.Fatal("field tier not set")
	}
	if tier.Value != "Gold" || tier.RuleCode != "P1" {
		t.Errorf("tier = %q by %s, want Gold by P1", tier.Value, tier.RuleCode)
	}
	// The superseded Silver assignment stays in the trace.
	if len(tier.Superseded) != 1 || tier.Superseded[0].RuleCode != "P2" {
		t.Errorf("Superseded = %+v, want P2's assignment", tier.Superseded)
	}
}

func TestApplyActionsTags(t *testing.T) {
	scope, _ := ApplyActions([]*MatchedRule{
		matchedWithActions("R-KSA", 10,
			&ast.Action{Type: ast.ActionTypeTag, Field: "jurisdiction", Value: "KSA"},
		),
	})

	tag := scope.Tags["jurisdiction"]
	if tag == nil || tag.Value != "KSA" {
		t.Errorf("Tags[jurisdiction] = %+v, want KSA", tag)
	}
}

func TestApplyActionsEmptyMatchList(t *testing.T) {
	scope, warnings := ApplyActions(nil)
	if len(scope.Artifacts) != 0 || len(warnings) != 0 {
		t.Errorf("empty input produced scope %+v warnings %v", scope, warnings)
	}
}
