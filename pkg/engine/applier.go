package engine

import (
	"fmt"
	"sort"
	"time"

	"mercator-hq/minerva/pkg/rules/ast"
)

// artifactKey identifies one artifact across kinds.
type artifactKey struct {
	Kind ast.ArtifactKind
	Code string
}

// artifactState accumulates include/exclude contributions for one artifact.
// The matched-rule list arrives in priority order, so the first include and
// first exclude seen are the highest-priority ones.
type artifactState struct {
	includes        []Contribution
	excludes        []Contribution
	includePriority int
	excludePriority int
}

// ApplyActions folds the actions of the matched rules into a derived
// scope. The input must be in match order (priority descending, code
// ascending), as produced by MatchRules.
//
// Resolution is deterministic: set inclusions are monotonic unions;
// an exclusion beats an inclusion when the excluding rule's priority is
// higher, or equal (explicit deny wins ties); a scalar field keeps the
// first (highest-priority) assignment with later ones retained as
// superseded.
func ApplyActions(matched []*MatchedRule) (*DerivedScope, []Warning) {
	artifacts := make(map[artifactKey]*artifactState)
	var order []artifactKey

	scope := &DerivedScope{
		Fields: make(map[string]*FieldAssignment),
		Tags:   make(map[string]*FieldAssignment),
	}
	var warnings []Warning

	for _, m := range matched {
		for _, action := range m.Rule.Actions {
			contribution := Contribution{
				RuleCode: m.Rule.Code,
				Action:   action.String(),
				Priority: m.Rule.Priority,
			}

			if kind, ok := action.ArtifactKind(); ok {
				key := artifactKey{Kind: kind, Code: action.Code}
				state, seen := artifacts[key]
				if !seen {
					state = &artifactState{}
					artifacts[key] = state
					order = append(order, key)
				}
				if action.IsInclude() {
					if len(state.includes) == 0 {
						state.includePriority = m.Rule.Priority
					}
					state.includes = append(state.includes, contribution)
				} else {
					if len(state.excludes) == 0 {
						state.excludePriority = m.Rule.Priority
					}
					state.excludes = append(state.excludes, contribution)
				}
				continue
			}

			switch action.Type {
			case ast.ActionTypeSetField:
				applyAssignment(scope.Fields, action, contribution)
			case ast.ActionTypeTag:
				applyAssignment(scope.Tags, action, contribution)
			default:
				warnings = append(warnings, Warning{
					RuleCode: m.Rule.Code,
					Message:  fmt.Sprintf("ignored unknown action type %q", action.Type),
				})
			}
		}
	}

	now := time.Now().UTC()
	for _, key := range order {
		state := artifacts[key]
		artifact := &DerivedArtifact{
			Kind:      key.Kind,
			Code:      key.Code,
			DerivedAt: now,
			Reasons:   append(state.includes, state.excludes...),
		}

		switch {
		case len(state.excludes) == 0:
			artifact.Applicability = ApplicabilityMandatory
			scope.Artifacts = append(scope.Artifacts, artifact)

		case len(state.includes) == 0:
			artifact.Applicability = ApplicabilityNotApplicable
			scope.Excluded = append(scope.Excluded, artifact)

		default:
			// Inclusion and exclusion both present: the higher-priority
			// rule wins, exclusion wins ties. Advisory only, the
			// resolution is deterministic.
			warnings = append(warnings, Warning{
				Message: fmt.Sprintf(
					"conflicting actions on %s %s: include priority %d vs exclude priority %d",
					key.Kind, key.Code, state.includePriority, state.excludePriority),
			})
			if state.includePriority > state.excludePriority {
				artifact.Applicability = ApplicabilityMandatory
				scope.Artifacts = append(scope.Artifacts, artifact)
			} else {
				artifact.Applicability = ApplicabilityNotApplicable
				scope.Excluded = append(scope.Excluded, artifact)
			}
		}
	}

	sortArtifacts(scope.Artifacts)
	sortArtifacts(scope.Excluded)
	return scope, warnings
}

func applyAssignment(dest map[string]*FieldAssignment, action *ast.Action, contribution Contribution) {
	existing, ok := dest[action.Field]
	if !ok {
		dest[action.Field] = &FieldAssignment{
			Field:    action.Field,
			Value:    action.Value,
			RuleCode: contribution.RuleCode,
			Priority: contribution.Priority,
		}
		return
	}
	// Highest priority came first; keep the later assignment in the
	// trace, never silently dropped.
	existing.Superseded = append(existing.Superseded, contribution)
}

func sortArtifacts(artifacts []*DerivedArtifact) {
	sort.Slice(artifacts, func(i, j int) bool {
		if artifacts[i].Kind != artifacts[j].Kind {
			return artifacts[i].Kind < artifacts[j].Kind
		}
		return artifacts[i].Code < artifacts[j].Code
	})
}
