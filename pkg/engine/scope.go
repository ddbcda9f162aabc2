package engine

import (
	"encoding/json"
	"sort"
	"time"

	"mercator-hq/minerva/pkg/rules/ast"
)

// Applicability classifies a derived artifact.
type Applicability string

const (
	ApplicabilityMandatory     Applicability = "mandatory"
	ApplicabilityRecommended   Applicability = "recommended"
	ApplicabilityNotApplicable Applicability = "not_applicable"
)

// Contribution records one rule's action on an artifact or field, for the
// reason trace.
type Contribution struct {
	RuleCode string `json:"ruleCode"`
	Action   string `json:"action"`
	Priority int    `json:"priority"`
}

// DerivedArtifact is one compliance artifact judged applicable (or
// explicitly not applicable) for a tenant.
type DerivedArtifact struct {
	Kind          ast.ArtifactKind `json:"kind"`
	Code          string           `json:"code"`
	Applicability Applicability    `json:"applicability"`
	DerivedAt     time.Time        `json:"derivedAt"`

	// ExecutionLogID back-references the run that produced the artifact.
	ExecutionLogID string `json:"executionLogId,omitempty"`

	// Reasons lists every rule action that touched this artifact,
	// including contributions overridden by the conflict resolution.
	Reasons []Contribution `json:"reasons"`
}

// FieldAssignment is a scalar field set by a rule, with every superseded
// assignment retained for explainability.
type FieldAssignment struct {
	Field      string         `json:"field"`
	Value      string         `json:"value"`
	RuleCode   string         `json:"ruleCode"`
	Priority   int            `json:"priority"`
	Superseded []Contribution `json:"superseded,omitempty"`
}

// DerivedScope is the accumulated output of applying matched rules.
type DerivedScope struct {
	// Artifacts holds the included artifacts, ordered by kind then code.
	Artifacts []*DerivedArtifact `json:"artifacts"`

	// Excluded holds artifacts explicitly excluded by a winning
	// exclusion, with their reason traces.
	Excluded []*DerivedArtifact `json:"excluded,omitempty"`

	// Fields holds scalar assignments keyed by field name.
	Fields map[string]*FieldAssignment `json:"fields,omitempty"`

	// Tags holds metadata tags keyed by tag name.
	Tags map[string]*FieldAssignment `json:"tags,omitempty"`
}

// Codes returns the included artifact codes of one kind, sorted.
func (s *DerivedScope) Codes(kind ast.ArtifactKind) []string {
	var out []string
	for _, a := range s.Artifacts {
		if a.Kind == kind {
			out = append(out, a.Code)
		}
	}
	sort.Strings(out)
	return out
}

// Baselines returns the included baseline codes, sorted.
func (s *DerivedScope) Baselines() []string { return s.Codes(ast.ArtifactBaseline) }

// Packages returns the included package codes, sorted.
func (s *DerivedScope) Packages() []string { return s.Codes(ast.ArtifactPackage) }

// Templates returns the included template codes, sorted.
func (s *DerivedScope) Templates() []string { return s.Codes(ast.ArtifactTemplate) }

// Artifact returns the included artifact with the given kind and code, or
// nil.
func (s *DerivedScope) Artifact(kind ast.ArtifactKind, code string) *DerivedArtifact {
	for _, a := range s.Artifacts {
		if a.Kind == kind && a.Code == code {
			return a
		}
	}
	return nil
}

// Snapshot serializes the scope for audit records.
func (s *DerivedScope) Snapshot() ([]byte, error) {
	return json.Marshal(s)
}

// Fingerprintable renders the scope to a comparable form used by the
// scope-changed event: included codes only, deterministic order.
func (s *DerivedScope) Fingerprintable() []string {
	var out []string
	for _, kind := range []ast.ArtifactKind{ast.ArtifactBaseline, ast.ArtifactPackage, ast.ArtifactTemplate} {
		for _, code := range s.Codes(kind) {
			out = append(out, string(kind)+":"+code)
		}
	}
	return out
}
