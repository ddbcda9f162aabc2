package ruleset

import (
	"time"

	"mercator-hq/minerva/pkg/rules/ast"
)

// Status represents the lifecycle state of a ruleset version.
type Status string

const (
	// StatusDraft is the initial state of a newly created version.
	StatusDraft Status = "draft"

	// StatusActive marks the single published version of a code.
	StatusActive Status = "active"

	// StatusRetired is terminal for a version; it is entered only when a
	// newer version of the same code is activated.
	StatusRetired Status = "retired"
)

// RuleStatus represents whether a rule participates in evaluation.
type RuleStatus string

const (
	RuleStatusActive   RuleStatus = "active"
	RuleStatusDisabled RuleStatus = "disabled"
)

// Ruleset is a named, versioned collection of rules for one tenant scope.
// An empty TenantID marks a shared ruleset visible to every tenant that has
// no tenant-specific version of the same code.
type Ruleset struct {
	// ID uniquely identifies this version row.
	ID string

	// TenantID scopes the ruleset; empty means shared.
	TenantID string

	// Code names the ruleset across versions (e.g. "KSA-BASE").
	Code string

	// Name is the human-readable ruleset name.
	Name string

	// Version is the integer version, unique per (tenant, code).
	Version int

	// Status is the lifecycle state of this version.
	Status Status

	// PreviousVersionID points to the version this one supersedes.
	PreviousVersionID string

	// ChangeNotes describes what changed relative to the previous version.
	ChangeNotes string

	// ActivatedAt is set when the version transitions to Active.
	ActivatedAt time.Time

	// CreatedAt is when the version row was created.
	CreatedAt time.Time

	// Deleted is the soft-delete tombstone. Ruleset versions are never
	// hard-deleted; retired versions stay queryable for audit.
	Deleted bool

	// Rules are the rules owned by this version. Rules do not outlive
	// their ruleset.
	Rules []*Rule
}

// Rule is a condition/action pair with a priority, owned by one ruleset
// version. Condition and Actions hold the parsed AST; the serialized blobs
// live only at the storage boundary.
type Rule struct {
	// Code uniquely names the rule within its ruleset (e.g. "R-HC-1").
	Code string

	// Name is the human-readable rule name.
	Name string

	// BusinessReason is the free-text justification shown in audit output.
	BusinessReason string

	// Priority orders evaluation; higher evaluates first. Ties are
	// broken by Code ascending.
	Priority int

	// Status gates participation in evaluation.
	Status RuleStatus

	// Condition is the parsed predicate tree; nil means always-match.
	Condition *ast.ConditionNode

	// Actions are the parsed scope contributions.
	Actions []*ast.Action

	// UpdatedAt is the last modification timestamp.
	UpdatedAt time.Time
}

// IsActive returns true if the rule participates in evaluation.
func (r *Rule) IsActive() bool {
	return r.Status == RuleStatusActive
}

// ActiveRules returns the rules that participate in evaluation.
// Ordering is the caller's concern (see the engine's rule matcher).
func (rs *Ruleset) ActiveRules() []*Rule {
	var active []*Rule
	for _, r := range rs.Rules {
		if r.IsActive() {
			active = append(active, r)
		}
	}
	return active
}

// Rule returns the rule with the given code, or nil if not present.
func (rs *Ruleset) Rule(code string) *Rule {
	for _, r := range rs.Rules {
		if r.Code == code {
			return r
		}
	}
	return nil
}

// ScopeKey identifies a (tenant, code) version lineage. Shared rulesets use
// an empty tenant id.
type ScopeKey struct {
	TenantID string
	Code     string
}

// String renders the key for logs and lock tables.
func (k ScopeKey) String() string {
	if k.TenantID == "" {
		return "shared/" + k.Code
	}
	return k.TenantID + "/" + k.Code
}
