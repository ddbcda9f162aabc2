package decision

import "time"

// PolicyDecision is a cached answer to a policy question.
type PolicyDecision struct {
	// ID uniquely identifies the decision record.
	ID string

	// TenantID is the tenant the question was asked for.
	TenantID string

	// PolicyType names the policy question (the backing ruleset code).
	PolicyType string

	// PolicyVersion is the Active ruleset version the decision was
	// computed against. A version bump invalidates the entry.
	PolicyVersion int

	// Fingerprint is the content hash of the normalized context.
	Fingerprint string

	// Context is the serialized context the decision was computed from.
	Context []byte

	// Decision is the decision value ("applicable" / "not_applicable").
	Decision string

	// Reason is the human-readable explanation.
	Reason string

	// RulesEvaluated and RulesMatched count the evaluation that produced
	// the decision.
	RulesEvaluated int
	RulesMatched   int

	// Confidence scores the decision 0-100.
	Confidence int

	// EvaluatedAt is when the decision was computed.
	EvaluatedAt time.Time

	// ExpiresAt bounds reuse; zero means no expiry.
	ExpiresAt time.Time

	// FromCache is true when the decision was served from the cache
	// rather than computed for this call.
	FromCache bool

	// RelatedEntity optionally references the entity the question was
	// about (an asset id, a vendor id).
	RelatedEntity string
}

// Expired reports whether the decision's validity window has passed.
func (d *PolicyDecision) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt)
}

// ValidFor reports whether the decision is reusable against the given
// current Active policy version at the given instant.
func (d *PolicyDecision) ValidFor(version int, now time.Time) bool {
	return d.PolicyVersion == version && !d.Expired(now)
}
