// Package engine implements rule evaluation: building an evaluation
// context from a tenant's organization profile, matching rules against it,
// folding matched actions into a derived scope, and answering cached
// policy questions.
//
// Evaluation is pure and deterministic: identical (ruleset version,
// context) pairs always produce identical matched-rule lists and derived
// scopes. The Service wires evaluation together with the decision cache,
// the audit recorder, and telemetry; side effects live only there.
package engine
