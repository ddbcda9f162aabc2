// Package ruleset defines versioned rule collections and the version
// manager that governs their lifecycle.
//
// A Ruleset is a named, versioned collection of derivation rules scoped to
// one tenant, or shared across tenants when the tenant reference is empty.
// Versions move through a strict state machine:
//
//	Draft -> Active -> Retired
//
// At most one version of a code is Active per tenant scope at any time.
// Activating a draft atomically retires the previously Active version of
// the same code; a version can never be activated twice, and the sole
// Active version cannot be retired without promoting a replacement.
//
// The VersionManager serializes activations per (tenant, code) and emits
// an ActivationEvent on every successful transition, which the decision
// cache uses to invalidate entries tied to superseded versions.
package ruleset
