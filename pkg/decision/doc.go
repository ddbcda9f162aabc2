// Package decision implements the policy decision cache.
//
// Decisions are keyed by (tenant, policy type, context fingerprint). The
// fingerprint is a stable hash over the sorted-key normalized context, so
// equal contexts hash identically regardless of fact insertion order. A
// cached entry is valid only while its stored policy version matches the
// current Active version and its expiry has not passed; version bumps
// invalidate lazily at lookup time, with an optional cron-driven sweep for
// eager eviction.
package decision
