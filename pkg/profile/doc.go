// Package profile defines the organization profile contract between Minerva
// and the tenant profile store.
//
// The profile store is an external collaborator: Minerva only consumes the
// attributes it supplies. The Source interface is the seam a host
// application implements; StaticSource is an in-memory implementation used
// by the CLI and in tests.
//
// Profiles can optionally be enriched from an asset inventory summary
// before evaluation, so rules trigger on what a tenant actually runs, not
// only on what the onboarding questionnaire claimed.
package profile
