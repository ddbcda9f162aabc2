// Package audit records rule evaluation runs and persisted policy
// decisions.
//
// Execution records are append-only: one record per evaluation run, written
// once and never mutated, including Failure records that capture whatever
// partial result was computed. Persisted policy decisions mirror the
// decision cache so history stays queryable after eviction. Both are
// queryable by tenant, time range, and correlation id.
package audit
