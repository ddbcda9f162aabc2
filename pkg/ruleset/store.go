package ruleset

import "context"

// Store persists ruleset versions and their rules.
// Implementations must be safe for concurrent use. Version rows are
// immutable apart from their Status, ActivatedAt, and Deleted columns;
// rules are written with their owning version and never independently.
type Store interface {
	// Put inserts a ruleset version with its rules.
	// Returns ErrVersionExists if the (tenant, code, version) row exists.
	Put(ctx context.Context, rs *Ruleset) error

	// Get returns a ruleset version by id, including its rules.
	Get(ctx context.Context, id string) (*Ruleset, error)

	// GetVersion returns one version of a lineage, including its rules.
	GetVersion(ctx context.Context, scope ScopeKey, version int) (*Ruleset, error)

	// GetActive returns the Active version of a lineage, including its
	// rules. Returns a NoActiveVersionError when none is Active.
	GetActive(ctx context.Context, scope ScopeKey) (*Ruleset, error)

	// ListVersions returns all versions of a lineage ordered by version
	// ascending, without rules.
	ListVersions(ctx context.Context, scope ScopeKey) ([]*Ruleset, error)

	// Swap atomically marks activateID Active and, when retireID is
	// non-empty, marks retireID Retired in the same transaction.
	// On any failure neither row changes.
	Swap(ctx context.Context, activateID, retireID string) error

	// Close releases resources held by the store.
	Close() error
}
