package ruleset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ActivationEvent describes one successful version activation.
// Subscribers (the decision cache, the notification layer) receive it after
// the store transaction commits.
type ActivationEvent struct {
	Scope           ScopeKey
	RulesetID       string
	Version         int
	PreviousVersion int // 0 when this is the first Active version
	ActivatedAt     time.Time
}

// VersionManager enforces the ruleset lifecycle state machine.
// Activations for the same (tenant, code) are serialized by a per-scope
// mutex; readers are never blocked and observe whichever version was Active
// when they started.
type VersionManager struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	locks map[ScopeKey]*sync.Mutex

	listenerMu sync.RWMutex
	listeners  []func(ActivationEvent)
}

// NewVersionManager creates a version manager over the given store.
func NewVersionManager(store Store, logger *slog.Logger) *VersionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &VersionManager{
		store:  store,
		logger: logger.With("component", "ruleset.manager"),
		locks:  make(map[ScopeKey]*sync.Mutex),
	}
}

// Subscribe registers a listener for activation events.
// Listeners are invoked synchronously after the store transaction commits
// and must not block.
func (m *VersionManager) Subscribe(fn func(ActivationEvent)) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// CreateDraft stores a new Draft version of a lineage.
// The draft's version must be greater than every existing version; its
// PreviousVersionID is set to the current Active version when one exists.
func (m *VersionManager) CreateDraft(ctx context.Context, rs *Ruleset) error {
	if rs.Code == "" {
		return fmt.Errorf("ruleset code cannot be empty")
	}
	if rs.Version <= 0 {
		return fmt.Errorf("ruleset %s: version must be positive, got %d", rs.Code, rs.Version)
	}

	scope := ScopeKey{TenantID: rs.TenantID, Code: rs.Code}

	versions, err := m.store.ListVersions(ctx, scope)
	if err != nil {
		return err
	}
	for _, existing := range versions {
		if existing.Version >= rs.Version {
			return fmt.Errorf("%w: %s v%d", ErrVersionExists, scope, rs.Version)
		}
		if existing.Status == StatusActive {
			rs.PreviousVersionID = existing.ID
		}
	}

	rs.Status = StatusDraft
	if rs.CreatedAt.IsZero() {
		rs.CreatedAt = time.Now().UTC()
	}

	if err := m.store.Put(ctx, rs); err != nil {
		return err
	}

	m.logger.Info("ruleset draft created",
		"scope", scope.String(),
		"version", rs.Version,
		"rules", len(rs.Rules),
	)
	return nil
}

// Activate transitions a Draft version to Active, atomically retiring the
// previously Active version of the same lineage. Rejected transitions
// return an InvalidTransitionError and mutate nothing.
func (m *VersionManager) Activate(ctx context.Context, scope ScopeKey, version int) (*Ruleset, error) {
	lock := m.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	target, err := m.store.GetVersion(ctx, scope, version)
	if err != nil {
		return nil, err
	}

	if target.Status != StatusDraft {
		return nil, &InvalidTransitionError{
			Scope:   scope,
			Version: version,
			From:    target.Status,
			To:      StatusActive,
			Reason:  "only draft versions can be activated",
		}
	}

	var previous *Ruleset
	var retireID string
	current, err := m.store.GetActive(ctx, scope)
	switch {
	case err == nil:
		previous = current
		retireID = current.ID
	case IsNoActiveVersion(err):
		// First activation for this lineage.
	default:
		return nil, err
	}

	if err := m.store.Swap(ctx, target.ID, retireID); err != nil {
		return nil, err
	}

	event := ActivationEvent{
		Scope:       scope,
		RulesetID:   target.ID,
		Version:     target.Version,
		ActivatedAt: time.Now().UTC(),
	}
	if previous != nil {
		event.PreviousVersion = previous.Version
	}

	target.Status = StatusActive
	target.ActivatedAt = event.ActivatedAt
	if previous != nil {
		target.PreviousVersionID = previous.ID
	}

	m.notify(event)

	m.logger.Info("ruleset activated",
		"scope", scope.String(),
		"version", target.Version,
		"previous_version", event.PreviousVersion,
	)
	return target, nil
}

// Active returns the Active version for a tenant's lineage.
// When the tenant has no tenant-specific lineage for the code, the shared
// lineage (empty tenant id) is consulted before reporting no active version.
func (m *VersionManager) Active(ctx context.Context, tenantID, code string) (*Ruleset, error) {
	scope := ScopeKey{TenantID: tenantID, Code: code}
	rs, err := m.store.GetActive(ctx, scope)
	if err == nil || !IsNoActiveVersion(err) || tenantID == "" {
		return rs, err
	}

	// Fall back to the shared scope.
	shared, sharedErr := m.store.GetActive(ctx, ScopeKey{Code: code})
	if sharedErr == nil {
		return shared, nil
	}
	if IsNoActiveVersion(sharedErr) {
		// Report the tenant scope the caller asked about.
		return nil, &NoActiveVersionError{Scope: scope}
	}
	return nil, sharedErr
}

// ActiveVersion returns the Active version number for a lineage, or 0 when
// none is Active. The decision cache uses this for lazy validity checks.
func (m *VersionManager) ActiveVersion(ctx context.Context, tenantID, code string) int {
	rs, err := m.Active(ctx, tenantID, code)
	if err != nil {
		return 0
	}
	return rs.Version
}

// scopeLock returns the activation mutex for a scope, creating it on first
// use.
func (m *VersionManager) scopeLock(scope ScopeKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[scope]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[scope] = lock
	}
	return lock
}

// notify delivers an activation event to all subscribers.
func (m *VersionManager) notify(event ActivationEvent) {
	m.listenerMu.RLock()
	listeners := m.listeners
	m.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}
