package decision

import (
	"sync"
	"time"
)

// cacheKey identifies one cache slot.
type cacheKey struct {
	TenantID    string
	PolicyType  string
	Fingerprint string
}

// Cache is an in-memory decision cache.
//
// Reads take only a read lock and never block on writers holding other
// keys; concurrent stores for the same fingerprint are last-write-wins.
// Validity is checked lazily at lookup time against the caller-supplied
// current version, so a version bump needs no synchronous eviction.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*PolicyDecision

	now func() time.Time
}

// NewCache creates an empty decision cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[cacheKey]*PolicyDecision),
		now:     time.Now,
	}
}

// Lookup returns the cached decision for (tenant, policyType, fingerprint)
// if one exists and is valid against currentVersion. The returned copy has
// FromCache set.
func (c *Cache) Lookup(tenantID, policyType, fingerprint string, currentVersion int) (*PolicyDecision, bool) {
	key := cacheKey{TenantID: tenantID, PolicyType: policyType, Fingerprint: fingerprint}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !entry.ValidFor(currentVersion, c.now()) {
		return nil, false
	}

	out := *entry
	out.FromCache = true
	return &out, true
}

// Store caches a decision, replacing any existing entry for its key.
func (c *Cache) Store(d *PolicyDecision) {
	key := cacheKey{TenantID: d.TenantID, PolicyType: d.PolicyType, Fingerprint: d.Fingerprint}
	entry := *d
	entry.FromCache = false

	c.mu.Lock()
	c.entries[key] = &entry
	c.mu.Unlock()
}

// InvalidatePolicy drops every cached decision for a (tenant, policyType)
// pair. The version manager's activation events call this for eager
// invalidation; lazy version checks at lookup already guarantee stale
// entries are never served.
func (c *Cache) InvalidatePolicy(tenantID, policyType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped int
	for key := range c.entries {
		if key.TenantID == tenantID && key.PolicyType == policyType {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// InvalidateSharedPolicy drops cached decisions for a policy type across
// all tenants. Used when a shared ruleset version activates.
func (c *Cache) InvalidateSharedPolicy(policyType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped int
	for key := range c.entries {
		if key.PolicyType == policyType {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Sweep removes expired entries and returns how many were evicted.
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var evicted int
	for key, entry := range c.entries {
		if entry.Expired(now) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of cached entries, valid or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
