package decision

import (
	"testing"
	"time"

	"mercator-hq/minerva/pkg/rules/ast"
)

func TestFingerprintKeyOrderIndependent(t *testing.T) {
	a := map[string]*ast.ValueNode{
		"sector":  ast.StringValue("Finance"),
		"country": ast.StringValue("SA"),
	}
	b := map[string]*ast.ValueNode{
		"country": ast.StringValue("SA"),
		"sector":  ast.StringValue("Finance"),
	}

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("same facts with different insertion order produced different fingerprints")
	}
}

func TestFingerprintSetOrderIndependent(t *testing.T) {
	a := map[string]*ast.ValueNode{"dataTypes": ast.SetValue("PHI", "PII", "PCI")}
	b := map[string]*ast.ValueNode{"dataTypes": ast.SetValue("PCI", "PHI", "PII")}

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("same set members in different order produced different fingerprints")
	}
}

func TestFingerprintDistinguishesValues(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]*ast.ValueNode
	}{
		{
			"different string values",
			map[string]*ast.ValueNode{"sector": ast.StringValue("Finance")},
			map[string]*ast.ValueNode{"sector": ast.StringValue("Healthcare")},
		},
		{
			"different types same rendering",
			map[string]*ast.ValueNode{"flag": ast.StringValue("true")},
			map[string]*ast.ValueNode{"flag": ast.BoolValue(true)},
		},
		{
			"value moved between keys",
			map[string]*ast.ValueNode{"a": ast.StringValue("x"), "b": ast.StringValue("")},
			map[string]*ast.ValueNode{"a": ast.StringValue(""), "b": ast.StringValue("x")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Fingerprint(tt.a) == Fingerprint(tt.b) {
				t.Error("distinct contexts produced identical fingerprints")
			}
		})
	}
}

func testDecision(version int, expiresAt time.Time) *PolicyDecision {
	return &PolicyDecision{
		ID:            "d-1",
		TenantID:      "acme",
		PolicyType:    "KSA-BASE",
		PolicyVersion: version,
		Fingerprint:   "fp-1",
		Decision:      "applicable",
		Confidence:    100,
		EvaluatedAt:   time.Now().UTC(),
		ExpiresAt:     expiresAt,
	}
}

func TestCacheLookupHit(t *testing.T) {
	cache := NewCache()
	cache.Store(testDecision(3, time.Time{}))

	got, ok := cache.Lookup("acme", "KSA-BASE", "fp-1", 3)
	if !ok {
		t.Fatal("Lookup() miss, want hit")
	}
	if !got.FromCache {
		t.Error("FromCache = false, want true")
	}
	if got.Decision != "applicable" {
		t.Errorf("Decision = %q, want applicable", got.Decision)
	}
}

func TestCacheVersionBumpInvalidates(t *testing.T) {
	cache := NewCache()
	cache.Store(testDecision(3, time.Now().Add(time.Hour)))

	// TTL has not expired, but the backing ruleset moved to v4.
	if _, ok := cache.Lookup("acme", "KSA-BASE", "fp-1", 4); ok {
		t.Error("Lookup() hit for superseded policy version")
	}
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache()
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Store(testDecision(3, now.Add(time.Minute)))
	if _, ok := cache.Lookup("acme", "KSA-BASE", "fp-1", 3); !ok {
		t.Fatal("Lookup() miss before expiry")
	}

	cache.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, ok := cache.Lookup("acme", "KSA-BASE", "fp-1", 3); ok {
		t.Error("Lookup() hit after expiry")
	}
}

func TestCacheStoreLastWriteWins(t *testing.T) {
	cache := NewCache()

	first := testDecision(3, time.Time{})
	first.Decision = "applicable"
	cache.Store(first)

	second := testDecision(3, time.Time{})
	second.Decision = "not_applicable"
	cache.Store(second)

	got, ok := cache.Lookup("acme", "KSA-BASE", "fp-1", 3)
	if !ok {
		t.Fatal("Lookup() miss")
	}
	if got.Decision != "not_applicable" {
		t.Errorf("Decision = %q, want last written value", got.Decision)
	}
}

func TestCacheInvalidatePolicy(t *testing.T) {
	cache := NewCache()
	cache.Store(testDecision(3, time.Time{}))

	other := testDecision(3, time.Time{})
	other.TenantID = "globex"
	cache.Store(other)

	if dropped := cache.InvalidatePolicy("acme", "KSA-BASE"); dropped != 1 {
		t.Errorf("InvalidatePolicy() = %d, want 1", dropped)
	}
	if _, ok := cache.Lookup("acme", "KSA-BASE", "fp-1", 3); ok {
		t.Error("invalidated entry still served")
	}
	if _, ok := cache.Lookup("globex", "KSA-BASE", "fp-1", 3); !ok {
		t.Error("other tenant's entry was dropped")
	}

	if dropped := cache.InvalidateSharedPolicy("KSA-BASE"); dropped != 1 {
		t.Errorf("InvalidateSharedPolicy() = %d, want 1", dropped)
	}
}

func TestCacheSweepEvictsOnlyExpired(t *testing.T) {
	cache := NewCache()
	now := time.Now()
	cache.now = func() time.Time { return now }

	expired := testDecision(3, now.Add(-time.Minute))
	expired.Fingerprint = "fp-old"
	cache.Store(expired)

	live := testDecision(3, now.Add(time.Hour))
	live.Fingerprint = "fp-live"
	cache.Store(live)

	forever := testDecision(3, time.Time{})
	forever.Fingerprint = "fp-forever"
	cache.Store(forever)

	if evicted := cache.Sweep(); evicted != 1 {
		t.Errorf("Sweep() = %d, want 1", evicted)
	}
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}
}
