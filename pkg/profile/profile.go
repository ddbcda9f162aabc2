package profile

import (
	"context"
	"fmt"
	"sync"
)

// OrganizationProfile describes the tenant attributes evaluated by the
// rules engine. All fields are plain values; persistence concerns
// (audit columns, soft deletes) belong to the store that supplies them.
type OrganizationProfile struct {
	TenantID string

	// Basic attributes
	Sector             string
	Country            string
	OrganizationType   string
	OrganizationSize   string
	ComplianceMaturity string
	HostingModel       string

	// Regulatory posture
	IsRegulatedEntity        bool
	IsCriticalInfrastructure bool
	PrimaryRegulator         string

	// Data handling
	DataTypes              []string
	ProcessesPersonalData  bool
	ProcessesSensitiveData bool
	CloudProviders         []string
	DataSubjectCount       int

	// Third parties and structure
	Vendors             []string
	VendorCount         int
	CriticalVendorCount int
	IsPubliclyTraded    bool
	EmployeeCount       int
	BranchCount         int
}

// Source supplies organization profiles for tenants.
// Implementations are external collaborators (typically backed by the
// platform's tenant store).
type Source interface {
	// GetOrganizationProfile returns the profile for a tenant.
	// Returns a NotFoundError if the tenant has no profile.
	GetOrganizationProfile(ctx context.Context, tenantID string) (*OrganizationProfile, error)
}

// NotFoundError indicates a tenant has no organization profile.
type NotFoundError struct {
	TenantID string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no organization profile for tenant %q", e.TenantID)
}

// StaticSource is an in-memory profile source keyed by tenant id.
// It is safe for concurrent use.
type StaticSource struct {
	mu       sync.RWMutex
	profiles map[string]*OrganizationProfile
}

// NewStaticSource creates an empty static source.
func NewStaticSource() *StaticSource {
	return &StaticSource{profiles: make(map[string]*OrganizationProfile)}
}

// Put stores a profile, replacing any existing profile for the tenant.
func (s *StaticSource) Put(p *OrganizationProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.profiles[p.TenantID] = &copied
}

// GetOrganizationProfile returns the profile for a tenant.
func (s *StaticSource) GetOrganizationProfile(ctx context.Context, tenantID string) (*OrganizationProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[tenantID]
	if !ok {
		return nil, &NotFoundError{TenantID: tenantID}
	}
	copied := *p
	return &copied, nil
}
