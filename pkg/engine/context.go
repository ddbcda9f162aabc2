package engine

import (
	"context"
	"encoding/json"
	"sort"

	"mercator-hq/minerva/pkg/profile"
	"mercator-hq/minerva/pkg/rules/ast"
)

// Context is the evaluation context: a tenant id plus a mapping of fact
// names to typed values.
type Context struct {
	TenantID string
	Facts    map[string]*ast.ValueNode
}

// NewContext creates an empty context for a tenant.
func NewContext(tenantID string) *Context {
	return &Context{
		TenantID: tenantID,
		Facts:    make(map[string]*ast.ValueNode),
	}
}

// Fact returns the named fact, or nil when absent.
func (c *Context) Fact(name string) *ast.ValueNode {
	return c.Facts[name]
}

// SetString sets a string fact.
func (c *Context) SetString(name, value string) *Context {
	c.Facts[name] = ast.StringValue(value)
	return c
}

// SetNumber sets a numeric fact.
func (c *Context) SetNumber(name string, value float64) *Context {
	c.Facts[name] = ast.NumberValue(value)
	return c
}

// SetBool sets a boolean fact.
func (c *Context) SetBool(name string, value bool) *Context {
	c.Facts[name] = ast.BoolValue(value)
	return c
}

// SetSet sets a set-of-strings fact.
func (c *Context) SetSet(name string, members ...string) *Context {
	c.Facts[name] = ast.SetValue(members...)
	return c
}

// Snapshot serializes the context for audit records: a JSON object with
// sorted keys and plain values (set members sorted).
func (c *Context) Snapshot() ([]byte, error) {
	plain := make(map[string]any, len(c.Facts))
	for name, v := range c.Facts {
		if v == nil {
			// The fingerprint skips nil facts; the snapshot matches.
			continue
		}
		switch v.Type {
		case ast.ValueTypeSet:
			members, _ := v.AsSet()
			sorted := make([]string, len(members))
			copy(sorted, members)
			sort.Strings(sorted)
			plain[name] = sorted
		default:
			plain[name] = v.Value
		}
	}
	return json.Marshal(plain)
}

// ContextBuilder assembles evaluation contexts from organization profiles.
// Building is a pure transformation of the profile; the only side effect is
// the profile fetch itself.
type ContextBuilder struct {
	profiles profile.Source
}

// NewContextBuilder creates a builder over a profile source.
func NewContextBuilder(profiles profile.Source) *ContextBuilder {
	return &ContextBuilder{profiles: profiles}
}

// Build fetches the tenant's profile and threads every attribute into a
// typed fact.
func (b *ContextBuilder) Build(ctx context.Context, tenantID string) (*Context, error) {
	p, err := b.profiles.GetOrganizationProfile(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return FromProfile(p), nil
}

// FromProfile converts an organization profile into an evaluation context.
// Empty strings and zero counts are still set; rules distinguish unset
// facts with exists/not_exists, and a profile that was fetched has answered
// every question.
func FromProfile(p *profile.OrganizationProfile) *Context {
	c := NewContext(p.TenantID)

	c.SetString("sector", p.Sector)
	c.SetString("country", p.Country)
	c.SetString("organizationType", p.OrganizationType)
	c.SetString("organizationSize", p.OrganizationSize)
	c.SetString("complianceMaturity", p.ComplianceMaturity)
	c.SetString("hostingModel", p.HostingModel)
	c.SetString("primaryRegulator", p.PrimaryRegulator)

	c.SetBool("isRegulatedEntity", p.IsRegulatedEntity)
	c.SetBool("isCriticalInfrastructure", p.IsCriticalInfrastructure)
	c.SetBool("processesPersonalData", p.ProcessesPersonalData)
	c.SetBool("processesSensitiveData", p.ProcessesSensitiveData)
	c.SetBool("isPubliclyTraded", p.IsPubliclyTraded)

	c.SetSet("dataTypes", p.DataTypes...)
	c.SetSet("cloudProviders", p.CloudProviders...)
	c.SetSet("vendors", p.Vendors...)

	c.SetNumber("dataSubjectCount", float64(p.DataSubjectCount))
	c.SetNumber("vendorCount", float64(p.VendorCount))
	c.SetNumber("criticalVendorCount", float64(p.CriticalVendorCount))
	c.SetNumber("employeeCount", float64(p.EmployeeCount))
	c.SetNumber("branchCount", float64(p.BranchCount))

	return c
}
