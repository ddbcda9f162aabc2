package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// profileDoc is the YAML shape of one organization profile.
type profileDoc struct {
	TenantID           string `yaml:"tenantId"`
	Sector             string `yaml:"sector"`
	Country            string `yaml:"country"`
	OrganizationType   string `yaml:"organizationType"`
	OrganizationSize   string `yaml:"organizationSize"`
	ComplianceMaturity string `yaml:"complianceMaturity"`
	HostingModel       string `yaml:"hostingModel"`

	IsRegulatedEntity        bool   `yaml:"isRegulatedEntity"`
	IsCriticalInfrastructure bool   `yaml:"isCriticalInfrastructure"`
	PrimaryRegulator         string `yaml:"primaryRegulator"`

	DataTypes              []string `yaml:"dataTypes"`
	ProcessesPersonalData  bool     `yaml:"processesPersonalData"`
	ProcessesSensitiveData bool     `yaml:"processesSensitiveData"`
	CloudProviders         []string `yaml:"cloudProviders"`
	DataSubjectCount       int      `yaml:"dataSubjectCount"`

	Vendors             []string `yaml:"vendors"`
	VendorCount         int      `yaml:"vendorCount"`
	CriticalVendorCount int      `yaml:"criticalVendorCount"`
	IsPubliclyTraded    bool     `yaml:"isPubliclyTraded"`
	EmployeeCount       int      `yaml:"employeeCount"`
	BranchCount         int      `yaml:"branchCount"`
}

type profileFileDoc struct {
	Profiles []profileDoc `yaml:"profiles"`
}

// LoadFile reads organization profiles from a YAML file into a static
// source. Each profile needs a tenant id; duplicate tenant ids are an
// error.
func LoadFile(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}

	var doc profileFileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}
	if len(doc.Profiles) == 0 {
		return nil, fmt.Errorf("profiles %s: no profiles defined", path)
	}

	source := NewStaticSource()
	seen := make(map[string]bool, len(doc.Profiles))
	for i, pd := range doc.Profiles {
		if pd.TenantID == "" {
			return nil, fmt.Errorf("profiles %s: profile %d has no tenantId", path, i)
		}
		if seen[pd.TenantID] {
			return nil, fmt.Errorf("profiles %s: duplicate tenantId %q", path, pd.TenantID)
		}
		seen[pd.TenantID] = true
		source.Put(fromDoc(pd))
	}
	return source, nil
}

func fromDoc(pd profileDoc) *OrganizationProfile {
	return &OrganizationProfile{
		TenantID:           pd.TenantID,
		Sector:             pd.Sector,
		Country:            pd.Country,
		OrganizationType:   pd.OrganizationType,
		OrganizationSize:   pd.OrganizationSize,
		ComplianceMaturity: pd.ComplianceMaturity,
		HostingModel:       pd.HostingModel,

		IsRegulatedEntity:        pd.IsRegulatedEntity,
		IsCriticalInfrastructure: pd.IsCriticalInfrastructure,
		PrimaryRegulator:         pd.PrimaryRegulator,

		DataTypes:              pd.DataTypes,
		ProcessesPersonalData:  pd.ProcessesPersonalData,
		ProcessesSensitiveData: pd.ProcessesSensitiveData,
		CloudProviders:         pd.CloudProviders,
		DataSubjectCount:       pd.DataSubjectCount,

		Vendors:             pd.Vendors,
		VendorCount:         pd.VendorCount,
		CriticalVendorCount: pd.CriticalVendorCount,
		IsPubliclyTraded:    pd.IsPubliclyTraded,
		EmployeeCount:       pd.EmployeeCount,
		BranchCount:         pd.BranchCount,
	}
}
