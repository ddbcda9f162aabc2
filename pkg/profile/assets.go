package profile

import "sort"

// AssetSummary aggregates characteristics across a tenant's active assets.
// It feeds context enrichment so derivation rules can react to data
// classifications and hosting models observed in the inventory.
type AssetSummary struct {
	TotalAssets        int
	CriticalTier1Count int
	CriticalTier2Count int

	// Data classification flags
	HasPCIData          bool
	HasPHIData          bool
	HasPIIData          bool
	HasRestrictedData   bool
	HasConfidentialData bool

	// Hosting models observed
	HasCloudAssets  bool
	HasOnPremAssets bool
	HasHybridAssets bool

	// Distinct cloud providers and data types across assets
	CloudProviders []string
	DataTypes      []string
}

// Enrich folds asset-derived characteristics into the profile.
// Set-valued attributes are unioned; scalar attributes are only derived
// when the profile leaves them unset, so questionnaire answers win over
// inference.
func (p *OrganizationProfile) Enrich(assets *AssetSummary) {
	if assets == nil {
		return
	}

	dataTypes := toSet(p.DataTypes)
	if assets.HasPCIData {
		dataTypes["PCI"] = struct{}{}
	}
	if assets.HasPHIData {
		dataTypes["PHI"] = struct{}{}
	}
	if assets.HasPIIData {
		dataTypes["PII"] = struct{}{}
	}
	for _, dt := range assets.DataTypes {
		dataTypes[dt] = struct{}{}
	}
	p.DataTypes = fromSet(dataTypes)

	if len(assets.CloudProviders) > 0 {
		providers := toSet(p.CloudProviders)
		for _, cp := range assets.CloudProviders {
			providers[cp] = struct{}{}
		}
		p.CloudProviders = fromSet(providers)
	}

	// Derive hosting model from the inventory when the profile is silent.
	if p.HostingModel == "" {
		switch {
		case assets.HasHybridAssets, assets.HasCloudAssets && assets.HasOnPremAssets:
			p.HostingModel = "Hybrid"
		case assets.HasCloudAssets:
			p.HostingModel = "Cloud"
		case assets.HasOnPremAssets:
			p.HostingModel = "OnPremise"
		}
	}

	if assets.CriticalTier1Count > 0 {
		p.IsCriticalInfrastructure = true
	}
	if assets.HasRestrictedData || assets.HasConfidentialData || assets.HasPCIData || assets.HasPHIData {
		p.ProcessesSensitiveData = true
	}
	if assets.HasPIIData {
		p.ProcessesPersonalData = true
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// fromSet returns members in sorted order so enrichment is deterministic
// (context fingerprints depend on it).
func fromSet(set map[string]struct{}) []string {
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}
