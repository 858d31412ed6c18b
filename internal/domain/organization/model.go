// Package organization models the tenant at the root of every other entity.
package organization

import "time"

// Tier is a billing/feature tier.
type Tier string

const (
	TierFree       Tier = "free"
	TierTeam       Tier = "team"
	TierEnterprise Tier = "enterprise"
)

// RiskThresholds defines the score cutoffs between risk levels, overridable
// per organization per SPEC_FULL §6's tenant-settings override subset.
type RiskThresholds struct {
	LowMax      int `json:"lowMax"`
	MediumMax   int `json:"mediumMax"`
	HighMax     int `json:"highMax"`
}

// DefaultRiskThresholds mirrors the qualitative bands implied by §3's
// risk_level enum.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{LowMax: 30, MediumMax: 60, HighMax: 85}
}

// DiscoverySettings controls how often and how broadly discovery runs for
// this organization.
type DiscoverySettings struct {
	FrequencyHours     uint     `json:"frequencyHours"`
	EnabledPlatforms   []string `json:"enabledPlatforms"`
	MaxConcurrentRuns  uint     `json:"maxConcurrentRuns"`
}

// Settings is the organization's tenant-scoped configuration override.
type Settings struct {
	RiskThresholds  RiskThresholds    `json:"riskThresholds"`
	RetentionDays   int               `json:"retentionDays"`
	Discovery       DiscoverySettings `json:"discovery"`
}

// DefaultSettings returns the process-wide defaults from SPEC_FULL §6,
// overridable per organization.
func DefaultSettings() Settings {
	return Settings{
		RiskThresholds: DefaultRiskThresholds(),
		RetentionDays:  365,
		Discovery: DiscoverySettings{
			FrequencyHours:    24,
			EnabledPlatforms:  []string{"slack", "google_workspace", "microsoft365"},
			MaxConcurrentRuns: 4,
		},
	}
}

// Organization is the tenant every other entity is scoped to (I1).
type Organization struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Tier      Tier      `json:"tier" db:"tier"`
	Settings  Settings  `json:"settings" db:"settings"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
