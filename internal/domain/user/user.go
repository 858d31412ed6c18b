// Package user models the platform's authenticated principals: accounts,
// sessions, and API keys, plus the role-derived subscription profile the
// Real-Time Hub grants a connection (SPEC_FULL §4.9, §4.11).
package user

import "time"

// Role is one of the four account roles SPEC_FULL's User entity names.
type Role string

const (
	RoleCISO            Role = "ciso"
	RoleSecurityAnalyst Role = "security_analyst"
	RoleAdmin           Role = "admin"
	RoleViewer          Role = "viewer"
)

// User is an authenticated account scoped to one organization.
type User struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Session is a minted bearer-token session, stored by its token's hash so
// the raw token never touches persistence.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	TokenHash    string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// APIKey is a long-lived credential issued to a user for programmatic
// access, stored by its hash per the same rule as Session's TokenHash.
type APIKey struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	UserID         string     `json:"userId"`
	KeyHash        string     `json:"-"`
	Label          string     `json:"label"`
	LastUsedAt     *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// SubscriptionProfile is the set of Real-Time Hub topics a role may
// subscribe to (§4.9's role/topic matrix).
type SubscriptionProfile struct {
	AnalysisProgress   bool `json:"analysisProgress"`
	ChainDetection     bool `json:"chainDetection"`
	RiskAlerts         bool `json:"riskAlerts"`
	ExecutiveUpdates   bool `json:"executiveUpdates"`
	PerformanceMetrics bool `json:"performanceMetrics"`
}

// ProfileForRole returns role's fixed subscription profile. An unrecognized
// role gets no topics, matching the hub's default-deny posture.
func ProfileForRole(role Role) SubscriptionProfile {
	switch role {
	case RoleCISO:
		return SubscriptionProfile{ChainDetection: true, RiskAlerts: true, ExecutiveUpdates: true}
	case RoleSecurityAnalyst:
		return SubscriptionProfile{AnalysisProgress: true, ChainDetection: true, RiskAlerts: true, PerformanceMetrics: true}
	case RoleAdmin:
		return SubscriptionProfile{AnalysisProgress: true, ChainDetection: true, RiskAlerts: true, ExecutiveUpdates: true, PerformanceMetrics: true}
	case RoleViewer:
		return SubscriptionProfile{ChainDetection: true, RiskAlerts: true}
	default:
		return SubscriptionProfile{}
	}
}
