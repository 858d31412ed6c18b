// Package connectors implements the Connector Adapter interface and the
// platform-specific adapters that back it (SPEC_FULL §4.2, §4.2.bis).
package connectors

import (
	"context"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/credential"
)

// Capability is one operation an adapter may support; not every platform
// supports every capability.
type Capability string

const (
	CapabilityDiscoverAutomations Capability = "discover_automations"
	CapabilityListUsers           Capability = "list_users"
	CapabilityFetchAuditEvents    Capability = "fetch_audit_events"
	CapabilityValidateToken       Capability = "validate_token"
)

// OAuthCredentials is the plaintext token material an adapter hands back
// from ExchangeCode/Refresh; callers must seal it via the vault immediately
// and never log it.
type OAuthCredentials struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    time.Time
}

// UserInfo is the minimal identity an adapter resolves during the OAuth
// callback, used for ExternalAccountID and DisplayName.
type UserInfo struct {
	ExternalAccountID string
	DisplayName       string
	Email             string
}

// EventKind distinguishes the normalized discovery events an adapter emits.
type EventKind string

const (
	EventKindAutomation EventKind = "automation"
	EventKindCursor     EventKind = "cursor"
)

// DiscoveryEvent is one normalized record produced while streaming a
// discovery run (§4.2's discover(conn, cursor?) contract). The stream is
// lazy, finite, and non-restartable; Cursor is set on EventKindCursor
// events only, letting the engine persist a resume point when the adapter
// supports stable pagination.
type DiscoveryEvent struct {
	Kind           EventKind
	ExternalID     string
	Name           string
	AutomationKind string
	Permissions    []string
	Metadata       map[string]any
	VendorName     string
	Cursor         string
	Err            error
}

// RateBudget reports an adapter's remaining call budget so the engine can
// treat it as a token bucket with backoff on exhaustion (§4.2's rate-limit
// discipline).
type RateBudget struct {
	Remaining int
	ResetAt   time.Time
}

// Adapter is the contract every platform connector implements.
type Adapter interface {
	Platform() connection.Platform
	Capabilities() []Capability

	BuildAuthorizationURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (OAuthCredentials, UserInfo, error)
	Refresh(ctx context.Context, creds credential.OAuthTokenPayload) (OAuthCredentials, error)
	Revoke(ctx context.Context, creds credential.OAuthTokenPayload) error
	ValidateToken(ctx context.Context, creds credential.OAuthTokenPayload) error

	// Discover streams DiscoveryEvents for the given connection, resuming
	// from cursor when non-empty and the platform's pagination is stable.
	Discover(ctx context.Context, creds credential.OAuthTokenPayload, cursor string) (<-chan DiscoveryEvent, error)

	Budget() RateBudget
}
