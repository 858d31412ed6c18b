// Package correlator implements the Cross-Platform Correlator: grouping
// recently-active automations across platforms into CorrelationChains
// (SPEC_FULL §4.8).
package correlator

import (
	"time"

	"github.com/shadowtrace/discovery-platform/internal/connectors"
	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
)

// AutomationView is the slice of a DiscoveredAutomation the correlator
// needs, assembled by the Store from whichever connection/platform/
// metadata fields are relevant.
type AutomationView struct {
	ID                   string
	Platform             connection.Platform
	Name                 string
	VendorName           string
	CredentialFingerprint string
	LastSeenAt           time.Time
	AIProviders          []connectors.AIProvider
}
