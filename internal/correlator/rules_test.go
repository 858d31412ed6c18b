package correlator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/connectors"
	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/correlation"
)

func TestLinkOutsideWindowProducesNoLinks(t *testing.T) {
	now := time.Now()
	a := AutomationView{ID: "a", LastSeenAt: now}
	b := AutomationView{ID: "b", LastSeenAt: now.Add(time.Hour)}

	links := link(a, b, DefaultCorrelationWindow)
	require.Empty(t, links)
}

func TestLinkSameAIProvider(t *testing.T) {
	now := time.Now()
	a := AutomationView{ID: "a", LastSeenAt: now, AIProviders: []connectors.AIProvider{connectors.AIProviderOpenAI}}
	b := AutomationView{ID: "b", LastSeenAt: now, AIProviders: []connectors.AIProvider{connectors.AIProviderOpenAI}}

	links := link(a, b, DefaultCorrelationWindow)
	require.Contains(t, linkTypes(links), correlation.LinkSameAIProvider)
}

func TestLinkSharedCredentials(t *testing.T) {
	now := time.Now()
	a := AutomationView{ID: "a", LastSeenAt: now, CredentialFingerprint: "svc-1"}
	b := AutomationView{ID: "b", LastSeenAt: now, CredentialFingerprint: "svc-1"}

	links := link(a, b, DefaultCorrelationWindow)
	require.Contains(t, linkTypes(links), correlation.LinkSharedCredentials)
}

func TestLinkDataFlowChainRequiresDifferentPlatformsAndSameVendor(t *testing.T) {
	now := time.Now()
	a := AutomationView{ID: "a", LastSeenAt: now, Platform: connection.PlatformSlack, VendorName: "Acme"}
	b := AutomationView{ID: "b", LastSeenAt: now, Platform: connection.PlatformGoogleWorkspace, VendorName: "acme"}

	links := link(a, b, DefaultCorrelationWindow)
	require.Contains(t, linkTypes(links), correlation.LinkDataFlowChain)
}

func TestLinkDataFlowChainIgnoresSamePlatform(t *testing.T) {
	now := time.Now()
	a := AutomationView{ID: "a", LastSeenAt: now, Platform: connection.PlatformSlack, VendorName: "Acme"}
	b := AutomationView{ID: "b", LastSeenAt: now, Platform: connection.PlatformSlack, VendorName: "Acme"}

	links := link(a, b, DefaultCorrelationWindow)
	require.NotContains(t, linkTypes(links), correlation.LinkDataFlowChain)
}

func TestLinkSimilarNaming(t *testing.T) {
	now := time.Now()
	a := AutomationView{ID: "a", LastSeenAt: now, Name: "daily backup sync"}
	b := AutomationView{ID: "b", LastSeenAt: now, Name: "daily backup export"}

	links := link(a, b, DefaultCorrelationWindow)
	require.Contains(t, linkTypes(links), correlation.LinkSimilarNaming)
}

func TestLinkCanProduceMultipleLinkTypes(t *testing.T) {
	now := time.Now()
	a := AutomationView{ID: "a", LastSeenAt: now, CredentialFingerprint: "shared", AIProviders: []connectors.AIProvider{connectors.AIProviderAnthropic}}
	b := AutomationView{ID: "b", LastSeenAt: now, CredentialFingerprint: "shared", AIProviders: []connectors.AIProvider{connectors.AIProviderAnthropic}}

	links := link(a, b, DefaultCorrelationWindow)
	require.GreaterOrEqual(t, len(links), 2)
}

func linkTypes(links []correlation.ChainLink) []correlation.LinkType {
	out := make([]correlation.LinkType, 0, len(links))
	for _, l := range links {
		out = append(out, l.Type)
	}
	return out
}
