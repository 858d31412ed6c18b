package correlator

import (
	"strings"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/correlation"
)

// DefaultCorrelationWindow is CORRELATION_WINDOW's default (DESIGN.md Open
// Question #2): the maximum LastSeenAt gap between two automations still
// eligible to be linked.
const DefaultCorrelationWindow = 15 * time.Minute

// similarTimingSlack bounds how close two automations' LastSeenAt must be
// to count as similar_timing specifically (tighter than the outer
// correlation window, which only bounds chain membership broadly).
const similarTimingSlack = 2 * time.Minute

// link evaluates every correlation rule for a pair of automations and
// returns the links that matched. A pair may satisfy more than one rule
// (e.g. same AI provider and similar timing at once), each contributing
// its own ChainLink.
func link(a, b AutomationView, window time.Duration) []correlation.ChainLink {
	if window <= 0 {
		window = DefaultCorrelationWindow
	}
	gap := a.LastSeenAt.Sub(b.LastSeenAt)
	if gap < 0 {
		gap = -gap
	}
	if gap > window {
		return nil
	}

	var links []correlation.ChainLink
	if confidence, ok := sameAIProvider(a, b); ok {
		links = append(links, chainLink(a, b, correlation.LinkSameAIProvider, confidence))
	}
	if confidence, ok := similarTiming(a, b); ok {
		links = append(links, chainLink(a, b, correlation.LinkSimilarTiming, confidence))
	}
	if confidence, ok := dataFlowChain(a, b); ok {
		links = append(links, chainLink(a, b, correlation.LinkDataFlowChain, confidence))
	}
	if confidence, ok := sharedCredentials(a, b); ok {
		links = append(links, chainLink(a, b, correlation.LinkSharedCredentials, confidence))
	}
	if confidence, ok := similarNaming(a, b); ok {
		links = append(links, chainLink(a, b, correlation.LinkSimilarNaming, confidence))
	}
	return links
}

func chainLink(a, b AutomationView, t correlation.LinkType, confidence float64) correlation.ChainLink {
	return correlation.ChainLink{FromAutomationID: a.ID, ToAutomationID: b.ID, Type: t, Confidence: confidence}
}

func sameAIProvider(a, b AutomationView) (float64, bool) {
	shared := 0
	for _, pa := range a.AIProviders {
		for _, pb := range b.AIProviders {
			if pa == pb {
				shared++
			}
		}
	}
	if shared == 0 {
		return 0, false
	}
	return clamp01(0.5 + 0.1*float64(shared)), true
}

func similarTiming(a, b AutomationView) (float64, bool) {
	gap := a.LastSeenAt.Sub(b.LastSeenAt)
	if gap < 0 {
		gap = -gap
	}
	if gap > similarTimingSlack {
		return 0, false
	}
	return clamp01(1 - gap.Seconds()/similarTimingSlack.Seconds()), true
}

// dataFlowChain approximates a handoff between platforms without direct
// network-flow telemetry: two automations from the same vendor group
// (§4.5's vendor_name + platform pairing) operating on different platforms
// is the observable proxy for "the same vendor's integration reappearing
// downstream".
func dataFlowChain(a, b AutomationView) (float64, bool) {
	if a.Platform == b.Platform {
		return 0, false
	}
	if a.VendorName == "" || b.VendorName == "" {
		return 0, false
	}
	if !strings.EqualFold(a.VendorName, b.VendorName) {
		return 0, false
	}
	return 0.6, true
}

func sharedCredentials(a, b AutomationView) (float64, bool) {
	if a.CredentialFingerprint == "" || b.CredentialFingerprint == "" {
		return 0, false
	}
	if a.CredentialFingerprint != b.CredentialFingerprint {
		return 0, false
	}
	return 0.9, true
}

func similarNaming(a, b AutomationView) (float64, bool) {
	if a.Name == "" || b.Name == "" {
		return 0, false
	}
	similarity := tokenOverlap(a.Name, b.Name)
	if similarity < 0.5 {
		return 0, false
	}
	return similarity, true
}

func tokenOverlap(x, y string) float64 {
	tokensX := strings.Fields(strings.ToLower(x))
	tokensY := strings.Fields(strings.ToLower(y))
	if len(tokensX) == 0 || len(tokensY) == 0 {
		return 0
	}
	setY := make(map[string]bool, len(tokensY))
	for _, t := range tokensY {
		setY[t] = true
	}
	shared := 0
	for _, t := range tokensX {
		if setY[t] {
			shared++
		}
	}
	denominator := len(tokensX)
	if len(tokensY) > denominator {
		denominator = len(tokensY)
	}
	return float64(shared) / float64(denominator)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
