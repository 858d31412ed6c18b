package detectors

import (
	"context"
	"fmt"

	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

// CrossActorDetector looks for automations that act on coordinated
// schedules — the same credential fingerprint reused across automations,
// or activity timed in lockstep with a sibling automation's own history —
// and feeds the correlator (§4.6 #11).
type CrossActorDetector struct{}

func NewCrossActorDetector() *CrossActorDetector { return &CrossActorDetector{} }

// Type reports cross_platform_chain, the pattern this detector's timing
// evidence feeds into; a shared-credential finding is emitted as
// credential_sharing instead (see Detect).
func (d *CrossActorDetector) Type() detection.PatternType { return detection.PatternCrossPlatformChain }

func (d *CrossActorDetector) Detect(ctx context.Context, in Input) ([]detection.DetectionPattern, error) {
	var patterns []detection.DetectionPattern

	if fingerprint, ok := credentialFingerprint(in); ok {
		patterns = append(patterns, newPattern(in, detection.PatternCredentialSharing, detection.SeverityMedium, 0.6, map[string]any{
			"credential_fingerprint": fingerprint,
			"description":            "automation shares a credential fingerprint observed on another automation in this organization",
		}))
	}

	if coordinated, ok := coordinatedScheduleEvidence(in); ok {
		patterns = append(patterns, newPattern(in, detection.PatternCrossPlatformChain, detection.SeverityMedium, 0.5, coordinated))
	}

	return patterns, nil
}

// credentialFingerprint reads a connector-populated metadata field that
// identifies the credential an automation runs under (e.g. a hashed service
// account id); the correlator's own shared_credentials grouping performs
// the actual cross-automation comparison, this detector only surfaces the
// fingerprint as evidence when present.
func credentialFingerprint(in Input) (string, bool) {
	v, ok := in.Automation.Metadata["credential_fingerprint"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// coordinatedScheduleEvidence flags an automation whose inter-arrival
// intervals are nearly constant (low coefficient of variation, whatever the
// interval length) — consistent with several
// automations on different platforms being driven by one external
// scheduler — without asserting which other automations it's coordinated
// with (that grouping is the correlator's job, §4.8).
func coordinatedScheduleEvidence(in Input) (map[string]any, bool) {
	ts := in.eventTimestamps()
	if len(ts) < 6 {
		return nil, false
	}
	intervals := interArrivalSeconds(ts)
	cv := coefficientOfVariation(intervals)
	if cv > 0.1 {
		return nil, false
	}
	avgInterval := mean(intervals)
	return map[string]any{
		"average_interval_seconds": avgInterval,
		"coefficient_of_variation": cv,
		"description":              fmt.Sprintf("fires every ~%.0fs with regularity consistent with shared external scheduling", avgInterval),
	}, true
}
