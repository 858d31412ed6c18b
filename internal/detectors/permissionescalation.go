package detectors

import (
	"context"

	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

// PermissionEscalationDetector flags monotonic growth in an automation's
// granted scopes relative to its own history (§4.6 #5). A one-off scope
// swap isn't escalation; a strictly growing superset over time is.
type PermissionEscalationDetector struct{}

func NewPermissionEscalationDetector() *PermissionEscalationDetector {
	return &PermissionEscalationDetector{}
}

// Type reports permission_escalation as the detector's nominal category;
// Detect itself may emit scope_creep instead when the growth is gradual
// rather than a single jump (see patternTypeFor).
func (d *PermissionEscalationDetector) Type() detection.PatternType {
	return detection.PatternPermissionEscalation
}

func (d *PermissionEscalationDetector) Detect(ctx context.Context, in Input) ([]detection.DetectionPattern, error) {
	if len(in.History) < 2 {
		return nil, nil
	}

	earliest := in.History[0].Scopes
	added := growthSince(earliest, in.latestScopes())
	if len(added) == 0 {
		return nil, nil
	}

	// Confirm the growth is monotonic, not a one-time swap: every
	// intermediate sample's scope set must be a subset of the next.
	growthSteps := 0
	for i := 1; i < len(in.History); i++ {
		if !containsAll(in.History[i].Scopes, in.History[i-1].Scopes) {
			return nil, nil
		}
		if len(in.History[i].Scopes) > len(in.History[i-1].Scopes) {
			growthSteps++
		}
	}

	severity := detection.SeverityMedium
	if len(added) >= 3 {
		severity = detection.SeverityHigh
	}
	confidence := clamp01(float64(len(added)) / float64(len(earliest)+len(added)))
	pattern := newPattern(in, patternTypeForGrowth(growthSteps), severity, confidence, map[string]any{
		"scopes_added":    added,
		"original_scopes": earliest,
		"current_scopes":  in.latestScopes(),
		"growth_steps":    growthSteps,
	})
	return []detection.DetectionPattern{pattern}, nil
}

// patternTypeForGrowth distinguishes a single abrupt grant (escalation)
// from accumulation across three or more discovery runs (creep).
func patternTypeForGrowth(steps int) detection.PatternType {
	if steps >= 3 {
		return detection.PatternScopeCreep
	}
	return detection.PatternPermissionEscalation
}

func growthSince(original, current []string) []string {
	have := make(map[string]bool, len(original))
	for _, s := range original {
		have[s] = true
	}
	var added []string
	for _, s := range current {
		if !have[s] {
			added = append(added, s)
		}
	}
	return added
}
