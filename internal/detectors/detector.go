package detectors

import (
	"context"

	"github.com/google/uuid"

	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

// Detector is one pattern detector: a pure function over an automation's
// evidence window. Implementations must not mutate Input (§4.6).
type Detector interface {
	Type() detection.PatternType
	Detect(ctx context.Context, in Input) ([]detection.DetectionPattern, error)
}

func newPattern(in Input, patternType detection.PatternType, severity detection.Severity, confidence float64, evidence map[string]any) detection.DetectionPattern {
	return detection.DetectionPattern{
		ID:             uuid.NewString(),
		OrganizationID: in.Organization.ID,
		AutomationID:   in.Automation.ID,
		Type:           patternType,
		Severity:       severity,
		Confidence:     confidence,
		Evidence:       evidence,
	}
}

// severityForZScore maps a z-score magnitude onto a severity band, used by
// the velocity detector.
func severityForZScore(z float64) detection.Severity {
	switch {
	case z >= 6:
		return detection.SeverityCritical
	case z >= 4.5:
		return detection.SeverityHigh
	case z >= 3:
		return detection.SeverityMedium
	default:
		return detection.SeverityLow
	}
}
