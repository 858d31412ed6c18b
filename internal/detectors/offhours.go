package detectors

import (
	"context"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

// offHoursEligibleConfidence is §4.6 #3's "requires baseline confidence
// ≥ 0.7" expressed against the qualitative Confidence band rather than a
// bare float, since BehavioralBaseline reports confidence qualitatively.
var offHoursEligibleConfidence = map[baseline.Confidence]bool{
	baseline.ConfidenceMedium: true,
	baseline.ConfidenceHigh:   true,
}

// offHoursActivityThreshold is the fraction of an hour's histogram weight
// below which that hour is considered outside the organization's learned
// business window.
const offHoursActivityThreshold = 0.02

// OffHoursDetector flags activity in hours the organization's baseline
// shows are normally quiet.
type OffHoursDetector struct{}

func NewOffHoursDetector() *OffHoursDetector { return &OffHoursDetector{} }

func (d *OffHoursDetector) Type() detection.PatternType { return detection.PatternOffHoursActivity }

func (d *OffHoursDetector) Detect(ctx context.Context, in Input) ([]detection.DetectionPattern, error) {
	if in.Baseline == nil || !offHoursEligibleConfidence[in.Baseline.Confidence] {
		return nil, nil
	}

	var flagged []int
	for _, ts := range in.eventTimestamps() {
		hour := ts.UTC().Hour()
		if in.Baseline.ActiveHoursHistogram[hour] < offHoursActivityThreshold {
			flagged = append(flagged, hour)
		}
	}
	if len(flagged) == 0 {
		return nil, nil
	}

	severity := detection.SeverityLow
	if len(flagged) >= 5 {
		severity = detection.SeverityMedium
	}
	confidence := clamp01(float64(len(flagged)) / float64(len(in.History)))
	pattern := newPattern(in, d.Type(), severity, confidence, map[string]any{
		"off_hours_event_count": len(flagged),
		"hours":                 flagged,
	})
	return []detection.DetectionPattern{pattern}, nil
}
