package detectors

import (
	"context"

	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

// DefaultTimingVarianceThreshold and DefaultTimingVarianceMinEvents
// implement §4.6 #4's "coefficient of variation... below a throttled-bot
// threshold (default ≤ 0.05) over ≥ 20 events".
const (
	DefaultTimingVarianceThreshold = 0.05
	DefaultTimingVarianceMinEvents = 20
)

// TimingVarianceDetector flags suspiciously regular inter-arrival times —
// activity paced by a script rather than a human.
type TimingVarianceDetector struct {
	Threshold float64
	MinEvents int
}

func NewTimingVarianceDetector() *TimingVarianceDetector {
	return &TimingVarianceDetector{Threshold: DefaultTimingVarianceThreshold, MinEvents: DefaultTimingVarianceMinEvents}
}

func (d *TimingVarianceDetector) Type() detection.PatternType { return detection.PatternTimingRegularity }

func (d *TimingVarianceDetector) Detect(ctx context.Context, in Input) ([]detection.DetectionPattern, error) {
	minEvents := d.MinEvents
	if minEvents <= 0 {
		minEvents = DefaultTimingVarianceMinEvents
	}
	ts := in.eventTimestamps()
	if len(ts) < minEvents {
		return nil, nil
	}

	intervals := interArrivalSeconds(ts)
	cv := coefficientOfVariation(intervals)
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultTimingVarianceThreshold
	}
	if cv > threshold {
		return nil, nil
	}

	// Lower coefficient of variation (closer to a perfect metronome) is
	// stronger evidence of scripted timing.
	confidence := clamp01(1 - cv/threshold)
	pattern := newPattern(in, d.Type(), detection.SeverityMedium, confidence, map[string]any{
		"coefficient_of_variation": cv,
		"sample_size":              len(intervals),
	})
	return []detection.DetectionPattern{pattern}, nil
}
