package detectors

import (
	"context"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

// DefaultVelocityZScore is the default trigger threshold (§4.6 #1: "≥
// configured z-score, default 3σ").
const DefaultVelocityZScore = 3.0

// VelocityDetector flags an automation whose latest history sample's event
// count exceeds its learned mean events per hour by a configured number of
// standard deviations.
type VelocityDetector struct {
	ZScoreThreshold float64
}

func NewVelocityDetector() *VelocityDetector {
	return &VelocityDetector{ZScoreThreshold: DefaultVelocityZScore}
}

func (d *VelocityDetector) Type() detection.PatternType { return detection.PatternVelocityAnomaly }

func (d *VelocityDetector) Detect(ctx context.Context, in Input) ([]detection.DetectionPattern, error) {
	if in.Baseline == nil || in.Baseline.Confidence == baseline.ConfidenceInsufficientData {
		return nil, nil
	}
	if len(in.History) == 0 || in.Baseline.StdDevEventsPerHour == 0 {
		return nil, nil
	}

	latest := in.History[len(in.History)-1]
	currentRate := float64(latest.EventCount)
	z := (currentRate - in.Baseline.MeanEventsPerHour) / in.Baseline.StdDevEventsPerHour
	threshold := d.ZScoreThreshold
	if threshold <= 0 {
		threshold = DefaultVelocityZScore
	}
	if z < threshold {
		return nil, nil
	}

	confidence := clamp01(z / (threshold * 2))
	pattern := newPattern(in, d.Type(), severityForZScore(z), confidence, map[string]any{
		"z_score":              z,
		"current_events_per_h": currentRate,
		"baseline_mean":        in.Baseline.MeanEventsPerHour,
		"baseline_stddev":      in.Baseline.StdDevEventsPerHour,
	})
	return []detection.DetectionPattern{pattern}, nil
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
