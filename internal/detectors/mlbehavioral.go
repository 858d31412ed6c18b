package detectors

import (
	"context"
	"math"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

// MLBehavioralDetector expresses an automation's deviation from its
// per-organization baseline as a single normalized anomaly score in [0,1]
// (§4.6 #8), combining the event-rate and active-hours-histogram
// components the baseline already tracks.
type MLBehavioralDetector struct{}

func NewMLBehavioralDetector() *MLBehavioralDetector { return &MLBehavioralDetector{} }

func (d *MLBehavioralDetector) Type() detection.PatternType { return detection.PatternDormantReactivation }

func (d *MLBehavioralDetector) Detect(ctx context.Context, in Input) ([]detection.DetectionPattern, error) {
	if in.Baseline == nil || in.Baseline.Confidence == baseline.ConfidenceInsufficientData {
		return nil, nil
	}
	if len(in.History) == 0 {
		return nil, nil
	}

	rateScore := rateDeviationScore(in)
	histogramScore := histogramDeviationScore(in)
	anomaly := clamp01(0.6*rateScore + 0.4*histogramScore)

	// A dormant-then-reactivated automation is the sharpest form of this
	// deviation: near-zero baseline activity followed by a sudden sample.
	if anomaly < 0.5 {
		return nil, nil
	}

	severity := detection.SeverityMedium
	if anomaly >= 0.8 {
		severity = detection.SeverityHigh
	}
	pattern := newPattern(in, d.Type(), severity, anomaly, map[string]any{
		"anomaly_score":    anomaly,
		"rate_component":   rateScore,
		"histogram_component": histogramScore,
	})
	return []detection.DetectionPattern{pattern}, nil
}

func rateDeviationScore(in Input) float64 {
	if in.Baseline.StdDevEventsPerHour == 0 {
		return 0
	}
	latest := float64(in.History[len(in.History)-1].EventCount)
	z := math.Abs(latest-in.Baseline.MeanEventsPerHour) / in.Baseline.StdDevEventsPerHour
	return clamp01(z / 6)
}

func histogramDeviationScore(in Input) float64 {
	hist := in.Baseline.ActiveHoursHistogram
	var observed [24]float64
	for _, ts := range in.eventTimestamps() {
		observed[ts.UTC().Hour()]++
	}
	total := 0.0
	for _, v := range observed {
		total += v
	}
	if total == 0 {
		return 0
	}
	var distance float64
	for hour, count := range observed {
		expected := hist[hour] * total
		diff := count - expected
		distance += diff * diff
	}
	// Normalize by the worst case (all mass on the single least-expected hour).
	return clamp01(math.Sqrt(distance) / total)
}
