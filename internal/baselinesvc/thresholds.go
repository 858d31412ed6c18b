// Package baselinesvc implements the Baseline & Reinforcement Module:
// EMA-adapted BehavioralBaselines and feedback-driven per-organization
// detector threshold tuning (SPEC_FULL §4.7).
package baselinesvc

import "github.com/shadowtrace/discovery-platform/internal/domain/feedback"

// DetectorThresholds holds the per-organization tunable knobs §4.7's
// adjustThresholds adjusts. Values mirror the detector package's own
// defaults so a fresh organization's thresholds match the global default
// until feedback starts tuning them.
type DetectorThresholds struct {
	VelocityZScore    float64
	BatchMinCount     int
	DataVolumeFactor  float64
	TimingVarianceMax float64
}

// Bounds a threshold may never cross regardless of accumulated feedback,
// preventing a string of identical dispositions from tuning a detector into
// uselessness or hair-trigger noise.
const (
	minVelocityZScore = 2.0
	maxVelocityZScore = 6.0

	minBatchMinCount = 5
	maxBatchMinCount = 50

	minDataVolumeFactor = 1.5
	maxDataVolumeFactor = 8.0

	minTimingVarianceMax = 0.02
	maxTimingVarianceMax = 0.20

	// adjustmentStep is the fraction of the current value a single piece
	// of feedback shifts a threshold by, keeping changes gradual enough to
	// avoid oscillation as §4.7 requires.
	adjustmentStep = 0.10
)

// DefaultDetectorThresholds returns the organization-independent defaults,
// matching internal/detectors' own DefaultXxx constants.
func DefaultDetectorThresholds() DetectorThresholds {
	return DetectorThresholds{
		VelocityZScore:    3.0,
		BatchMinCount:     10,
		DataVolumeFactor:  3.0,
		TimingVarianceMax: 0.05,
	}
}

// AdjustForFeedback implements §4.7's "false-positive feedback raises the
// offending detector's threshold within bounded limits; confirmed
// detections lower it". Raising a threshold makes a detector less
// sensitive (harder to trigger); lowering makes it more sensitive.
func AdjustForFeedback(current DetectorThresholds, patternType string, disposition feedback.Disposition) DetectorThresholds {
	var direction float64
	switch disposition {
	case feedback.DispositionFalsePositive:
		direction = 1 // less sensitive
	case feedback.DispositionConfirmedThreat:
		direction = -1 // more sensitive
	default:
		return current // accepted_risk / needs_review don't retune thresholds
	}

	switch patternType {
	case "velocity_anomaly":
		current.VelocityZScore = clampFloat(current.VelocityZScore*(1+direction*adjustmentStep), minVelocityZScore, maxVelocityZScore)
	case "batch_operation":
		shifted := float64(current.BatchMinCount) * (1 + direction*adjustmentStep)
		current.BatchMinCount = int(clampFloat(shifted, minBatchMinCount, maxBatchMinCount))
	case "data_exfiltration_shape":
		current.DataVolumeFactor = clampFloat(current.DataVolumeFactor*(1+direction*adjustmentStep), minDataVolumeFactor, maxDataVolumeFactor)
	case "timing_regularity":
		// Timing variance's threshold is a ceiling the detector fires
		// *below*, so its sensitivity direction is inverted relative to
		// the others: raising the ceiling makes it fire more often.
		current.TimingVarianceMax = clampFloat(current.TimingVarianceMax*(1-direction*adjustmentStep), minTimingVarianceMax, maxTimingVarianceMax)
	}
	return current
}

func clampFloat(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
