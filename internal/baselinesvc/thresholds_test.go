package baselinesvc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/feedback"
)

func TestAdjustForFeedbackFalsePositiveRaisesVelocityThreshold(t *testing.T) {
	current := DefaultDetectorThresholds()
	updated := AdjustForFeedback(current, "velocity_anomaly", feedback.DispositionFalsePositive)
	require.Greater(t, updated.VelocityZScore, current.VelocityZScore)
}

func TestAdjustForFeedbackConfirmedThreatLowersVelocityThreshold(t *testing.T) {
	current := DefaultDetectorThresholds()
	updated := AdjustForFeedback(current, "velocity_anomaly", feedback.DispositionConfirmedThreat)
	require.Less(t, updated.VelocityZScore, current.VelocityZScore)
}

func TestAdjustForFeedbackTimingRegularityDirectionIsInverted(t *testing.T) {
	current := DefaultDetectorThresholds()
	// False positive for a timing detector means "too sensitive", so the
	// ceiling it fires below falls, not rises, unlike the other threshold
	// types.
	updated := AdjustForFeedback(current, "timing_regularity", feedback.DispositionFalsePositive)
	require.Less(t, updated.TimingVarianceMax, current.TimingVarianceMax)
}

func TestAdjustForFeedbackIgnoresNonRetuningDispositions(t *testing.T) {
	current := DefaultDetectorThresholds()
	updated := AdjustForFeedback(current, "velocity_anomaly", feedback.DispositionAcceptedRisk)
	require.Equal(t, current, updated)

	updated = AdjustForFeedback(current, "velocity_anomaly", feedback.DispositionNeedsReview)
	require.Equal(t, current, updated)
}

func TestAdjustForFeedbackClampsAtBounds(t *testing.T) {
	current := DetectorThresholds{VelocityZScore: maxVelocityZScore}
	updated := AdjustForFeedback(current, "velocity_anomaly", feedback.DispositionFalsePositive)
	require.Equal(t, maxVelocityZScore, updated.VelocityZScore)

	current = DetectorThresholds{VelocityZScore: minVelocityZScore}
	updated = AdjustForFeedback(current, "velocity_anomaly", feedback.DispositionConfirmedThreat)
	require.Equal(t, minVelocityZScore, updated.VelocityZScore)
}

func TestAdjustForFeedbackUnknownPatternTypeIsNoOp(t *testing.T) {
	current := DefaultDetectorThresholds()
	updated := AdjustForFeedback(current, "unknown_pattern", feedback.DispositionFalsePositive)
	require.Equal(t, current, updated)
}
