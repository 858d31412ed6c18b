package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
)

func baselineWithConfidence(mean, stddev float64, confidence baseline.Confidence) *baseline.BehavioralBaseline {
	return &baseline.BehavioralBaseline{
		MeanEventsPerHour:   mean,
		StdDevEventsPerHour: stddev,
		Confidence:          confidence,
	}
}

func TestVelocityDetectorFlagsHighZScore(t *testing.T) {
	d := NewVelocityDetector()
	in := Input{
		Automation: discovery.DiscoveredAutomation{ID: "auto-1"},
		Baseline:   baselineWithConfidence(10, 2, baseline.ConfidenceHigh),
		History:    []HistoricalSample{{EventCount: 40}},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, d.Type(), patterns[0].Type)
	require.Greater(t, patterns[0].Confidence, 0.0)
}

func TestVelocityDetectorIgnoresInsufficientData(t *testing.T) {
	d := NewVelocityDetector()
	in := Input{
		Baseline: baselineWithConfidence(10, 2, baseline.ConfidenceInsufficientData),
		History:  []HistoricalSample{{EventCount: 1000}},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestVelocityDetectorIgnoresBelowThreshold(t *testing.T) {
	d := NewVelocityDetector()
	in := Input{
		Baseline: baselineWithConfidence(10, 2, baseline.ConfidenceHigh),
		History:  []HistoricalSample{{EventCount: 11}},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestVelocityDetectorNoHistory(t *testing.T) {
	d := NewVelocityDetector()
	in := Input{Baseline: baselineWithConfidence(10, 2, baseline.ConfidenceHigh)}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}
