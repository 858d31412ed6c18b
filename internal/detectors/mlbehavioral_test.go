package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
)

func TestMLBehavioralDetectorFlagsLargeDeviation(t *testing.T) {
	d := NewMLBehavioralDetector()
	bl := &baseline.BehavioralBaseline{
		MeanEventsPerHour:   5,
		StdDevEventsPerHour: 1,
		Confidence:          baseline.ConfidenceHigh,
	}
	in := Input{
		Baseline: bl,
		History: []HistoricalSample{
			{Timestamp: time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC), EventCount: 80},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
}

func TestMLBehavioralDetectorIgnoresSmallDeviation(t *testing.T) {
	d := NewMLBehavioralDetector()
	bl := &baseline.BehavioralBaseline{
		MeanEventsPerHour:   5,
		StdDevEventsPerHour: 1,
		Confidence:          baseline.ConfidenceHigh,
	}
	in := Input{
		Baseline: bl,
		History: []HistoricalSample{
			{Timestamp: time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC), EventCount: 5},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestMLBehavioralDetectorIgnoresInsufficientDataBaseline(t *testing.T) {
	d := NewMLBehavioralDetector()
	bl := &baseline.BehavioralBaseline{Confidence: baseline.ConfidenceInsufficientData}
	in := Input{
		Baseline: bl,
		History:  []HistoricalSample{{EventCount: 1000}},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}
