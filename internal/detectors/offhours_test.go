package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
)

func TestOffHoursDetectorFlagsQuietHourActivity(t *testing.T) {
	d := NewOffHoursDetector()
	bl := &baseline.BehavioralBaseline{Confidence: baseline.ConfidenceHigh}
	bl.ActiveHoursHistogram[9] = 0.2 // business hours, well above threshold
	// hour 3 is left at zero, i.e. below offHoursActivityThreshold

	in := Input{
		Baseline: bl,
		History: []HistoricalSample{
			{Timestamp: time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, 1, patterns[0].Evidence["off_hours_event_count"])
}

func TestOffHoursDetectorIgnoresLowConfidenceBaseline(t *testing.T) {
	d := NewOffHoursDetector()
	bl := &baseline.BehavioralBaseline{Confidence: baseline.ConfidenceLow}

	in := Input{
		Baseline: bl,
		History: []HistoricalSample{
			{Timestamp: time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestOffHoursDetectorIgnoresActivityInBusinessHours(t *testing.T) {
	d := NewOffHoursDetector()
	bl := &baseline.BehavioralBaseline{Confidence: baseline.ConfidenceHigh}
	bl.ActiveHoursHistogram[9] = 0.2

	in := Input{
		Baseline: bl,
		History: []HistoricalSample{
			{Timestamp: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}
