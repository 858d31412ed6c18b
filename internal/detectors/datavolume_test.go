package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
)

func TestDataVolumeDetectorFlagsSpike(t *testing.T) {
	d := NewDataVolumeDetector()
	in := Input{
		Baseline: baselineWithConfidence(0, 0, baseline.ConfidenceMedium),
		History: []HistoricalSample{
			{BytesTransferred: 1000},
			{BytesTransferred: 1000},
			{BytesTransferred: 1000},
			{BytesTransferred: 10000},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, d.Type(), patterns[0].Type)
}

func TestDataVolumeDetectorIgnoresNormalVolume(t *testing.T) {
	d := NewDataVolumeDetector()
	in := Input{
		Baseline: baselineWithConfidence(0, 0, baseline.ConfidenceMedium),
		History: []HistoricalSample{
			{BytesTransferred: 1000},
			{BytesTransferred: 1000},
			{BytesTransferred: 1100},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestDataVolumeDetectorIgnoresInsufficientDataBaseline(t *testing.T) {
	d := NewDataVolumeDetector()
	in := Input{
		Baseline: baselineWithConfidence(0, 0, baseline.ConfidenceInsufficientData),
		History: []HistoricalSample{
			{BytesTransferred: 1000},
			{BytesTransferred: 90000},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}
