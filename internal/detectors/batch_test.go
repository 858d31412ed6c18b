package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func samplesEverySeconds(n int, step time.Duration) []HistoricalSample {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]HistoricalSample, n)
	for i := 0; i < n; i++ {
		out[i] = HistoricalSample{Timestamp: base.Add(time.Duration(i) * step)}
	}
	return out
}

func TestBatchOperationDetectorFlagsTightBurst(t *testing.T) {
	d := NewBatchOperationDetector()
	in := Input{History: samplesEverySeconds(12, time.Second)}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, 12, patterns[0].Evidence["operation_count"])
}

func TestBatchOperationDetectorIgnoresSpreadOutEvents(t *testing.T) {
	d := NewBatchOperationDetector()
	in := Input{History: samplesEverySeconds(12, time.Hour)}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestBatchOperationDetectorIgnoresBelowMinCount(t *testing.T) {
	d := NewBatchOperationDetector()
	in := Input{History: samplesEverySeconds(3, time.Second)}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}
