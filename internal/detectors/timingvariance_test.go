package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimingVarianceDetectorFlagsMetronomicIntervals(t *testing.T) {
	d := NewTimingVarianceDetector()
	in := Input{History: samplesEverySeconds(25, 30*time.Second)}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.InDelta(t, 0, patterns[0].Evidence["coefficient_of_variation"], 1e-9)
}

func TestTimingVarianceDetectorIgnoresTooFewEvents(t *testing.T) {
	d := NewTimingVarianceDetector()
	in := Input{History: samplesEverySeconds(5, 30*time.Second)}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestTimingVarianceDetectorIgnoresHighVariance(t *testing.T) {
	d := NewTimingVarianceDetector()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	history := make([]HistoricalSample, 0, 25)
	step := time.Second
	for i := 0; i < 25; i++ {
		history = append(history, HistoricalSample{Timestamp: base})
		if i%2 == 0 {
			step = 5 * time.Second
		} else {
			step = 500 * time.Second
		}
		base = base.Add(step)
	}
	in := Input{History: history}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}
