package detectors

import (
	"context"
	"fmt"

	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

// DefaultBatchCount and DefaultBatchWindowSeconds implement §4.6 #2's "≥ K
// near-identical operations within ΔT".
const (
	DefaultBatchCount         = 10
	DefaultBatchWindowSeconds = 60.0
)

// BatchOperationDetector flags bursts of same-shaped operations packed into
// a short window, a shape consistent with scripted bulk automation.
type BatchOperationDetector struct {
	MinCount      int
	WindowSeconds float64
}

func NewBatchOperationDetector() *BatchOperationDetector {
	return &BatchOperationDetector{MinCount: DefaultBatchCount, WindowSeconds: DefaultBatchWindowSeconds}
}

func (d *BatchOperationDetector) Type() detection.PatternType { return detection.PatternBatchOperation }

func (d *BatchOperationDetector) Detect(ctx context.Context, in Input) ([]detection.DetectionPattern, error) {
	minCount := d.MinCount
	if minCount <= 0 {
		minCount = DefaultBatchCount
	}
	window := d.WindowSeconds
	if window <= 0 {
		window = DefaultBatchWindowSeconds
	}
	ts := in.eventTimestamps()
	if len(ts) < minCount {
		return nil, nil
	}

	// Slide a fixed window over the sorted timestamps; count the largest
	// run of events falling within `window` seconds of each other.
	best := 1
	left := 0
	for right := 1; right < len(ts); right++ {
		for ts[right].Sub(ts[left]).Seconds() > window {
			left++
		}
		if size := right - left + 1; size > best {
			best = size
		}
	}
	if best < minCount {
		return nil, nil
	}

	severity := detection.SeverityMedium
	if best >= minCount*3 {
		severity = detection.SeverityHigh
	}
	confidence := clamp01(float64(best) / float64(minCount*2))
	pattern := newPattern(in, d.Type(), severity, confidence, map[string]any{
		"operation_count": best,
		"window_seconds":  window,
		"description":     fmt.Sprintf("%d near-identical operations within %.0fs", best, window),
	})
	return []detection.DetectionPattern{pattern}, nil
}
