package detectors

import (
	"context"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

// DefaultDataVolumeFactor implements §4.6 #6's "exceeding baseline by
// configured factor".
const DefaultDataVolumeFactor = 3.0

// DataVolumeDetector flags a spike in bytes transferred relative to the
// automation's own historical average; record counts are not considered.
type DataVolumeDetector struct {
	Factor float64
}

func NewDataVolumeDetector() *DataVolumeDetector {
	return &DataVolumeDetector{Factor: DefaultDataVolumeFactor}
}

func (d *DataVolumeDetector) Type() detection.PatternType { return detection.PatternDataExfilShape }

func (d *DataVolumeDetector) Detect(ctx context.Context, in Input) ([]detection.DetectionPattern, error) {
	if in.Baseline == nil || in.Baseline.Confidence == baseline.ConfidenceInsufficientData {
		return nil, nil
	}
	if len(in.History) == 0 {
		return nil, nil
	}

	var priorBytes []float64
	for _, h := range in.History[:len(in.History)-1] {
		priorBytes = append(priorBytes, float64(h.BytesTransferred))
	}
	if len(priorBytes) == 0 {
		return nil, nil
	}
	baselineMean := mean(priorBytes)
	if baselineMean == 0 {
		return nil, nil
	}

	latest := float64(in.History[len(in.History)-1].BytesTransferred)
	factor := d.Factor
	if factor <= 0 {
		factor = DefaultDataVolumeFactor
	}
	ratio := latest / baselineMean
	if ratio < factor {
		return nil, nil
	}

	severity := detection.SeverityMedium
	if ratio >= factor*2 {
		severity = detection.SeverityHigh
	}
	if ratio >= factor*4 {
		severity = detection.SeverityCritical
	}
	confidence := clamp01(ratio / (factor * 2))
	pattern := newPattern(in, d.Type(), severity, confidence, map[string]any{
		"bytes_transferred": latest,
		"baseline_mean":     baselineMean,
		"ratio":             ratio,
	})
	return []detection.DetectionPattern{pattern}, nil
}
