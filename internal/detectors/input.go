// Package detectors implements the eleven pure-function pattern detectors
// of the Detector Set (SPEC_FULL §4.6) and the Risk Scorer that combines
// their output into an aggregate RiskAssessment.
package detectors

import (
	"math"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
	"github.com/shadowtrace/discovery-platform/internal/domain/organization"
)

// HistoricalSample is one prior discovery run's activity snapshot for an
// automation, the "historical rows from the last N days" a detector's
// window is built from (§4.6).
type HistoricalSample struct {
	Timestamp        time.Time
	EventCount        int
	BytesTransferred  int64
	RecordsTouched    int
	Scopes            []string
}

// Input is one automation's full evidence window, handed unmodified to
// every detector (§4.6: "detectors must not mutate inputs").
type Input struct {
	Organization     organization.Organization
	Automation       discovery.DiscoveredAutomation
	Baseline         *baseline.BehavioralBaseline
	History          []HistoricalSample
	ExistingPatterns []detection.DetectionPattern
}

// eventTimestamps returns the run timestamps in History, oldest first,
// assumed already sorted by the caller (the store orders by timestamp asc).
func (in Input) eventTimestamps() []time.Time {
	out := make([]time.Time, 0, len(in.History))
	for _, h := range in.History {
		out = append(out, h.Timestamp)
	}
	return out
}

func (in Input) latestScopes() []string {
	if len(in.History) == 0 {
		return nil
	}
	return in.History[len(in.History)-1].Scopes
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

// coefficientOfVariation is stddev/mean, the dispersion measure timing
// variance and velocity scoring both key off.
func coefficientOfVariation(xs []float64) float64 {
	m := mean(xs)
	if m == 0 {
		return 0
	}
	return stddev(xs, m) / m
}

func interArrivalSeconds(ts []time.Time) []float64 {
	if len(ts) < 2 {
		return nil
	}
	out := make([]float64, 0, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		out = append(out, ts[i].Sub(ts[i-1]).Seconds())
	}
	return out
}

func containsAll(superset, subset []string) bool {
	set := make(map[string]bool, len(superset))
	for _, s := range superset {
		set[s] = true
	}
	for _, s := range subset {
		if !set[s] {
			return false
		}
	}
	return true
}
