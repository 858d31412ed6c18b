package baselinesvc

import (
	"math"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
)

// DefaultAdaptationRate and DefaultMinSampleSize are §4.7's EMA tuning
// defaults.
const (
	DefaultAdaptationRate = 0.2
	DefaultMinSampleSize  = 50
)

// Observation is one discovery run's contribution to an automation's
// baseline: an events-per-hour rate, the hour it was observed in, and the
// scope set active at observation time.
type Observation struct {
	Timestamp     time.Time
	EventsPerHour float64
	Scopes        []string
}

// Apply folds a new batch of observations into an existing baseline using
// an exponential moving average (§4.7: "Updates use exponential moving
// average with adaptationRate... so a drifting environment is tracked
// without oscillation"). A nil existing baseline is treated as a cold
// start: the first batch's own statistics seed the baseline outright
// rather than being EMA-blended against zero.
func Apply(existing *baseline.BehavioralBaseline, observations []Observation, organizationID, automationID string, adaptationRate float64) baseline.BehavioralBaseline {
	if adaptationRate <= 0 {
		adaptationRate = DefaultAdaptationRate
	}
	if len(observations) == 0 {
		if existing != nil {
			return *existing
		}
		return baseline.BehavioralBaseline{OrganizationID: organizationID, AutomationID: automationID}
	}

	rates := make([]float64, 0, len(observations))
	for _, o := range observations {
		rates = append(rates, o.EventsPerHour)
	}
	batchMean := meanOf(rates)
	batchStdDev := stdDevOf(rates, batchMean)

	var histogram [24]float64
	for _, o := range observations {
		histogram[o.Timestamp.UTC().Hour()]++
	}
	total := float64(len(observations))
	for i := range histogram {
		histogram[i] /= total
	}

	result := baseline.BehavioralBaseline{
		OrganizationID: organizationID,
		AutomationID:   automationID,
		LastAdaptedAt:  time.Now().UTC(),
	}

	if existing == nil || existing.SampleCount == 0 {
		result.MeanEventsPerHour = batchMean
		result.StdDevEventsPerHour = batchStdDev
		result.ActiveHoursHistogram = histogram
		result.SampleCount = len(observations)
		result.SampleSinceDays = int(math.Ceil(time.Since(observations[0].Timestamp).Hours() / 24))
	} else {
		result.MeanEventsPerHour = ema(existing.MeanEventsPerHour, batchMean, adaptationRate)
		result.StdDevEventsPerHour = ema(existing.StdDevEventsPerHour, batchStdDev, adaptationRate)
		for i := range histogram {
			result.ActiveHoursHistogram[i] = ema(existing.ActiveHoursHistogram[i], histogram[i], adaptationRate)
		}
		result.SampleCount = existing.SampleCount + len(observations)
		result.SampleSinceDays = existing.SampleSinceDays
	}

	result.Confidence = baseline.ConfidenceForSample(result.SampleCount, result.SampleSinceDays)
	return result
}

func ema(previous, current, rate float64) float64 {
	return rate*current + (1-rate)*previous
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDevOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}
