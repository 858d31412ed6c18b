package baselinesvc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
)

func TestApplyColdStartSeedsFromFirstBatch(t *testing.T) {
	observations := []Observation{
		{Timestamp: time.Now().Add(-48 * time.Hour), EventsPerHour: 10},
		{Timestamp: time.Now().Add(-24 * time.Hour), EventsPerHour: 20},
	}

	result := Apply(nil, observations, "org-1", "auto-1", DefaultAdaptationRate)
	require.Equal(t, 15.0, result.MeanEventsPerHour)
	require.Equal(t, 2, result.SampleCount)
	require.Equal(t, "org-1", result.OrganizationID)
	require.Equal(t, "auto-1", result.AutomationID)
}

func TestApplyBlendsExistingBaselineViaEMA(t *testing.T) {
	existing := &baseline.BehavioralBaseline{
		MeanEventsPerHour: 10,
		SampleCount:       100,
		SampleSinceDays:   30,
	}
	observations := []Observation{{Timestamp: time.Now(), EventsPerHour: 20}}

	result := Apply(existing, observations, "org-1", "auto-1", 0.2)
	// ema(10, 20, 0.2) = 0.2*20 + 0.8*10 = 12
	require.InDelta(t, 12.0, result.MeanEventsPerHour, 1e-9)
	require.Equal(t, 101, result.SampleCount)
}

func TestApplyNoObservationsReturnsExistingUnchanged(t *testing.T) {
	existing := &baseline.BehavioralBaseline{MeanEventsPerHour: 42, SampleCount: 7}

	result := Apply(existing, nil, "org-1", "auto-1", 0.2)
	require.Equal(t, *existing, result)
}

func TestApplyNoObservationsNoExistingReturnsEmptyBaseline(t *testing.T) {
	result := Apply(nil, nil, "org-1", "auto-1", 0.2)
	require.Equal(t, "org-1", result.OrganizationID)
	require.Equal(t, "auto-1", result.AutomationID)
	require.Equal(t, 0, result.SampleCount)
}
