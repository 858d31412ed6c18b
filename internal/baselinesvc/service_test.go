package baselinesvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
	"github.com/shadowtrace/discovery-platform/internal/domain/feedback"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
)

type fakeBaselineStore struct {
	baselines   map[string]*baseline.BehavioralBaseline
	thresholds  map[string]DetectorThresholds
	observations []Observation
	savedBaseline baseline.BehavioralBaseline
}

func newFakeBaselineStore() *fakeBaselineStore {
	return &fakeBaselineStore{
		baselines:  map[string]*baseline.BehavioralBaseline{},
		thresholds: map[string]DetectorThresholds{},
	}
}

func (f *fakeBaselineStore) LoadBaseline(ctx context.Context, organizationID, automationID string) (*baseline.BehavioralBaseline, error) {
	return f.baselines[automationID], nil
}

func (f *fakeBaselineStore) SaveBaseline(ctx context.Context, b baseline.BehavioralBaseline) error {
	f.savedBaseline = b
	f.baselines[b.AutomationID] = &b
	return nil
}

func (f *fakeBaselineStore) LoadThresholds(ctx context.Context, organizationID string) (DetectorThresholds, error) {
	if t, ok := f.thresholds[organizationID]; ok {
		return t, nil
	}
	return DefaultDetectorThresholds(), nil
}

func (f *fakeBaselineStore) SaveThresholds(ctx context.Context, organizationID string, thresholds DetectorThresholds) error {
	f.thresholds[organizationID] = thresholds
	return nil
}

func (f *fakeBaselineStore) RecentObservations(ctx context.Context, organizationID, automationID string, minSampleSize int) ([]Observation, error) {
	return f.observations, nil
}

func testLogger() *logging.Logger {
	return logging.New("baselinesvc-test", "error", "json")
}

func TestServiceRecomputeBaselineColdStart(t *testing.T) {
	store := newFakeBaselineStore()
	store.observations = []Observation{
		{Timestamp: time.Now(), EventsPerHour: 5},
		{Timestamp: time.Now(), EventsPerHour: 15},
	}

	svc := New(store, nil, testLogger())
	result, err := svc.RecomputeBaseline(context.Background(), "org-1", "auto-1")
	require.NoError(t, err)
	require.Equal(t, 10.0, result.MeanEventsPerHour)
	require.Equal(t, store.savedBaseline, result)
}

func TestServiceAdjustThresholdsPersistsAndReturnsUpdated(t *testing.T) {
	store := newFakeBaselineStore()
	svc := New(store, nil, testLogger())

	fb := feedback.AutomationFeedback{Disposition: feedback.DispositionFalsePositive}
	updated, err := svc.AdjustThresholds(context.Background(), "org-1", fb, "velocity_anomaly")
	require.NoError(t, err)
	require.Greater(t, updated.VelocityZScore, DefaultDetectorThresholds().VelocityZScore)
	require.Equal(t, updated, store.thresholds["org-1"])
}

func TestServiceGetBaselineFallsBackToStoreWithNoRedis(t *testing.T) {
	store := newFakeBaselineStore()
	store.baselines["auto-1"] = &baseline.BehavioralBaseline{AutomationID: "auto-1", MeanEventsPerHour: 7}

	svc := New(store, nil, testLogger())
	result, err := svc.GetBaseline(context.Background(), "org-1", "auto-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 7.0, result.MeanEventsPerHour)
}
