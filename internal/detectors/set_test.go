package detectors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
	"github.com/shadowtrace/discovery-platform/internal/domain/organization"
)

type fakeSetStore struct {
	org             organization.Organization
	automations     map[string]discovery.DiscoveredAutomation
	baselines       map[string]*baseline.BehavioralBaseline
	history         map[string][]HistoricalSample
	savedPatterns   []detection.DetectionPattern
	savedAssessments []detection.RiskAssessment
	getAutomationErr error
}

func (f *fakeSetStore) GetOrganization(ctx context.Context, organizationID string) (organization.Organization, error) {
	return f.org, nil
}

func (f *fakeSetStore) GetAutomation(ctx context.Context, organizationID, automationID string) (discovery.DiscoveredAutomation, error) {
	if f.getAutomationErr != nil {
		return discovery.DiscoveredAutomation{}, f.getAutomationErr
	}
	return f.automations[automationID], nil
}

func (f *fakeSetStore) GetBaseline(ctx context.Context, organizationID, automationID string) (*baseline.BehavioralBaseline, error) {
	return f.baselines[automationID], nil
}

func (f *fakeSetStore) GetHistory(ctx context.Context, organizationID, automationID string, since time.Time) ([]HistoricalSample, error) {
	return f.history[automationID], nil
}

func (f *fakeSetStore) GetExistingPatterns(ctx context.Context, organizationID, automationID string) ([]detection.DetectionPattern, error) {
	return nil, nil
}

func (f *fakeSetStore) SavePatterns(ctx context.Context, patterns []detection.DetectionPattern) error {
	f.savedPatterns = append(f.savedPatterns, patterns...)
	return nil
}

func (f *fakeSetStore) SaveRiskAssessment(ctx context.Context, assessment detection.RiskAssessment) error {
	f.savedAssessments = append(f.savedAssessments, assessment)
	return nil
}

func TestSetRunAllScoresEachAutomation(t *testing.T) {
	store := &fakeSetStore{
		org: organization.Organization{ID: "org-1"},
		automations: map[string]discovery.DiscoveredAutomation{
			"auto-1": {ID: "auto-1", OrganizationID: "org-1"},
		},
		baselines: map[string]*baseline.BehavioralBaseline{
			"auto-1": {Confidence: baseline.ConfidenceHigh, MeanEventsPerHour: 10, StdDevEventsPerHour: 2},
		},
		history: map[string][]HistoricalSample{
			"auto-1": {{EventCount: 11}},
		},
	}

	set := New(store, nil)
	warnings, err := set.RunAll(context.Background(), "org-1", []string{"auto-1"})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, store.savedAssessments, 1)
	require.Equal(t, "auto-1", store.savedAssessments[0].AutomationID)
}

func TestSetRunAllIsolatesPerAutomationFailures(t *testing.T) {
	store := &fakeSetStore{
		org:               organization.Organization{ID: "org-1"},
		getAutomationErr: fmt.Errorf("automation lookup failed"),
	}

	set := New(store, nil)
	warnings, err := set.RunAll(context.Background(), "org-1", []string{"auto-1"})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Empty(t, store.savedAssessments)
}

func TestSetWithQualitativeClientEnablesDetector(t *testing.T) {
	store := &fakeSetStore{
		org: organization.Organization{ID: "org-1"},
		automations: map[string]discovery.DiscoveredAutomation{
			"auto-1": {ID: "auto-1", OrganizationID: "org-1", Name: "suspicious-bot"},
		},
	}
	client := &stubQualitativeClient{verdict: QualitativeVerdict{Concerning: true, Rationale: "flagged"}}
	set := New(store, nil).WithQualitativeClient(client)

	_, err := set.RunAll(context.Background(), "org-1", []string{"auto-1"})
	require.NoError(t, err)
	require.Equal(t, 1, client.calls)
	require.NotEmpty(t, store.savedPatterns)
}
