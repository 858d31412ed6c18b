package detectors

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
	"github.com/shadowtrace/discovery-platform/internal/domain/organization"
)

func TestRiskScorerCombinesCategoriesWeighted(t *testing.T) {
	scorer := NewRiskScorer()
	in := Input{
		Organization: organization.Organization{ID: "org-1"},
		Automation:   discovery.DiscoveredAutomation{ID: "auto-1"},
	}
	patterns := []detection.DetectionPattern{
		{ID: "p1", Type: detection.PatternPermissionEscalation, Severity: detection.SeverityCritical, Confidence: 1.0},
		{ID: "p2", Type: detection.PatternDataExfilShape, Severity: detection.SeverityCritical, Confidence: 1.0},
	}

	assessment := scorer.Score(in, patterns)
	require.Equal(t, "org-1", assessment.OrganizationID)
	require.Equal(t, "auto-1", assessment.AutomationID)
	require.ElementsMatch(t, []string{"p1", "p2"}, assessment.ContributingPatternIDs)
	require.Equal(t, 90, assessment.Score) // (0.30+0.30)*1.0*100 = 60, escalated to 90: critical severity present
	require.Equal(t, detection.RiskLevelCritical, assessment.Level)
}

func TestRiskScorerEscalatesSingleCategoryCriticalPattern(t *testing.T) {
	scorer := NewRiskScorer()
	in := Input{
		Organization: organization.Organization{ID: "org-1"},
		Automation:   discovery.DiscoveredAutomation{ID: "auto-1"},
	}
	patterns := []detection.DetectionPattern{
		{ID: "p1", Type: detection.PatternVelocityAnomaly, Severity: detection.SeverityCritical, Confidence: 1.0},
	}

	assessment := scorer.Score(in, patterns)
	require.GreaterOrEqual(t, assessment.Score, 90)
	require.Equal(t, detection.RiskLevelCritical, assessment.Level)
}

func TestRiskScorerNoPatternsScoresZero(t *testing.T) {
	scorer := NewRiskScorer()
	in := Input{Organization: organization.Organization{ID: "org-1"}, Automation: discovery.DiscoveredAutomation{ID: "auto-1"}}

	assessment := scorer.Score(in, nil)
	require.Equal(t, 0, assessment.Score)
	require.Equal(t, detection.RiskLevelLow, assessment.Level)
	require.Empty(t, assessment.ContributingPatternIDs)
}

func TestRiskScorerUsesOrgThresholdOverride(t *testing.T) {
	scorer := NewRiskScorer()
	in := Input{
		Organization: organization.Organization{
			ID: "org-1",
			Settings: organization.Settings{
				RiskThresholds: organization.RiskThresholds{LowMax: 80, MediumMax: 90, HighMax: 95},
			},
		},
		Automation: discovery.DiscoveredAutomation{ID: "auto-1"},
	}
	patterns := []detection.DetectionPattern{
		{ID: "p1", Type: detection.PatternPermissionEscalation, Severity: detection.SeverityCritical, Confidence: 1.0},
		{ID: "p2", Type: detection.PatternDataExfilShape, Severity: detection.SeverityCritical, Confidence: 1.0},
	}

	assessment := scorer.Score(in, patterns)
	require.Equal(t, 90, assessment.Score)
	require.Equal(t, detection.RiskLevelMedium, assessment.Level) // org's MediumMax=90 puts the escalated score below its HighMax=95
}
