package api

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
)

func TestGroupByVendorBucketsByNameAndPlatform(t *testing.T) {
	rows := []AutomationRow{
		{
			DiscoveredAutomation: discovery.DiscoveredAutomation{ID: "a1", Name: "workflow-1", Metadata: map[string]any{"vendor_name": "Zapier"}},
			Platform:             connection.PlatformSlack,
			RiskLevel:            detection.RiskLevelLow,
			HasRisk:              true,
		},
		{
			DiscoveredAutomation: discovery.DiscoveredAutomation{ID: "a2", Name: "workflow-2", Metadata: map[string]any{"vendor_name": "Zapier"}},
			Platform:             connection.PlatformSlack,
			RiskLevel:            detection.RiskLevelCritical,
			HasRisk:              true,
		},
		{
			DiscoveredAutomation: discovery.DiscoveredAutomation{ID: "a3", Name: "bot-1"},
			Platform:             connection.PlatformMicrosoft365,
			RiskLevel:            detection.RiskLevelMedium,
			HasRisk:              true,
		},
	}

	groups := groupByVendor(rows)
	require.Len(t, groups, 2)

	require.Equal(t, "Zapier", groups[0].VendorName)
	require.Equal(t, 2, groups[0].ApplicationCount)
	require.Equal(t, "critical", groups[0].HighestRiskLevel)

	require.Equal(t, "bot-1", groups[1].VendorName)
	require.Equal(t, 1, groups[1].ApplicationCount)
}

func TestGroupByVendorFallsBackToAutomationName(t *testing.T) {
	rows := []AutomationRow{
		{DiscoveredAutomation: discovery.DiscoveredAutomation{ID: "a1", Name: "standalone-script"}, Platform: connection.PlatformSlack},
	}
	groups := groupByVendor(rows)
	require.Len(t, groups, 1)
	require.Equal(t, "standalone-script", groups[0].VendorName)
}
