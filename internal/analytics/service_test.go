package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	riskRows     []DailyRiskRow
	platformRows []PlatformRow
	newRows      []DailyCountRow
	baseline     int
	topRisks     []TopRiskRow
	heatRows     []HeatMapRow
	affected     int
	platforms    int
	typeRows     []TypeRow
}

func (f *fakeStore) DailyRiskTrend(ctx context.Context, organizationID string, since time.Time) ([]DailyRiskRow, error) {
	return f.riskRows, nil
}
func (f *fakeStore) PlatformCounts(ctx context.Context, organizationID string, since time.Time) ([]PlatformRow, error) {
	return f.platformRows, nil
}
func (f *fakeStore) DailyNewAutomations(ctx context.Context, organizationID string, since time.Time) ([]DailyCountRow, error) {
	return f.newRows, nil
}
func (f *fakeStore) ActiveAutomationCountBefore(ctx context.Context, organizationID string, before time.Time) (int, error) {
	return f.baseline, nil
}
func (f *fakeStore) TopRiskAutomations(ctx context.Context, organizationID string, limit int) ([]TopRiskRow, error) {
	return f.topRisks, nil
}
func (f *fakeStore) HeatMapCounts(ctx context.Context, organizationID string) ([]HeatMapRow, error) {
	return f.heatRows, nil
}
func (f *fakeStore) DistinctAffectedUsers(ctx context.Context, organizationID string) (int, error) {
	return f.affected, nil
}
func (f *fakeStore) ActivePlatformCount(ctx context.Context, organizationID string) (int, error) {
	return f.platforms, nil
}
func (f *fakeStore) TypeCounts(ctx context.Context, organizationID string) ([]TypeRow, error) {
	return f.typeRows, nil
}

func TestRiskTrendsZeroFillsMissingDays(t *testing.T) {
	store := &fakeStore{riskRows: []DailyRiskRow{
		{Day: time.Now().UTC(), Low: 1, Medium: 2, High: 0, Critical: 0, AverageScore: 10},
	}}
	svc := New(store)

	trends, err := svc.RiskTrends(context.Background(), "org1", WindowWeek)
	require.NoError(t, err)
	require.Len(t, trends.Points, 8)

	var nonZero int
	for _, p := range trends.Points {
		if p.Low != 0 || p.Medium != 0 {
			nonZero++
		}
	}
	require.Equal(t, 1, nonZero)
}

func TestPlatformDistributionComputesPercentageAndColor(t *testing.T) {
	store := &fakeStore{platformRows: []PlatformRow{
		{Platform: "slack", Count: 3, HighRiskCount: 1},
		{Platform: "microsoft365", Count: 1},
	}}
	svc := New(store)

	dist, err := svc.PlatformDistribution(context.Background(), "org1")
	require.NoError(t, err)
	require.Equal(t, 4, dist.TotalAutomations)
	require.Len(t, dist.Platforms, 2)
	require.InDelta(t, 75.0, dist.Platforms[0].Percentage, 0.01)
	require.Equal(t, "#4A154B", dist.Platforms[0].Color)
}

func TestPlatformDistributionEmptyProducesNoDivideByZero(t *testing.T) {
	svc := New(&fakeStore{})
	dist, err := svc.PlatformDistribution(context.Background(), "org1")
	require.NoError(t, err)
	require.Equal(t, 0, dist.TotalAutomations)
	require.Empty(t, dist.Platforms)
}

func TestAutomationGrowthAccumulatesFromBaseline(t *testing.T) {
	today := startOfDay(time.Now().UTC())
	store := &fakeStore{
		baseline: 10,
		newRows:  []DailyCountRow{{Day: today, New: 2}},
	}
	svc := New(store)

	growth, err := svc.AutomationGrowth(context.Background(), "org1", WindowWeek)
	require.NoError(t, err)
	require.Len(t, growth.Points, 8)
	require.Equal(t, 12, growth.Points[len(growth.Points)-1].Cumulative)
	require.InDelta(t, 20.0, growth.GrowthRatePercent, 0.01)
}

func TestHeatMapGroupsByPlatform(t *testing.T) {
	store := &fakeStore{heatRows: []HeatMapRow{
		{Platform: "slack", Level: "critical", Count: 2},
		{Platform: "slack", Level: "low", Count: 5},
		{Platform: "microsoft365", Level: "high", Count: 1},
	}}
	svc := New(store)

	hm, err := svc.HeatMap(context.Background(), "org1")
	require.NoError(t, err)
	require.Len(t, hm.Cells, 2)
	require.Equal(t, "slack", hm.Cells[0].Platform)
	require.Equal(t, 2, hm.Cells[0].Critical)
	require.Equal(t, 5, hm.Cells[0].Low)
}

func TestTopRisksDefaultsLimit(t *testing.T) {
	store := &fakeStore{}
	svc := New(store)
	_, err := svc.TopRisks(context.Background(), "org1", 0)
	require.NoError(t, err)
}
