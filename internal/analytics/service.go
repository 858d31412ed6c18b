// Package analytics implements the read-only dashboard aggregations of
// SPEC_FULL §4.10: every query is scoped by organization_id, excludes
// soft-expired automations (no query offers to include them), and never
// returns a ragged array for an empty window.
package analytics

import (
	"context"
	"fmt"
	"time"
)

// DailyRiskRow is one day's risk_assessments rollup for an organization.
type DailyRiskRow struct {
	Day                         time.Time
	Low, Medium, High, Critical int
	AverageScore                float64
}

// PlatformRow is one platform's automation population within a window.
type PlatformRow struct {
	Platform      string
	Count         int
	HighRiskCount int
}

// DailyCountRow is one day's newly first-seen automation count.
type DailyCountRow struct {
	Day time.Time
	New int
}

// TopRiskRow is one ranked automation, joined with its owning platform.
type TopRiskRow struct {
	AutomationID string
	Name         string
	Platform     string
	Level        string
	Score        int
	LastSeenAt   time.Time
}

// HeatMapRow is one platform/level cell's raw count.
type HeatMapRow struct {
	Platform string
	Level    string
	Count    int
}

// TypeRow is one automation kind's raw count and average risk score.
type TypeRow struct {
	Kind     string
	Count    int
	AvgScore float64
}

// Store is the read surface analytics needs from the Persistence Layer.
// internal/storage/postgres.Store implements this alongside every other
// domain Store interface.
type Store interface {
	DailyRiskTrend(ctx context.Context, organizationID string, since time.Time) ([]DailyRiskRow, error)
	PlatformCounts(ctx context.Context, organizationID string, since time.Time) ([]PlatformRow, error)
	DailyNewAutomations(ctx context.Context, organizationID string, since time.Time) ([]DailyCountRow, error)
	ActiveAutomationCountBefore(ctx context.Context, organizationID string, before time.Time) (int, error)
	TopRiskAutomations(ctx context.Context, organizationID string, limit int) ([]TopRiskRow, error)
	HeatMapCounts(ctx context.Context, organizationID string) ([]HeatMapRow, error)
	DistinctAffectedUsers(ctx context.Context, organizationID string) (int, error)
	ActivePlatformCount(ctx context.Context, organizationID string) (int, error)
	TypeCounts(ctx context.Context, organizationID string) ([]TypeRow, error)
}

// Service answers every §4.10 query against Store.
type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

// RiskTrends returns the daily severity/average-score series for window,
// zero-filling any day with no assessments so callers never see gaps.
func (s *Service) RiskTrends(ctx context.Context, organizationID string, window Window) (RiskTrends, error) {
	since := startOfDay(time.Now().UTC().AddDate(0, 0, -window.days()+1))
	rows, err := s.store.DailyRiskTrend(ctx, organizationID, since)
	if err != nil {
		return RiskTrends{}, fmt.Errorf("load risk trend: %w", err)
	}
	byDay := make(map[string]DailyRiskRow, len(rows))
	for _, r := range rows {
		byDay[r.Day.Format("2006-01-02")] = r
	}

	points := make([]RiskTrendPoint, 0, window.days())
	for i := 0; i < window.days(); i++ {
		day := since.AddDate(0, 0, i)
		key := day.Format("2006-01-02")
		r, ok := byDay[key]
		point := RiskTrendPoint{Date: key}
		if ok {
			point.Low, point.Medium, point.High, point.Critical = r.Low, r.Medium, r.High, r.Critical
			point.AverageScore = r.AverageScore
		}
		points = append(points, point)
	}
	return RiskTrends{Window: window, Points: points}, nil
}

// PlatformDistribution returns the fixed 30-day platform breakdown.
func (s *Service) PlatformDistribution(ctx context.Context, organizationID string) (PlatformDistribution, error) {
	const windowDays = 30
	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	rows, err := s.store.PlatformCounts(ctx, organizationID, since)
	if err != nil {
		return PlatformDistribution{}, fmt.Errorf("load platform distribution: %w", err)
	}

	total := 0
	for _, r := range rows {
		total += r.Count
	}

	platforms := make([]PlatformCount, 0, len(rows))
	for _, r := range rows {
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(r.Count) / float64(total)
		}
		platforms = append(platforms, PlatformCount{
			Platform:      r.Platform,
			Count:         r.Count,
			Percentage:    pct,
			HighRiskCount: r.HighRiskCount,
			Color:         colorFor(r.Platform),
		})
	}
	return PlatformDistribution{WindowDays: windowDays, TotalAutomations: total, Platforms: platforms}, nil
}

// AutomationGrowth returns the new/cumulative series over window plus the
// growth rate versus the period immediately preceding it.
func (s *Service) AutomationGrowth(ctx context.Context, organizationID string, window Window) (AutomationGrowth, error) {
	days := window.days()
	since := startOfDay(time.Now().UTC().AddDate(0, 0, -days+1))

	baseline, err := s.store.ActiveAutomationCountBefore(ctx, organizationID, since)
	if err != nil {
		return AutomationGrowth{}, fmt.Errorf("load growth baseline: %w", err)
	}
	rows, err := s.store.DailyNewAutomations(ctx, organizationID, since)
	if err != nil {
		return AutomationGrowth{}, fmt.Errorf("load daily new automations: %w", err)
	}
	byDay := make(map[string]int, len(rows))
	for _, r := range rows {
		byDay[r.Day.Format("2006-01-02")] = r.New
	}

	points := make([]GrowthPoint, 0, days)
	cumulative := baseline
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i)
		key := day.Format("2006-01-02")
		newCount := byDay[key]
		cumulative += newCount
		points = append(points, GrowthPoint{Date: key, New: newCount, Cumulative: cumulative})
	}

	growthRate := 0.0
	if baseline > 0 {
		growthRate = 100 * float64(cumulative-baseline) / float64(baseline)
	} else if cumulative > 0 {
		growthRate = 100
	}
	return AutomationGrowth{Window: window, Points: points, GrowthRatePercent: growthRate}, nil
}

// TopRisks returns up to limit active automations ranked (level desc, score
// desc, last_seen desc).
func (s *Service) TopRisks(ctx context.Context, organizationID string, limit int) ([]TopRisk, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.store.TopRiskAutomations(ctx, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("load top risks: %w", err)
	}
	out := make([]TopRisk, 0, len(rows))
	for _, r := range rows {
		out = append(out, TopRisk{
			AutomationID: r.AutomationID,
			Name:         r.Name,
			Platform:     r.Platform,
			Level:        r.Level,
			Score:        r.Score,
			LastSeenAt:   r.LastSeenAt,
		})
	}
	return out, nil
}

// SummaryStats returns headline totals plus deltas against the immediately
// preceding period of equal length (here, the preceding 30 days).
func (s *Service) SummaryStats(ctx context.Context, organizationID string) (SummaryStats, error) {
	const periodDays = 30
	now := time.Now().UTC()
	periodStart := now.AddDate(0, 0, -periodDays)
	priorStart := periodStart.AddDate(0, 0, -periodDays)

	heatRows, err := s.store.HeatMapCounts(ctx, organizationID)
	if err != nil {
		return SummaryStats{}, fmt.Errorf("load heat map counts: %w", err)
	}
	levelCounts := map[string]int{"low": 0, "medium": 0, "high": 0, "critical": 0}
	total := 0
	for _, r := range heatRows {
		levelCounts[r.Level] += r.Count
		total += r.Count
	}

	platformCount, err := s.store.ActivePlatformCount(ctx, organizationID)
	if err != nil {
		return SummaryStats{}, fmt.Errorf("load active platform count: %w", err)
	}
	affectedUsers, err := s.store.DistinctAffectedUsers(ctx, organizationID)
	if err != nil {
		return SummaryStats{}, fmt.Errorf("load affected users: %w", err)
	}

	totalAtPeriodStart, err := s.store.ActiveAutomationCountBefore(ctx, organizationID, periodStart)
	if err != nil {
		return SummaryStats{}, fmt.Errorf("load period-start total: %w", err)
	}
	totalAtPriorStart, err := s.store.ActiveAutomationCountBefore(ctx, organizationID, priorStart)
	if err != nil {
		return SummaryStats{}, fmt.Errorf("load prior-period-start total: %w", err)
	}

	return SummaryStats{
		TotalAutomations:      total,
		LevelCounts:           levelCounts,
		PlatformCount:         platformCount,
		AffectedUsers:         affectedUsers,
		TotalAutomationsDelta: totalAtPeriodStart - totalAtPriorStart,
		CriticalCountDelta:    0, // historical per-level snapshots aren't retained; only the current critical count is available (see DESIGN.md)
	}, nil
}

// HeatMap returns the platform x severity grid.
func (s *Service) HeatMap(ctx context.Context, organizationID string) (HeatMap, error) {
	rows, err := s.store.HeatMapCounts(ctx, organizationID)
	if err != nil {
		return HeatMap{}, fmt.Errorf("load heat map: %w", err)
	}
	byPlatform := make(map[string]*HeatMapCell)
	order := make([]string, 0)
	for _, r := range rows {
		cell, ok := byPlatform[r.Platform]
		if !ok {
			cell = &HeatMapCell{Platform: r.Platform}
			byPlatform[r.Platform] = cell
			order = append(order, r.Platform)
		}
		switch r.Level {
		case "critical":
			cell.Critical += r.Count
		case "high":
			cell.High += r.Count
		case "medium":
			cell.Medium += r.Count
		case "low":
			cell.Low += r.Count
		}
	}
	cells := make([]HeatMapCell, 0, len(order))
	for _, p := range order {
		cells = append(cells, *byPlatform[p])
	}
	return HeatMap{Cells: cells}, nil
}

// AutomationTypeDistribution returns the per-kind population share and
// average risk score.
func (s *Service) AutomationTypeDistribution(ctx context.Context, organizationID string) (AutomationTypeDistribution, error) {
	rows, err := s.store.TypeCounts(ctx, organizationID)
	if err != nil {
		return AutomationTypeDistribution{}, fmt.Errorf("load type distribution: %w", err)
	}
	total := 0
	for _, r := range rows {
		total += r.Count
	}
	types := make([]TypeCount, 0, len(rows))
	for _, r := range rows {
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(r.Count) / float64(total)
		}
		types = append(types, TypeCount{Kind: r.Kind, Count: r.Count, Percentage: pct, AverageRiskScore: r.AvgScore})
	}
	return AutomationTypeDistribution{Types: types}, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
