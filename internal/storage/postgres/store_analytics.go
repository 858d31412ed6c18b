package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/analytics"
)

// DailyRiskTrend satisfies analytics.Store, rolling up each automation's
// current risk_assessments row by the UTC day it was last updated. An
// assessment only carries its most recent score (one row per automation), so
// a day's bucket reflects assessments last touched that day, not a full
// history of every score an automation has ever held.
func (s *Store) DailyRiskTrend(ctx context.Context, organizationID string, since time.Time) ([]analytics.DailyRiskRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc('day', ra.updated_at) AS day,
			count(*) FILTER (WHERE ra.level = 'low') AS low,
			count(*) FILTER (WHERE ra.level = 'medium') AS medium,
			count(*) FILTER (WHERE ra.level = 'high') AS high,
			count(*) FILTER (WHERE ra.level = 'critical') AS critical,
			avg(ra.score) AS average_score
		FROM risk_assessments ra
		JOIN discovered_automations a ON a.id = ra.automation_id
		WHERE a.organization_id = $1 AND a.is_active = true AND ra.updated_at >= $2
		GROUP BY day
		ORDER BY day
	`, organizationID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.DailyRiskRow
	for rows.Next() {
		var r analytics.DailyRiskRow
		var avg sql.NullFloat64
		if err := rows.Scan(&r.Day, &r.Low, &r.Medium, &r.High, &r.Critical, &avg); err != nil {
			return nil, err
		}
		r.AverageScore = avg.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}

// PlatformCounts satisfies analytics.Store.
func (s *Store) PlatformCounts(ctx context.Context, organizationID string, since time.Time) ([]analytics.PlatformRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.platform, count(*),
			count(*) FILTER (WHERE ra.level IN ('high', 'critical'))
		FROM discovered_automations a
		JOIN platform_connections c ON c.id = a.connection_id
		LEFT JOIN risk_assessments ra ON ra.automation_id = a.id
		WHERE a.organization_id = $1 AND a.is_active = true AND a.first_seen_at >= $2
		GROUP BY c.platform
		ORDER BY count(*) DESC
	`, organizationID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.PlatformRow
	for rows.Next() {
		var r analytics.PlatformRow
		if err := rows.Scan(&r.Platform, &r.Count, &r.HighRiskCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DailyNewAutomations satisfies analytics.Store.
func (s *Store) DailyNewAutomations(ctx context.Context, organizationID string, since time.Time) ([]analytics.DailyCountRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc('day', first_seen_at) AS day, count(*)
		FROM discovered_automations
		WHERE organization_id = $1 AND is_active = true AND first_seen_at >= $2
		GROUP BY day
		ORDER BY day
	`, organizationID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.DailyCountRow
	for rows.Next() {
		var r analytics.DailyCountRow
		if err := rows.Scan(&r.Day, &r.New); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActiveAutomationCountBefore satisfies analytics.Store: how many
// automations discovered before the cutoff are still active, used both as
// a growth-series baseline and for summary-stat period deltas.
func (s *Store) ActiveAutomationCountBefore(ctx context.Context, organizationID string, before time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM discovered_automations
		WHERE organization_id = $1 AND is_active = true AND first_seen_at < $2
	`, organizationID, before).Scan(&count)
	return count, err
}

// TopRiskAutomations satisfies analytics.Store.
func (s *Store) TopRiskAutomations(ctx context.Context, organizationID string, limit int) ([]analytics.TopRiskRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, c.platform, ra.level, ra.score, a.last_seen_at
		FROM risk_assessments ra
		JOIN discovered_automations a ON a.id = ra.automation_id
		JOIN platform_connections c ON c.id = a.connection_id
		WHERE a.organization_id = $1 AND a.is_active = true
		ORDER BY
			CASE ra.level
				WHEN 'critical' THEN 3
				WHEN 'high' THEN 2
				WHEN 'medium' THEN 1
				ELSE 0
			END DESC,
			ra.score DESC,
			a.last_seen_at DESC
		LIMIT $2
	`, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.TopRiskRow
	for rows.Next() {
		var r analytics.TopRiskRow
		if err := rows.Scan(&r.AutomationID, &r.Name, &r.Platform, &r.Level, &r.Score, &r.LastSeenAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HeatMapCounts satisfies analytics.Store, feeding both the platform x
// severity grid and (summed) the summary stats' level counts.
func (s *Store) HeatMapCounts(ctx context.Context, organizationID string) ([]analytics.HeatMapRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.platform, ra.level, count(*)
		FROM risk_assessments ra
		JOIN discovered_automations a ON a.id = ra.automation_id
		JOIN platform_connections c ON c.id = a.connection_id
		WHERE a.organization_id = $1 AND a.is_active = true
		GROUP BY c.platform, ra.level
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.HeatMapRow
	for rows.Next() {
		var r analytics.HeatMapRow
		if err := rows.Scan(&r.Platform, &r.Level, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DistinctAffectedUsers satisfies analytics.Store: the number of distinct
// owner identities behind still-active automations.
func (s *Store) DistinctAffectedUsers(ctx context.Context, organizationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(DISTINCT owner_identity) FROM discovered_automations
		WHERE organization_id = $1 AND is_active = true AND owner_identity IS NOT NULL AND owner_identity != ''
	`, organizationID).Scan(&count)
	return count, err
}

// ActivePlatformCount satisfies analytics.Store.
func (s *Store) ActivePlatformCount(ctx context.Context, organizationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(DISTINCT c.platform)
		FROM discovered_automations a
		JOIN platform_connections c ON c.id = a.connection_id
		WHERE a.organization_id = $1 AND a.is_active = true
	`, organizationID).Scan(&count)
	return count, err
}

// TypeCounts satisfies analytics.Store.
func (s *Store) TypeCounts(ctx context.Context, organizationID string) ([]analytics.TypeRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.kind, count(*), avg(COALESCE(ra.score, 0))
		FROM discovered_automations a
		LEFT JOIN risk_assessments ra ON ra.automation_id = a.id
		WHERE a.organization_id = $1 AND a.is_active = true
		GROUP BY a.kind
		ORDER BY count(*) DESC
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.TypeRow
	for rows.Next() {
		var r analytics.TypeRow
		var avg sql.NullFloat64
		if err := rows.Scan(&r.Kind, &r.Count, &avg); err != nil {
			return nil, err
		}
		r.AvgScore = avg.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}
