package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shadowtrace/discovery-platform/internal/api"
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

// ListAutomations satisfies api.Store. Pagination is keyset-based on the
// automation id (ORDER BY a.id ASC, WHERE a.id > cursor) rather than
// offset-based, so a page boundary stays stable while a discovery run
// concurrently inserts or soft-expires rows.
func (s *Store) ListAutomations(ctx context.Context, organizationID string, opts api.ListAutomationsOptions) ([]api.AutomationRow, string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT a.id, a.organization_id, a.connection_id, a.discovery_run_id, a.external_id, a.name, a.kind,
		       a.owner_identity, a.metadata, a.first_seen_at, a.last_seen_at,
		       c.platform, COALESCE(ra.score, 0), COALESCE(ra.level, ''), (ra.automation_id IS NOT NULL)
		FROM discovered_automations a
		JOIN platform_connections c ON c.id = a.connection_id
		LEFT JOIN risk_assessments ra ON ra.automation_id = a.id
		WHERE a.organization_id = $1 AND a.id > $2`
	args := []interface{}{organizationID, opts.Cursor}
	if !opts.IncludeInactive {
		query += ` AND a.is_active = true`
	}
	query += ` ORDER BY a.id ASC LIMIT $3`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []api.AutomationRow
	for rows.Next() {
		row, err := scanAutomationRow(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(out) > limit {
		nextCursor = out[limit-1].ID
		out = out[:limit]
	}
	return out, nextCursor, nil
}

// GetAutomationDetail satisfies api.Store: one automation's list-view
// projection plus its full detection history, the read model §4.11's
// automation detail page renders.
func (s *Store) GetAutomationDetail(ctx context.Context, organizationID, automationID string) (api.AutomationDetailRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.organization_id, a.connection_id, a.discovery_run_id, a.external_id, a.name, a.kind,
		       a.owner_identity, a.metadata, a.first_seen_at, a.last_seen_at,
		       c.platform, COALESCE(ra.score, 0), COALESCE(ra.level, ''), (ra.automation_id IS NOT NULL)
		FROM discovered_automations a
		JOIN platform_connections c ON c.id = a.connection_id
		LEFT JOIN risk_assessments ra ON ra.automation_id = a.id
		WHERE a.organization_id = $1 AND a.id = $2
	`, organizationID, automationID)

	automation, err := scanAutomationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return api.AutomationDetailRow{}, err
	}
	if err != nil {
		return api.AutomationDetailRow{}, err
	}

	detections, err := s.GetExistingPatterns(ctx, organizationID, automationID)
	if err != nil {
		return api.AutomationDetailRow{}, err
	}

	return api.AutomationDetailRow{Automation: automation, Detections: detections}, nil
}

func scanAutomationRow(row rowScanner) (api.AutomationRow, error) {
	var out api.AutomationRow
	var ownerIdentity sql.NullString
	var metadataJSON []byte
	var level string
	err := row.Scan(&out.ID, &out.OrganizationID, &out.ConnectionID, &out.DiscoveryRunID, &out.ExternalID, &out.Name, &out.Kind,
		&ownerIdentity, &metadataJSON, &out.FirstSeenAt, &out.LastSeenAt,
		&out.Platform, &out.RiskScore, &level, &out.HasRisk)
	if errors.Is(err, sql.ErrNoRows) {
		return api.AutomationRow{}, err
	}
	if err != nil {
		return api.AutomationRow{}, err
	}
	out.OwnerIdentity = fromNullString(ownerIdentity)
	out.RiskLevel = detection.RiskLevel(level)
	if err := unmarshalJSON(metadataJSON, &out.Metadata); err != nil {
		return api.AutomationRow{}, err
	}
	return out, nil
}
