package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/shadowtrace/discovery-platform/internal/connectors"
	"github.com/shadowtrace/discovery-platform/internal/correlator"
	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/correlation"
)

// RecentlyActive satisfies correlator.Store, assembling each candidate's
// vendor name and credential fingerprint out of its metadata blob and its
// AI-provider evidence out of its most recent ai_provider_call patterns.
func (s *Store) RecentlyActive(ctx context.Context, organizationID string, window time.Duration) ([]correlator.AutomationView, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, c.platform, a.name, a.metadata, a.last_seen_at
		FROM discovered_automations a
		JOIN platform_connections c ON c.id = a.connection_id
		WHERE a.organization_id = $1 AND a.is_active = true AND a.last_seen_at >= $2
	`, organizationID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []correlator.AutomationView
	for rows.Next() {
		var v correlator.AutomationView
		var platform connection.Platform
		var metadataJSON []byte
		if err := rows.Scan(&v.ID, &platform, &v.Name, &metadataJSON, &v.LastSeenAt); err != nil {
			return nil, err
		}
		v.Platform = platform

		var metadata map[string]any
		if err := unmarshalJSON(metadataJSON, &metadata); err != nil {
			return nil, err
		}
		if vendor, ok := metadata["vendor_name"].(string); ok {
			v.VendorName = vendor
		}
		if fp, ok := metadata["credential_fingerprint"].(string); ok {
			v.CredentialFingerprint = fp
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range views {
		providers, err := s.aiProvidersForAutomation(ctx, organizationID, views[i].ID)
		if err != nil {
			return nil, err
		}
		views[i].AIProviders = providers
	}
	return views, nil
}

func (s *Store) aiProvidersForAutomation(ctx context.Context, organizationID, automationID string) ([]connectors.AIProvider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT evidence FROM detection_patterns
		WHERE organization_id = $1 AND automation_id = $2 AND type = $3
	`, organizationID, automationID, "ai_provider_call")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []connectors.AIProvider
	for rows.Next() {
		var evidenceJSON []byte
		if err := rows.Scan(&evidenceJSON); err != nil {
			return nil, err
		}
		var evidence struct {
			Provider connectors.AIProvider `json:"provider"`
		}
		if err := unmarshalJSON(evidenceJSON, &evidence); err != nil {
			return nil, err
		}
		if evidence.Provider != "" {
			out = append(out, evidence.Provider)
		}
	}
	return out, rows.Err()
}

// InvalidateChainsTouching satisfies correlator.Store: deletes every
// CorrelationChain referencing any of automationIDs, implementing §4.8's
// "re-running invalidates prior chains touching changed automations before
// writing replacements".
func (s *Store) InvalidateChainsTouching(ctx context.Context, organizationID string, automationIDs []string) error {
	if len(automationIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM correlation_chains
		WHERE organization_id = $1 AND automation_ids && $2
	`, organizationID, pq.Array(automationIDs))
	return err
}

// SaveChains satisfies correlator.Store.
func (s *Store) SaveChains(ctx context.Context, chains []correlation.CorrelationChain) error {
	if len(chains) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO correlation_chains
			(id, organization_id, automation_ids, links, confidence, cross_platform_chain, risk_score, window_start, window_end, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chains {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.DetectedAt.IsZero() {
			c.DetectedAt = time.Now().UTC()
		}
		linksJSON, err := marshalJSON(c.Links)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.OrganizationID, pq.Array(c.AutomationIDs), linksJSON, c.Confidence,
			c.CrossPlatformChain, c.RiskScore, c.WindowStart, c.WindowEnd, c.DetectedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
