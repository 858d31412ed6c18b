package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shadowtrace/discovery-platform/internal/detectors"
	"github.com/shadowtrace/discovery-platform/internal/discoveryengine"
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
)

// GetAutomation satisfies detectors.Store.
func (s *Store) GetAutomation(ctx context.Context, organizationID, automationID string) (discovery.DiscoveredAutomation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+automationColumns+`
		FROM discovered_automations
		WHERE organization_id = $1 AND id = $2
	`, organizationID, automationID)
	return scanDiscoveredAutomation(row)
}

// RecordActivitySample satisfies discoveryengine.Store: appends one
// activity-window observation, the raw material GetHistory and
// baselinesvc's EMA adaptation are built from.
func (s *Store) RecordActivitySample(ctx context.Context, organizationID, automationID string, sample discoveryengine.ActivitySample) error {
	scopesJSON, err := marshalStrings(sample.Scopes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO automation_activity_samples
			(id, organization_id, automation_id, observed_at, event_count, bytes_transferred, records_touched, scopes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.NewString(), organizationID, automationID, sample.Timestamp, sample.EventCount, sample.BytesTransferred, sample.RecordsTouched, scopesJSON)
	return err
}

// GetHistory satisfies detectors.Store, returning samples oldest first so
// every detector that assumes chronological ordering (velocity, timing
// variance, permission escalation) can rely on it.
func (s *Store) GetHistory(ctx context.Context, organizationID, automationID string, since time.Time) ([]detectors.HistoricalSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT observed_at, event_count, bytes_transferred, records_touched, scopes
		FROM automation_activity_samples
		WHERE organization_id = $1 AND automation_id = $2 AND observed_at >= $3
		ORDER BY observed_at ASC
	`, organizationID, automationID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []detectors.HistoricalSample
	for rows.Next() {
		var h detectors.HistoricalSample
		var scopesJSON []byte
		if err := rows.Scan(&h.Timestamp, &h.EventCount, &h.BytesTransferred, &h.RecordsTouched, &scopesJSON); err != nil {
			return nil, err
		}
		scopes, err := unmarshalStrings(scopesJSON)
		if err != nil {
			return nil, err
		}
		h.Scopes = scopes
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetExistingPatterns satisfies detectors.Store.
func (s *Store) GetExistingPatterns(ctx context.Context, organizationID, automationID string) ([]detection.DetectionPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, automation_id, type, severity, confidence, evidence, detected_at
		FROM detection_patterns
		WHERE organization_id = $1 AND automation_id = $2
		ORDER BY detected_at DESC
	`, organizationID, automationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []detection.DetectionPattern
	for rows.Next() {
		p, err := scanDetectionPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePatterns satisfies detectors.Store. Each call represents one
// detector run's full output for a batch of automations; patterns are
// append-only evidence, never updated in place.
func (s *Store) SavePatterns(ctx context.Context, patterns []detection.DetectionPattern) error {
	if len(patterns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO detection_patterns (id, organization_id, automation_id, type, severity, confidence, evidence, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range patterns {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.DetectedAt.IsZero() {
			p.DetectedAt = time.Now().UTC()
		}
		evidenceJSON, err := marshalJSON(p.Evidence)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.OrganizationID, p.AutomationID, p.Type, p.Severity, p.Confidence, evidenceJSON, p.DetectedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveRiskAssessment satisfies detectors.Store: upserts the single current
// assessment per automation (I4: recomputed whenever a contributing
// pattern or baseline deviation changes).
func (s *Store) SaveRiskAssessment(ctx context.Context, assessment detection.RiskAssessment) error {
	if assessment.ID == "" {
		assessment.ID = uuid.NewString()
	}
	if assessment.UpdatedAt.IsZero() {
		assessment.UpdatedAt = time.Now().UTC()
	}
	patternIDsJSON, err := marshalStrings(assessment.ContributingPatternIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, organization_id, automation_id, score, level, contributing_pattern_ids, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (automation_id) DO UPDATE SET
			score = EXCLUDED.score, level = EXCLUDED.level,
			contributing_pattern_ids = EXCLUDED.contributing_pattern_ids, updated_at = EXCLUDED.updated_at
	`, assessment.ID, assessment.OrganizationID, assessment.AutomationID, assessment.Score, assessment.Level, patternIDsJSON, assessment.UpdatedAt)
	return err
}

func scanDetectionPattern(rows *sql.Rows) (detection.DetectionPattern, error) {
	var p detection.DetectionPattern
	var evidenceJSON []byte
	err := rows.Scan(&p.ID, &p.OrganizationID, &p.AutomationID, &p.Type, &p.Severity, &p.Confidence, &evidenceJSON, &p.DetectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return detection.DetectionPattern{}, err
	}
	if err != nil {
		return detection.DetectionPattern{}, err
	}
	if err := unmarshalJSON(evidenceJSON, &p.Evidence); err != nil {
		return detection.DetectionPattern{}, err
	}
	return p, nil
}
