package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
)

// CreateRun satisfies discoveryengine.Store.
func (s *Store) CreateRun(ctx context.Context, run *discovery.DiscoveryRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discovery_runs (id, organization_id, connection_id, trigger, status, automations_found, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, run.ID, run.OrganizationID, run.ConnectionID, run.Trigger, run.Status, run.AutomationsFound,
		toNullString(run.ErrorMessage), run.StartedAt, toNullTimePtr(run.CompletedAt))
	return err
}

// UpdateRunStatus satisfies discoveryengine.Store.
func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status discovery.RunStatus, automationsFound int, errMessage string) error {
	var completedAt sql.NullTime
	if status == discovery.RunStatusCompleted || status == discovery.RunStatusFailed || status == discovery.RunStatusCancelled {
		completedAt = toNullTime(time.Now().UTC())
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE discovery_runs
		SET status = $2, automations_found = $3, error_message = $4, completed_at = $5
		WHERE id = $1
	`, runID, status, automationsFound, toNullString(errMessage), completedAt)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpsertAutomation satisfies discoveryengine.Store: inserts a new
// automation or refreshes the mutable fields of an existing one keyed by
// (connection_id, external_id), re-marking it active if it had previously
// been soft-expired.
func (s *Store) UpsertAutomation(ctx context.Context, automation *discovery.DiscoveredAutomation) (string, bool, error) {
	metadataJSON, err := marshalJSON(automation.Metadata)
	if err != nil {
		return "", false, err
	}

	var id string
	var created bool
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO discovered_automations
			(id, organization_id, connection_id, discovery_run_id, external_id, name, kind, owner_identity, metadata, is_active, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10, $10)
		ON CONFLICT (connection_id, external_id) DO UPDATE SET
			discovery_run_id = EXCLUDED.discovery_run_id,
			name             = EXCLUDED.name,
			kind             = EXCLUDED.kind,
			owner_identity   = EXCLUDED.owner_identity,
			metadata         = EXCLUDED.metadata,
			is_active        = true,
			last_seen_at     = EXCLUDED.last_seen_at
		RETURNING id, (xmax = 0)
	`, automation.ID, automation.OrganizationID, automation.ConnectionID, automation.DiscoveryRunID, automation.ExternalID,
		automation.Name, automation.Kind, toNullString(automation.OwnerIdentity), metadataJSON, automation.FirstSeenAt).
		Scan(&id, &created)
	if err != nil {
		return "", false, err
	}
	return id, created, nil
}

// SoftExpireStale satisfies discoveryengine.Store: marks automations on
// connectionID not touched by this run (last_seen_at older than
// runStartedAt - graceWindow) inactive, without deleting the row (§4.4).
func (s *Store) SoftExpireStale(ctx context.Context, organizationID, connectionID string, runStartedAt time.Time, graceWindow time.Duration) error {
	cutoff := runStartedAt.Add(-graceWindow)
	_, err := s.db.ExecContext(ctx, `
		UPDATE discovered_automations
		SET is_active = false
		WHERE organization_id = $1 AND connection_id = $2 AND is_active = true AND last_seen_at < $3
	`, organizationID, connectionID, cutoff)
	return err
}

func scanDiscoveredAutomation(row rowScanner) (discovery.DiscoveredAutomation, error) {
	var a discovery.DiscoveredAutomation
	var ownerIdentity sql.NullString
	var metadataJSON []byte
	err := row.Scan(&a.ID, &a.OrganizationID, &a.ConnectionID, &a.DiscoveryRunID, &a.ExternalID, &a.Name, &a.Kind,
		&ownerIdentity, &metadataJSON, &a.FirstSeenAt, &a.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return discovery.DiscoveredAutomation{}, err
	}
	if err != nil {
		return discovery.DiscoveredAutomation{}, err
	}
	a.OwnerIdentity = fromNullString(ownerIdentity)
	if err := unmarshalJSON(metadataJSON, &a.Metadata); err != nil {
		return discovery.DiscoveredAutomation{}, err
	}
	return a, nil
}

const automationColumns = `id, organization_id, connection_id, discovery_run_id, external_id, name, kind, owner_identity, metadata, first_seen_at, last_seen_at`
