package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
)

func (s *Store) CreateConnection(ctx context.Context, conn connection.PlatformConnection) (connection.PlatformConnection, error) {
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conn.CreatedAt, conn.UpdatedAt = now, now
	if conn.State == "" {
		conn.State = connection.StatePendingAuth
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_connections
			(id, organization_id, platform, state, display_name, external_account_id, last_sync_at, last_error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, conn.ID, conn.OrganizationID, conn.Platform, conn.State, conn.DisplayName, conn.ExternalAccountID,
		toNullTimePtr(conn.LastSyncAt), toNullString(conn.LastErrorMessage), conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		return connection.PlatformConnection{}, err
	}
	return conn, nil
}

// GetConnection satisfies connmgr.Store and discoveryengine.ConnectionLookup.
func (s *Store) GetConnection(ctx context.Context, organizationID, connectionID string) (connection.PlatformConnection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, platform, state, display_name, external_account_id, last_sync_at, last_error_message, created_at, updated_at
		FROM platform_connections
		WHERE organization_id = $1 AND id = $2
	`, organizationID, connectionID)
	return scanConnection(row)
}

// ListNonRevoked satisfies connmgr.Store: the candidate pool the Connection
// Manager's health-check ticker sweeps every cycle.
func (s *Store) ListNonRevoked(ctx context.Context) ([]connection.PlatformConnection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, platform, state, display_name, external_account_id, last_sync_at, last_error_message, created_at, updated_at
		FROM platform_connections
		WHERE state <> $1
		ORDER BY created_at
	`, connection.StateRevoked)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConnections(rows)
}

// ListConnectionsForOrganization satisfies discoveryengine.OrgConnectionLister.
func (s *Store) ListConnectionsForOrganization(ctx context.Context, organizationID string) ([]connection.PlatformConnection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, platform, state, display_name, external_account_id, last_sync_at, last_error_message, created_at, updated_at
		FROM platform_connections
		WHERE organization_id = $1
		ORDER BY created_at
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConnections(rows)
}

// TransitionState satisfies connmgr.Store: persists a state change and its
// side-effect fields in one statement so a reader never observes a
// half-applied transition.
func (s *Store) TransitionState(ctx context.Context, organizationID, connectionID string, newState connection.State, errMessage string) error {
	var lastSyncExpr string
	if newState == connection.StateActive {
		lastSyncExpr = "now()"
	} else {
		lastSyncExpr = "last_sync_at"
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE platform_connections
		SET state = $3, last_error_message = $4, last_sync_at = `+lastSyncExpr+`, updated_at = now()
		WHERE organization_id = $1 AND id = $2
	`, organizationID, connectionID, newState, toNullString(errMessage))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanConnections(rows *sql.Rows) ([]connection.PlatformConnection, error) {
	var out []connection.PlatformConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

func scanConnection(row rowScanner) (connection.PlatformConnection, error) {
	var conn connection.PlatformConnection
	var lastSyncAt sql.NullTime
	var lastErrorMessage sql.NullString
	err := row.Scan(&conn.ID, &conn.OrganizationID, &conn.Platform, &conn.State, &conn.DisplayName, &conn.ExternalAccountID,
		&lastSyncAt, &lastErrorMessage, &conn.CreatedAt, &conn.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return connection.PlatformConnection{}, err
	}
	if err != nil {
		return connection.PlatformConnection{}, err
	}
	conn.LastSyncAt = fromNullTimePtr(lastSyncAt)
	conn.LastErrorMessage = fromNullString(lastErrorMessage)
	return conn, nil
}
