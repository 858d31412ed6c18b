package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/shadowtrace/discovery-platform/internal/domain/audit"
)

// AppendAuditEntry writes one append-only audit record. Audit rows are
// never updated or deleted by application code.
func (s *Store) AppendAuditEntry(ctx context.Context, entry audit.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	detailsJSON, err := marshalJSON(entry.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log_entries (id, organization_id, actor_user_id, action, resource_type, resource_id, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.OrganizationID, toNullString(entry.ActorUserID), entry.Action, entry.ResourceType,
		toNullString(entry.ResourceID), detailsJSON, toNullString(entry.IPAddress), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditEntries(ctx context.Context, organizationID string, since time.Time, limit int) ([]audit.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, actor_user_id, action, resource_type, resource_id, details, ip_address, created_at
		FROM audit_log_entries
		WHERE organization_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, organizationID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.AuditLogEntry
	for rows.Next() {
		var e audit.AuditLogEntry
		var actorUserID, resourceID, ipAddress sql.NullString
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.OrganizationID, &actorUserID, &e.Action, &e.ResourceType, &resourceID, &detailsJSON, &ipAddress, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorUserID = fromNullString(actorUserID)
		e.ResourceID = fromNullString(resourceID)
		e.IPAddress = fromNullString(ipAddress)
		if err := unmarshalJSON(detailsJSON, &e.Details); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
