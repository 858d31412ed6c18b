package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shadowtrace/discovery-platform/internal/domain/organization"
)

// --- organizations ----------------------------------------------------------

func (s *Store) CreateOrganization(ctx context.Context, org organization.Organization) (organization.Organization, error) {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	org.CreatedAt, org.UpdatedAt = now, now

	settingsJSON, err := marshalJSON(org.Settings)
	if err != nil {
		return organization.Organization{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, tier, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, org.ID, org.Name, org.Tier, settingsJSON, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return organization.Organization{}, err
	}
	return org, nil
}

func (s *Store) UpdateOrganization(ctx context.Context, org organization.Organization) (organization.Organization, error) {
	existing, err := s.GetOrganization(ctx, org.ID)
	if err != nil {
		return organization.Organization{}, err
	}
	org.CreatedAt = existing.CreatedAt
	org.UpdatedAt = time.Now().UTC()

	settingsJSON, err := marshalJSON(org.Settings)
	if err != nil {
		return organization.Organization{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET name = $2, tier = $3, settings = $4, updated_at = $5
		WHERE id = $1
	`, org.ID, org.Name, org.Tier, settingsJSON, org.UpdatedAt)
	if err != nil {
		return organization.Organization{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return organization.Organization{}, sql.ErrNoRows
	}
	return org, nil
}

// GetOrganization satisfies detectors.Store.
func (s *Store) GetOrganization(ctx context.Context, organizationID string) (organization.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, tier, settings, created_at, updated_at
		FROM organizations WHERE id = $1
	`, organizationID)
	return scanOrganization(row)
}

// ListOrganizations satisfies discoveryengine.OrgConnectionLister.
func (s *Store) ListOrganizations(ctx context.Context) ([]organization.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, tier, settings, created_at, updated_at FROM organizations ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []organization.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (organization.Organization, error) {
	var org organization.Organization
	var settingsJSON []byte
	err := row.Scan(&org.ID, &org.Name, &org.Tier, &settingsJSON, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return organization.Organization{}, err
	}
	if err != nil {
		return organization.Organization{}, err
	}
	if err := unmarshalJSON(settingsJSON, &org.Settings); err != nil {
		return organization.Organization{}, err
	}
	return org, nil
}
