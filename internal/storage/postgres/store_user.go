package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shadowtrace/discovery-platform/internal/domain/user"
)

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.OrganizationID, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email, password_hash, role, created_at FROM users WHERE id = $1
	`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, organizationID, email string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email, password_hash, role, created_at
		FROM users WHERE organization_id = $1 AND email = $2
	`, organizationID, email)
	return scanUser(row)
}

// GetUserByEmailAnyOrg resolves a user for login requests, which carry only
// an email and no organization id. Email is unique per organization, not
// globally, so a shared address across two organizations resolves to
// whichever was created first; operators onboarding such a case should issue
// separate emails per organization.
func (s *Store) GetUserByEmailAnyOrg(ctx context.Context, email string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email, password_hash, role, created_at
		FROM users WHERE email = $1 ORDER BY created_at ASC LIMIT 1
	`, email)
	return scanUser(row)
}

func scanUser(row rowScanner) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, err
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) CreateSession(ctx context.Context, sess user.Session) (user.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sess.CreatedAt, sess.LastActiveAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, created_at, last_active_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sess.ID, sess.UserID, sess.TokenHash, sess.CreatedAt, sess.LastActiveAt, sess.ExpiresAt)
	if err != nil {
		return user.Session{}, err
	}
	return sess, nil
}

// GetSessionByTokenHash looks up a session by its token hash, the form
// every bearer-token request carries (raw tokens never touch storage).
func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (user.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, created_at, last_active_at, expires_at
		FROM sessions WHERE token_hash = $1
	`, tokenHash)
	var sess user.Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.CreatedAt, &sess.LastActiveAt, &sess.ExpiresAt)
	if err != nil {
		return user.Session{}, err
	}
	return sess, nil
}

func (s *Store) TouchSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_active_at = now() WHERE id = $1`, sessionID)
	return err
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	return err
}

func (s *Store) CreateAPIKey(ctx context.Context, key user.APIKey) (user.APIKey, error) {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	key.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, organization_id, user_id, key_hash, label, last_used_at, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, key.ID, key.OrganizationID, key.UserID, key.KeyHash, key.Label, toNullTimePtr(key.LastUsedAt), toNullTimePtr(key.RevokedAt), key.CreatedAt)
	if err != nil {
		return user.APIKey{}, err
	}
	return key, nil
}

// GetAPIKeyByHash satisfies the API Surface's auth middleware, which tries
// the API-key path before falling back to session bearer tokens.
func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (user.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, user_id, key_hash, label, last_used_at, revoked_at, created_at
		FROM api_keys WHERE key_hash = $1
	`, keyHash)
	return scanAPIKey(row)
}

func (s *Store) ListAPIKeysForUser(ctx context.Context, userID string) ([]user.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, user_id, key_hash, label, last_used_at, revoked_at, created_at
		FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []user.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) RevokeAPIKey(ctx context.Context, keyID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET revoked_at = now() WHERE id = $1`, keyID)
	return err
}

func (s *Store) TouchAPIKeyLastUsed(ctx context.Context, keyID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, keyID)
	return err
}

func scanAPIKey(row rowScanner) (user.APIKey, error) {
	var k user.APIKey
	var lastUsedAt, revokedAt sql.NullTime
	err := row.Scan(&k.ID, &k.OrganizationID, &k.UserID, &k.KeyHash, &k.Label, &lastUsedAt, &revokedAt, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.APIKey{}, err
	}
	if err != nil {
		return user.APIKey{}, err
	}
	k.LastUsedAt = fromNullTimePtr(lastUsedAt)
	k.RevokedAt = fromNullTimePtr(revokedAt)
	return k, nil
}
