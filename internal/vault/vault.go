package vault

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	svcerrors "github.com/shadowtrace/discovery-platform/internal/platform/errors"
	"github.com/shadowtrace/discovery-platform/internal/domain/credential"
)

const envelopeInfo = "shadowtrace:connection_credentials:v1"

// Vault is the Credential Vault (SPEC_FULL §4.1). It never returns or logs
// plaintext; callers receive decrypted payloads only from Get, and those
// payloads must not be passed to a logger.
type Vault struct {
	db        *sql.DB
	keySource *KeySource
}

// New constructs a Vault bound to a database connection and key source.
func New(db *sql.DB, keySource *KeySource) *Vault {
	return &Vault{db: db, keySource: keySource}
}

// Put seals creds for conn and inserts or replaces the current version,
// returning the new key version. The ciphertext is bound to connectionID as
// additional authenticated data (I2).
func (v *Vault) Put(ctx context.Context, organizationID, connectionID string, kind credential.Kind, payload any) (int, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return 0, svcerrors.Internal("marshal credential payload", err)
	}

	masterKey, err := v.keySource.MasterKey(ctx)
	if err != nil {
		return 0, svcerrors.KeyUnavailable(err)
	}

	ciphertext, nonce, err := encryptEnvelope(masterKey, []byte(connectionID), envelopeInfo, plaintext)
	if err != nil {
		return 0, svcerrors.Internal("seal credential", err)
	}

	const query = `
		INSERT INTO encrypted_credentials (id, organization_id, connection_id, kind, ciphertext, nonce, wrapped_dek, key_version, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, '', 1, now(), now())
		ON CONFLICT (connection_id)
		DO UPDATE SET kind = EXCLUDED.kind, ciphertext = EXCLUDED.ciphertext, nonce = EXCLUDED.nonce,
			key_version = encrypted_credentials.key_version + 1, updated_at = now()
		RETURNING key_version`

	var keyVersion int
	if err := v.db.QueryRowContext(ctx, query, organizationID, connectionID, kind, ciphertext, nonce).Scan(&keyVersion); err != nil {
		return 0, svcerrors.Internal("store credential", err)
	}
	return keyVersion, nil
}

// Get fetches and decrypts the current credentials for a connection,
// unmarshalling into out (a pointer to credential.OAuthTokenPayload or
// credential.APIKeyPayload).
func (v *Vault) Get(ctx context.Context, organizationID, connectionID string, out any) error {
	const query = `
		SELECT ciphertext FROM encrypted_credentials
		WHERE organization_id = $1 AND connection_id = $2`

	var ciphertext []byte
	err := v.db.QueryRowContext(ctx, query, organizationID, connectionID).Scan(&ciphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return svcerrors.NotFound("credential", connectionID)
	}
	if err != nil {
		return svcerrors.Internal("fetch credential", err)
	}

	masterKey, err := v.keySource.MasterKey(ctx)
	if err != nil {
		return svcerrors.KeyUnavailable(err)
	}

	plaintext, err := decryptEnvelope(masterKey, []byte(connectionID), envelopeInfo, ciphertext)
	if err != nil {
		return svcerrors.DecryptionFailure(connectionID, err)
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return svcerrors.Internal("unmarshal credential payload", err)
	}
	return nil
}

// Rotate atomically replaces the ciphertext and bumps the key version
// within a single transaction, per §4.1's rotate(conn, new) contract.
func (v *Vault) Rotate(ctx context.Context, organizationID, connectionID string, kind credential.Kind, payload any) (int, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return 0, svcerrors.Internal("marshal rotated credential", err)
	}

	masterKey, err := v.keySource.MasterKey(ctx)
	if err != nil {
		return 0, svcerrors.KeyUnavailable(err)
	}

	ciphertext, nonce, err := encryptEnvelope(masterKey, []byte(connectionID), envelopeInfo, plaintext)
	if err != nil {
		return 0, svcerrors.Internal("seal rotated credential", err)
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, svcerrors.Internal("begin rotate transaction", err)
	}
	defer tx.Rollback()

	const query = `
		UPDATE encrypted_credentials
		SET kind = $3, ciphertext = $4, nonce = $5, key_version = key_version + 1, updated_at = now()
		WHERE organization_id = $1 AND connection_id = $2
		RETURNING key_version`

	var keyVersion int
	err = tx.QueryRowContext(ctx, query, organizationID, connectionID, kind, ciphertext, nonce).Scan(&keyVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, svcerrors.NotFound("credential", connectionID)
	}
	if err != nil {
		return 0, svcerrors.Internal("rotate credential", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, svcerrors.Internal("commit rotate transaction", err)
	}
	return keyVersion, nil
}

// Delete removes a connection's credentials entirely.
func (v *Vault) Delete(ctx context.Context, organizationID, connectionID string) error {
	res, err := v.db.ExecContext(ctx, `DELETE FROM encrypted_credentials WHERE organization_id = $1 AND connection_id = $2`, organizationID, connectionID)
	if err != nil {
		return svcerrors.Internal("delete credential", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return svcerrors.Internal("delete credential", err)
	}
	if rows == 0 {
		return svcerrors.NotFound("credential", connectionID)
	}
	return nil
}
