// Package credential models the envelope-encrypted secrets a connection
// needs to call its platform (SPEC_FULL §3, §4.1).
package credential

import "time"

// Kind distinguishes the shape of secret material held for a connection.
type Kind string

const (
	KindOAuthToken Kind = "oauth_token"
	KindAPIKey     Kind = "api_key"
)

// EncryptedCredentials is the at-rest representation of a connection's
// secret material — never holds plaintext (I2). The vault is the only
// package permitted to populate or consume Ciphertext/Nonce/WrappedDEK.
type EncryptedCredentials struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organizationId" db:"organization_id"`
	ConnectionID   string    `json:"connectionId" db:"connection_id"`
	Kind           Kind      `json:"kind" db:"kind"`
	Ciphertext     []byte    `json:"-" db:"ciphertext"`
	Nonce          []byte    `json:"-" db:"nonce"`
	WrappedDEK     []byte    `json:"-" db:"wrapped_dek"`
	KeyVersion     int       `json:"keyVersion" db:"key_version"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// OAuthTokenPayload is the plaintext JSON shape sealed inside Ciphertext
// for Kind == KindOAuthToken.
type OAuthTokenPayload struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// APIKeyPayload is the plaintext JSON shape sealed inside Ciphertext for
// Kind == KindAPIKey (used by the generic ai_platform adapter).
type APIKeyPayload struct {
	APIKey string `json:"apiKey"`
}
