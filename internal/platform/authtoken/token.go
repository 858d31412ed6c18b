// Package authtoken issues and validates the HS256 session bearer tokens the
// API Surface's auth middleware and the Real-Time Hub's first-message
// handshake both accept, generalizing the teacher's Supabase HS256 JWT
// validator (internal/app/httpapi/auth.go) from a third-party-issued token
// to one the platform itself mints at login.
package authtoken

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shadowtrace/discovery-platform/internal/domain/user"
)

// SessionDuration is how long a minted session bearer token remains valid
// before the client must re-authenticate.
const SessionDuration = 24 * time.Hour

// Claims is the session token's payload: enough to bind a Real-Time Hub
// connection to an organization and derive its subscription profile
// (§4.9) without a database round trip on every message.
type Claims struct {
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	Role           user.Role `json:"role"`
	jwt.RegisteredClaims
}

// Signer mints and validates session tokens against one HMAC secret.
type Signer struct {
	secret []byte
}

// NewSigner builds a Signer from the configured JWT_SESSION_SECRET.
func NewSigner(secret string) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("session jwt secret must not be empty")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Issue mints a signed session token for a successfully authenticated user.
func (s *Signer) Issue(u user.User) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID:         u.ID,
		OrganizationID: u.OrganizationID,
		Role:           u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionDuration)),
			Subject:   u.ID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates a session token's signature and expiry and returns its
// claims. Matches the taxonomy the Real-Time Hub's handshake reports
// (§4.9: INVALID_TOKEN on any verification failure).
func (s *Signer) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("token is empty")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UserID == "" || claims.OrganizationID == "" {
		return nil, fmt.Errorf("token missing required claims")
	}
	return claims, nil
}
