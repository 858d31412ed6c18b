package api

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
)

// oauthStateTTL bounds how long an authorization URL remains redeemable,
// wide enough to cover a slow identity-provider consent screen.
const oauthStateTTL = 10 * time.Minute

// oauthStateSigner mints and verifies the stateless OAuth "state" parameter
// §4.11.bis's authorize/callback pair needs. The schema carries no
// oauth_states table, so the organization id and platform travel inside the
// state itself, HMAC-signed against forgery and bound to an expiry.
type oauthStateSigner struct {
	secret []byte
}

func newOAuthStateSigner(secret string) *oauthStateSigner {
	return &oauthStateSigner{secret: []byte(secret)}
}

func (o *oauthStateSigner) sign(organizationID string, platform connection.Platform) (string, error) {
	return o.signWithTTL(organizationID, platform, oauthStateTTL)
}

func (o *oauthStateSigner) signWithTTL(organizationID string, platform connection.Platform, ttl time.Duration) (string, error) {
	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	expiresAt := time.Now().UTC().Add(ttl).Unix()
	payload := strings.Join([]string{
		organizationID,
		string(platform),
		strconv.FormatInt(expiresAt, 10),
		hex.EncodeToString(nonce),
	}, "|")

	mac := hmac.New(sha256.New, o.secret)
	mac.Write([]byte(payload))
	sig := mac.Sum(nil)

	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + hex.EncodeToString(sig), nil
}

func (o *oauthStateSigner) verify(state string) (organizationID string, platform connection.Platform, err error) {
	parts := strings.SplitN(state, ".", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed state")
	}
	rawPayload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", "", fmt.Errorf("malformed state payload")
	}
	wantSig, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", "", fmt.Errorf("malformed state signature")
	}

	mac := hmac.New(sha256.New, o.secret)
	mac.Write(rawPayload)
	gotSig := mac.Sum(nil)
	if subtle.ConstantTimeCompare(wantSig, gotSig) != 1 {
		return "", "", fmt.Errorf("state signature mismatch")
	}

	fields := strings.Split(string(rawPayload), "|")
	if len(fields) != 4 {
		return "", "", fmt.Errorf("malformed state fields")
	}
	expiresAt, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return "", "", fmt.Errorf("malformed state expiry")
	}
	if time.Now().UTC().Unix() > expiresAt {
		return "", "", fmt.Errorf("state expired")
	}

	return fields[0], connection.Platform(fields[1]), nil
}
