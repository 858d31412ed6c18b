package api

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const apiKeyPrefix = "sdp_"

// generateAPIKeySecret mints a fresh API key's raw secret. Only its sha256
// hash (see hashToken) is ever persisted; the caller sees the raw value
// exactly once, at creation time.
func generateAPIKeySecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key secret: %w", err)
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
