package connectors

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/shadowtrace/discovery-platform/internal/platform/ratelimit"
)

const maxOAuthJSONResponseBytes = 256 << 10 // 256KiB

// errorBodyMessagePaths are the gjson paths each connected platform uses for
// a human-readable error message in a non-200 JSON body. Slack, Microsoft
// Graph, and Google each shape error envelopes differently, so a single
// strict struct can't decode all three; a path lookup on the raw bytes
// avoids defining one throwaway error struct per platform just to surface a
// message in logs.
var errorBodyMessagePaths = []string{"error.message", "error_description", "error"}

// extractErrorMessage pulls a best-effort human-readable message out of a
// non-200 JSON error body without requiring a platform-specific struct.
func extractErrorMessage(body []byte) string {
	for _, path := range errorBodyMessagePaths {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}

// generateState produces a CSRF state token for the OAuth authorization-code
// flow, generalized from the teacher's cookie-bound state generation.
func generateState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("state-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// readJSONStrict reads r up to maxOAuthJSONResponseBytes and unmarshals into
// out, failing closed rather than risking unbounded memory use on a
// misbehaving upstream.
func readJSONStrict(r io.Reader, out any) error {
	limited := io.LimitReader(r, maxOAuthJSONResponseBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > maxOAuthJSONResponseBytes {
		return fmt.Errorf("response body exceeds %d bytes", maxOAuthJSONResponseBytes)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// postForm exchanges an authorization code or refresh token with a token
// endpoint using application/x-www-form-urlencoded, mirroring the teacher's
// Google/GitHub token-exchange requests.
func postForm(ctx context.Context, client *ratelimit.LimitedClient, endpoint string, values url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxOAuthJSONResponseBytes))
		if msg := extractErrorMessage(body); msg != "" {
			return fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}
	return readJSONStrict(resp.Body, out)
}

// getBearer issues an authenticated GET request and decodes a JSON response.
func getBearer(ctx context.Context, client *ratelimit.LimitedClient, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxOAuthJSONResponseBytes))
		if msg := extractErrorMessage(body); msg != "" {
			return fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return readJSONStrict(resp.Body, out)
}

func defaultLimitedClient() *ratelimit.LimitedClient {
	return ratelimit.NewLimitedClient(&http.Client{Timeout: 15 * time.Second}, ratelimit.DefaultConfig())
}
