package detectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/platform/ratelimit"
)

// HTTPQualitativeClient is the concrete QualitativeClient wired in by
// cmd/api and cmd/worker when VALIDATOR_ENABLED is set: a bearer-authenticated
// POST to an operator-configured endpoint, matching the request/response
// shape connectors' own OAuth adapters use for their upstream calls.
type HTTPQualitativeClient struct {
	endpoint   string
	apiKey     string
	maxCostUSD float64
	client     *ratelimit.LimitedClient
}

// NewHTTPQualitativeClient constructs a client against endpoint, authenticated
// with apiKey as a bearer token. maxCostUSD travels with every request so the
// endpoint can reject or degrade a call that would exceed the run's budget
// on its own side; this process does not meter spend itself.
func NewHTTPQualitativeClient(endpoint, apiKey string, maxCostUSD float64) *HTTPQualitativeClient {
	return &HTTPQualitativeClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		maxCostUSD: maxCostUSD,
		client:     ratelimit.NewLimitedClient(&http.Client{Timeout: 20 * time.Second}, ratelimit.DefaultConfig()),
	}
}

type qualitativeRequest struct {
	Descriptor string  `json:"descriptor"`
	MaxCostUSD float64 `json:"max_cost_usd"`
}

func (c *HTTPQualitativeClient) Evaluate(ctx context.Context, descriptor string) (QualitativeVerdict, error) {
	body, err := json.Marshal(qualitativeRequest{Descriptor: descriptor, MaxCostUSD: c.maxCostUSD})
	if err != nil {
		return QualitativeVerdict{}, fmt.Errorf("encode qualitative request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return QualitativeVerdict{}, fmt.Errorf("build qualitative request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return QualitativeVerdict{}, fmt.Errorf("qualitative request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return QualitativeVerdict{}, fmt.Errorf("qualitative endpoint returned status %d", resp.StatusCode)
	}

	var verdict QualitativeVerdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return QualitativeVerdict{}, fmt.Errorf("decode qualitative response: %w", err)
	}
	return verdict, nil
}
