package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/discoveryengine"
	svcerrors "github.com/shadowtrace/discovery-platform/internal/platform/errors"
	"github.com/shadowtrace/discovery-platform/internal/serviceauth"
)

// WorkerClient forwards discovery-trigger requests to the separate worker
// process over the internal HTTP contract described in §11.bis, signing
// every call with a ServiceToken minted for the "api" identity. It
// implements DiscoveryTrigger alongside *discoveryengine.Engine so
// cmd/api can switch between in-process and split deployments without
// touching any handler.
type WorkerClient struct {
	baseURL string
	client  *http.Client
}

// NewWorkerClient builds a WorkerClient. generator mints the ServiceTokens
// the worker's serviceauth.Validator middleware checks.
func NewWorkerClient(baseURL string, generator *serviceauth.ServiceTokenGenerator) *WorkerClient {
	return &WorkerClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: serviceauth.NewServiceTokenRoundTripper(nil, generator),
		},
	}
}

type triggerRunResponse struct {
	RunID string `json:"runId"`
}

// TriggerRun implements DiscoveryTrigger by POSTing to the worker's
// /internal/v1/discovery-runs/{connectionId} endpoint.
func (c *WorkerClient) TriggerRun(ctx context.Context, organizationID, connectionID string, opts discoveryengine.TriggerOptions) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"organizationId": organizationID,
		"trigger":        opts.Trigger,
	})
	if err != nil {
		return "", svcerrors.Internal("encode discovery trigger request", err)
	}

	url := fmt.Sprintf("%s/internal/v1/discovery-runs/%s", c.baseURL, connectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", svcerrors.Internal("build discovery trigger request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", svcerrors.UpstreamUnavailable("worker", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return "", svcerrors.Conflict("a discovery run is already in progress for this connection")
	}
	if resp.StatusCode >= 300 {
		return "", svcerrors.UpstreamUnavailable("worker", fmt.Errorf("worker returned status %d", resp.StatusCode))
	}

	var out triggerRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", svcerrors.Internal("decode discovery trigger response", err)
	}
	return out.RunID, nil
}
