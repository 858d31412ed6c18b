package workerapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/discoveryengine"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
	svcerrors "github.com/shadowtrace/discovery-platform/internal/platform/errors"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
	"github.com/shadowtrace/discovery-platform/internal/serviceauth"
)

type fakeTrigger struct {
	runID string
	err   error

	gotOrganizationID string
	gotConnectionID   string
	gotTrigger        discovery.Trigger
}

func (f *fakeTrigger) TriggerRun(ctx context.Context, organizationID, connectionID string, opts discoveryengine.TriggerOptions) (string, error) {
	f.gotOrganizationID = organizationID
	f.gotConnectionID = connectionID
	f.gotTrigger = opts.Trigger
	return f.runID, f.err
}

func testValidator(t *testing.T, allowed ...string) (*serviceauth.Validator, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v, err := serviceauth.NewValidator(serviceauth.Config{PublicKey: &key.PublicKey, AllowedServices: allowed})
	require.NoError(t, err)
	return v, key
}

func serviceToken(t *testing.T, key *rsa.PrivateKey, serviceID string) string {
	t.Helper()
	gen := serviceauth.NewServiceTokenGenerator(key, serviceID, time.Hour)
	token, err := gen.GenerateToken()
	require.NoError(t, err)
	return token
}

func TestHandleTriggerRunSucceeds(t *testing.T) {
	validator, key := testValidator(t, "api")
	trigger := &fakeTrigger{runID: "run-123"}
	s := New(trigger, validator, logging.New("workerapi-test", "error", "json"), ":0")

	body, _ := json.Marshal(map[string]string{"organizationId": "org-1"})
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/discovery-runs/conn-1", bytes.NewReader(body))
	req.Header.Set(serviceauth.ServiceTokenHeader, serviceToken(t, key, "api"))
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "org-1", trigger.gotOrganizationID)
	require.Equal(t, "conn-1", trigger.gotConnectionID)
	require.Equal(t, discovery.TriggerManual, trigger.gotTrigger)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "run-123", resp["runId"])
}

func TestHandleTriggerRunRejectsMissingOrganizationID(t *testing.T) {
	validator, key := testValidator(t, "api")
	trigger := &fakeTrigger{runID: "run-123"}
	s := New(trigger, validator, logging.New("workerapi-test", "error", "json"), ":0")

	body, _ := json.Marshal(map[string]string{})
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/discovery-runs/conn-1", bytes.NewReader(body))
	req.Header.Set(serviceauth.ServiceTokenHeader, serviceToken(t, key, "api"))
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTriggerRunPropagatesEngineError(t *testing.T) {
	validator, key := testValidator(t, "api")
	trigger := &fakeTrigger{err: svcerrors.Conflict("a discovery run is already in progress for this connection")}
	s := New(trigger, validator, logging.New("workerapi-test", "error", "json"), ":0")

	body, _ := json.Marshal(map[string]string{"organizationId": "org-1"})
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/discovery-runs/conn-1", bytes.NewReader(body))
	req.Header.Set(serviceauth.ServiceTokenHeader, serviceToken(t, key, "api"))
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleTriggerRunRejectsRequestsWithoutServiceToken(t *testing.T) {
	validator, _ := testValidator(t, "api")
	trigger := &fakeTrigger{}
	s := New(trigger, validator, logging.New("workerapi-test", "error", "json"), ":0")

	body, _ := json.Marshal(map[string]string{"organizationId": "org-1"})
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/discovery-runs/conn-1", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleTriggerRunRejectsDisallowedServiceIdentity(t *testing.T) {
	validator, key := testValidator(t, "api")
	trigger := &fakeTrigger{}
	s := New(trigger, validator, logging.New("workerapi-test", "error", "json"), ":0")

	body, _ := json.Marshal(map[string]string{"organizationId": "org-1"})
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/discovery-runs/conn-1", bytes.NewReader(body))
	req.Header.Set(serviceauth.ServiceTokenHeader, serviceToken(t, key, "attacker"))
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleHealthIsUnauthenticated(t *testing.T) {
	validator, _ := testValidator(t, "api")
	s := New(&fakeTrigger{}, validator, logging.New("workerapi-test", "error", "json"), ":0")

	req := httptest.NewRequest(http.MethodGet, "/internal/health", nil)
	rec := httptest.NewRecorder()

	s.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "ok", resp["status"])
}
