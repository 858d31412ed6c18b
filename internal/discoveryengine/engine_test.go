package discoveryengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/connectors"
	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
	svcerrors "github.com/shadowtrace/discovery-platform/internal/platform/errors"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
)

type fakeConnectionLookup struct {
	conn connection.PlatformConnection
	err  error
}

func (f *fakeConnectionLookup) GetConnection(ctx context.Context, organizationID, connectionID string) (connection.PlatformConnection, error) {
	return f.conn, f.err
}

type fakeEngineStore struct {
	createRunErr error
	createdRuns  []*discovery.DiscoveryRun
}

func (f *fakeEngineStore) CreateRun(ctx context.Context, run *discovery.DiscoveryRun) error {
	if f.createRunErr != nil {
		return f.createRunErr
	}
	f.createdRuns = append(f.createdRuns, run)
	return nil
}

func (f *fakeEngineStore) UpdateRunStatus(ctx context.Context, runID string, status discovery.RunStatus, automationsFound int, errMessage string) error {
	return nil
}

func (f *fakeEngineStore) UpsertAutomation(ctx context.Context, automation *discovery.DiscoveredAutomation) (string, bool, error) {
	return automation.ID, true, nil
}

func (f *fakeEngineStore) SoftExpireStale(ctx context.Context, organizationID, connectionID string, runStartedAt time.Time, graceWindow time.Duration) error {
	return nil
}

func (f *fakeEngineStore) RecordActivitySample(ctx context.Context, organizationID, automationID string, sample ActivitySample) error {
	return nil
}

func newTestEngine(connLookup ConnectionLookup, store Store) *Engine {
	return New(connLookup, connectors.NewRegistry(), nil, store, nil, nil, nil, logging.New("engine-test", "error", "json"), nil)
}

func TestTriggerRunReturnsConflictWhenAlreadyRunning(t *testing.T) {
	store := &fakeEngineStore{}
	lookup := &fakeConnectionLookup{conn: connection.PlatformConnection{ID: "conn-1", OrganizationID: "org-1", Platform: connection.PlatformSlack}}
	e := newTestEngine(lookup, store)

	require.True(t, e.acquireLock("conn-1"))

	_, err := e.TriggerRun(context.Background(), "org-1", "conn-1", TriggerOptions{Trigger: discovery.TriggerManual})
	require.Error(t, err)
	require.True(t, svcerrors.IsServiceError(err))
	require.Empty(t, store.createdRuns)
}

func TestTriggerRunReturnsErrorWhenConnectionLookupFails(t *testing.T) {
	store := &fakeEngineStore{}
	lookup := &fakeConnectionLookup{err: svcerrors.NotFound("connection", "conn-1")}
	e := newTestEngine(lookup, store)

	_, err := e.TriggerRun(context.Background(), "org-1", "conn-1", TriggerOptions{Trigger: discovery.TriggerManual})
	require.Error(t, err)
	require.Empty(t, store.createdRuns)

	// Lock must be released on failure so a retry is not permanently blocked.
	require.True(t, e.acquireLock("conn-1"))
}

func TestTriggerRunReturnsErrorWhenCreateRunFails(t *testing.T) {
	store := &fakeEngineStore{createRunErr: svcerrors.Internal("insert failed", nil)}
	lookup := &fakeConnectionLookup{conn: connection.PlatformConnection{ID: "conn-1", OrganizationID: "org-1", Platform: connection.PlatformSlack}}
	e := newTestEngine(lookup, store)

	_, err := e.TriggerRun(context.Background(), "org-1", "conn-1", TriggerOptions{Trigger: discovery.TriggerManual})
	require.Error(t, err)

	require.True(t, e.acquireLock("conn-1"))
}

func TestNoopPublisherDiscardsEvents(t *testing.T) {
	err := NoopPublisher{}.Publish(context.Background(), "org-1", "discovery.started", map[string]any{"run_id": "r1"})
	require.NoError(t, err)
}
