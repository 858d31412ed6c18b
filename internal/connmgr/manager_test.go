package connmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/connectors"
	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/credential"
	svcerrors "github.com/shadowtrace/discovery-platform/internal/platform/errors"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
)

type fakeRefreshAdapter struct {
	connectors.Adapter
	platform   connection.Platform
	refreshErr []error
	call       int
}

func (f *fakeRefreshAdapter) Platform() connection.Platform { return f.platform }

func (f *fakeRefreshAdapter) Refresh(ctx context.Context, creds credential.OAuthTokenPayload) (connectors.OAuthCredentials, error) {
	var err error
	if f.call < len(f.refreshErr) {
		err = f.refreshErr[f.call]
	}
	f.call++
	return connectors.OAuthCredentials{AccessToken: "new-token"}, err
}

type fakeTransitionStore struct {
	transitions []connection.State
}

func (f *fakeTransitionStore) ListNonRevoked(ctx context.Context) ([]connection.PlatformConnection, error) {
	return nil, nil
}

func (f *fakeTransitionStore) GetConnection(ctx context.Context, organizationID, connectionID string) (connection.PlatformConnection, error) {
	return connection.PlatformConnection{}, nil
}

func (f *fakeTransitionStore) TransitionState(ctx context.Context, organizationID, connectionID string, newState connection.State, errMessage string) error {
	f.transitions = append(f.transitions, newState)
	return nil
}

func TestRefreshRevokesImmediatelyOnInvalidGrantWithoutRetry(t *testing.T) {
	store := &fakeTransitionStore{}
	m := New(store, connectors.NewRegistry(), nil, logging.New("connmgr-test", "error", "json"), nil, 0)
	adapter := &fakeRefreshAdapter{platform: connection.PlatformSlack, refreshErr: []error{svcerrors.InvalidGrant("slack", errors.New("revoked"))}}
	conn := connection.PlatformConnection{ID: "conn-1", OrganizationID: "org-1", Platform: connection.PlatformSlack, State: connection.StateActive}

	m.refresh(context.Background(), conn, adapter, credential.OAuthTokenPayload{})

	require.Equal(t, 1, adapter.call) // no retry spent on a terminal error
	require.Equal(t, []connection.State{connection.StateRevoked}, store.transitions)
}

func TestRefreshRetriesTransientErrorAndRecoversToActive(t *testing.T) {
	store := &fakeTransitionStore{}
	m := New(store, connectors.NewRegistry(), nil, logging.New("connmgr-test", "error", "json"), nil, 0)
	m.retryPolicy.InitialBackoff = 0 // keep the test fast
	adapter := &fakeRefreshAdapter{
		platform: connection.PlatformSlack,
		refreshErr: []error{
			svcerrors.UpstreamUnavailable("slack", errors.New("timeout")),
		},
	}
	conn := connection.PlatformConnection{ID: "conn-1", OrganizationID: "org-1", Platform: connection.PlatformSlack, State: connection.StateDegraded}

	// Vault is nil, so a successful refresh would panic on Rotate; this case
	// only exercises the retry path succeeding on its second Refresh call,
	// short of the vault write.
	require.Panics(t, func() {
		m.refresh(context.Background(), conn, adapter, credential.OAuthTokenPayload{})
	})
	require.GreaterOrEqual(t, adapter.call, 2)
}

func TestRefreshDegradesAfterRetriesExhausted(t *testing.T) {
	store := &fakeTransitionStore{}
	m := New(store, connectors.NewRegistry(), nil, logging.New("connmgr-test", "error", "json"), nil, 0)
	m.retryPolicy.InitialBackoff = 0
	transientErr := svcerrors.UpstreamUnavailable("slack", errors.New("still down"))
	adapter := &fakeRefreshAdapter{
		platform:   connection.PlatformSlack,
		refreshErr: []error{transientErr, transientErr, transientErr, transientErr},
	}
	conn := connection.PlatformConnection{ID: "conn-1", OrganizationID: "org-1", Platform: connection.PlatformSlack, State: connection.StateActive}

	m.refresh(context.Background(), conn, adapter, credential.OAuthTokenPayload{})

	require.Equal(t, 1+m.retryPolicy.Attempts, adapter.call) // the initial call plus the retry policy's own attempts
	require.Equal(t, []connection.State{connection.StateDegraded}, store.transitions)
}

func TestDefaultRefreshRetryPolicyIsCappedExponentialBackoff(t *testing.T) {
	require.Equal(t, 3, DefaultRefreshRetryPolicy.Attempts)
	require.Greater(t, DefaultRefreshRetryPolicy.InitialBackoff, time.Duration(0))
	require.Greater(t, DefaultRefreshRetryPolicy.MaxBackoff, DefaultRefreshRetryPolicy.InitialBackoff)
	require.Greater(t, DefaultRefreshRetryPolicy.Multiplier, 1.0)
}
