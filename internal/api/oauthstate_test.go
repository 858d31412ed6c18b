package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
)

func TestOAuthStateRoundTrip(t *testing.T) {
	signer := newOAuthStateSigner("test-secret")
	state, err := signer.sign("org1", connection.PlatformSlack)
	require.NoError(t, err)

	orgID, platform, err := signer.verify(state)
	require.NoError(t, err)
	require.Equal(t, "org1", orgID)
	require.Equal(t, connection.PlatformSlack, platform)
}

func TestOAuthStateRejectsTamperedPayload(t *testing.T) {
	signer := newOAuthStateSigner("test-secret")
	state, err := signer.sign("org1", connection.PlatformSlack)
	require.NoError(t, err)

	tampered := state + "x"
	_, _, err = signer.verify(tampered)
	require.Error(t, err)
}

func TestOAuthStateRejectsWrongSecret(t *testing.T) {
	signer := newOAuthStateSigner("test-secret")
	state, err := signer.sign("org1", connection.PlatformSlack)
	require.NoError(t, err)

	other := newOAuthStateSigner("different-secret")
	_, _, err = other.verify(state)
	require.Error(t, err)
}

func TestOAuthStateRejectsExpired(t *testing.T) {
	signer := newOAuthStateSigner("test-secret")

	expiredState, err := signer.signWithTTL("org1", connection.PlatformSlack, -time.Minute)
	require.NoError(t, err)

	_, _, err = signer.verify(expiredState)
	require.Error(t, err)
}
