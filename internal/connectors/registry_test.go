package connectors

import (
	"context"
	"time"

	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/credential"
)

type stubAdapter struct {
	platform connection.Platform
}

func (s stubAdapter) Platform() connection.Platform     { return s.platform }
func (s stubAdapter) Capabilities() []Capability        { return nil }
func (s stubAdapter) BuildAuthorizationURL(string) (string, error) { return "", nil }
func (s stubAdapter) ExchangeCode(context.Context, string) (OAuthCredentials, UserInfo, error) {
	return OAuthCredentials{}, UserInfo{}, nil
}
func (s stubAdapter) Refresh(context.Context, credential.OAuthTokenPayload) (OAuthCredentials, error) {
	return OAuthCredentials{}, nil
}
func (s stubAdapter) Revoke(context.Context, credential.OAuthTokenPayload) error { return nil }
func (s stubAdapter) ValidateToken(context.Context, credential.OAuthTokenPayload) error { return nil }
func (s stubAdapter) Discover(context.Context, credential.OAuthTokenPayload, string) (<-chan DiscoveryEvent, error) {
	return nil, nil
}
func (s stubAdapter) Budget() RateBudget { return RateBudget{ResetAt: time.Now()} }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(stubAdapter{platform: connection.PlatformSlack})

	adapter, err := r.Get(connection.PlatformSlack)
	require.NoError(t, err)
	require.Equal(t, connection.PlatformSlack, adapter.Platform())
}

func TestRegistryGetUnregisteredPlatformReturnsError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(connection.PlatformMicrosoft365)
	require.Error(t, err)
}

func TestRegistryPlatformsListsAllRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register(stubAdapter{platform: connection.PlatformSlack})
	r.Register(stubAdapter{platform: connection.PlatformGoogleWorkspace})

	require.ElementsMatch(t, []connection.Platform{connection.PlatformSlack, connection.PlatformGoogleWorkspace}, r.Platforms())
}

func TestRegistryRegisterOverwritesSamePlatform(t *testing.T) {
	r := NewRegistry()
	r.Register(stubAdapter{platform: connection.PlatformSlack})
	r.Register(stubAdapter{platform: connection.PlatformSlack})

	require.Len(t, r.Platforms(), 1)
}
