package connectors

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/credential"
	"github.com/shadowtrace/discovery-platform/internal/platform/ratelimit"
)

// Microsoft365Config carries the OAuth client registration for the
// Microsoft 365 adapter.
type Microsoft365Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TenantID     string
}

// Microsoft365Adapter discovers enterprise-app service principals via
// Microsoft Graph (Power Automate flows are not listed), following the same
// authorization-code-then-userinfo shape as the teacher's GitHub handler
// (exchange via a POST with client_id/client_secret/code, then a Bearer GET
// against a profile endpoint).
type Microsoft365Adapter struct {
	cfg    Microsoft365Config
	client *ratelimit.LimitedClient
}

// NewMicrosoft365Adapter constructs a Microsoft365Adapter.
func NewMicrosoft365Adapter(cfg Microsoft365Config) *Microsoft365Adapter {
	return &Microsoft365Adapter{cfg: cfg, client: defaultLimitedClient()}
}

func (a *Microsoft365Adapter) Platform() connection.Platform { return connection.PlatformMicrosoft365 }

func (a *Microsoft365Adapter) Capabilities() []Capability {
	return []Capability{CapabilityDiscoverAutomations, CapabilityListUsers, CapabilityFetchAuditEvents, CapabilityValidateToken}
}

func (a *Microsoft365Adapter) tenantPath() string {
	if a.cfg.TenantID == "" {
		return "common"
	}
	return a.cfg.TenantID
}

func (a *Microsoft365Adapter) BuildAuthorizationURL(state string) (string, error) {
	if a.cfg.ClientID == "" {
		return "", fmt.Errorf("microsoft 365 oauth not configured")
	}
	q := url.Values{
		"client_id":     {a.cfg.ClientID},
		"redirect_uri":  {a.cfg.RedirectURL},
		"response_type": {"code"},
		"response_mode": {"query"},
		"scope": {"offline_access User.Read " +
			"AuditLog.Read.All Directory.Read.All"},
		"state": {state},
	}
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/authorize?%s", a.tenantPath(), q.Encode()), nil
}

func (a *Microsoft365Adapter) ExchangeCode(ctx context.Context, code string) (OAuthCredentials, UserInfo, error) {
	values := url.Values{
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {a.cfg.RedirectURL},
	}
	tokenEndpoint := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", a.tenantPath())
	var tokenData struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
	}
	if err := postForm(ctx, a.client, tokenEndpoint, values, &tokenData); err != nil {
		return OAuthCredentials{}, UserInfo{}, fmt.Errorf("microsoft token exchange: %w", err)
	}
	if tokenData.AccessToken == "" {
		return OAuthCredentials{}, UserInfo{}, fmt.Errorf("microsoft token exchange returned no access token")
	}

	var me struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := getBearer(ctx, a.client, "https://graph.microsoft.com/v1.0/me", tokenData.AccessToken, &me); err != nil {
		return OAuthCredentials{}, UserInfo{}, fmt.Errorf("microsoft graph /me: %w", err)
	}
	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}

	creds := OAuthCredentials{
		AccessToken:  tokenData.AccessToken,
		RefreshToken: tokenData.RefreshToken,
		TokenType:    tokenData.TokenType,
		Scope:        tokenData.Scope,
		ExpiresAt:    time.Now().Add(time.Duration(tokenData.ExpiresIn) * time.Second),
	}
	return creds, UserInfo{ExternalAccountID: me.ID, DisplayName: me.DisplayName, Email: email}, nil
}

func (a *Microsoft365Adapter) Refresh(ctx context.Context, creds credential.OAuthTokenPayload) (OAuthCredentials, error) {
	if creds.RefreshToken == "" {
		return OAuthCredentials{}, fmt.Errorf("no refresh token on record")
	}
	values := url.Values{
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"refresh_token": {creds.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	tokenEndpoint := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", a.tenantPath())
	var tokenData struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
	}
	if err := postForm(ctx, a.client, tokenEndpoint, values, &tokenData); err != nil {
		return OAuthCredentials{}, fmt.Errorf("microsoft token refresh: %w", err)
	}
	refreshToken := tokenData.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}
	return OAuthCredentials{
		AccessToken:  tokenData.AccessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenData.TokenType,
		Scope:        tokenData.Scope,
		ExpiresAt:    time.Now().Add(time.Duration(tokenData.ExpiresIn) * time.Second),
	}, nil
}

func (a *Microsoft365Adapter) Revoke(ctx context.Context, creds credential.OAuthTokenPayload) error {
	// Microsoft Graph has no per-token revocation endpoint for this grant
	// type; revocation happens tenant-side. Validate the token still works
	// so callers at least learn whether the grant was already pulled.
	return a.ValidateToken(ctx, creds)
}

func (a *Microsoft365Adapter) ValidateToken(ctx context.Context, creds credential.OAuthTokenPayload) error {
	var me struct {
		ID string `json:"id"`
	}
	if err := getBearer(ctx, a.client, "https://graph.microsoft.com/v1.0/me", creds.AccessToken, &me); err != nil {
		return fmt.Errorf("microsoft validate token: %w", err)
	}
	return nil
}

func (a *Microsoft365Adapter) Discover(ctx context.Context, creds credential.OAuthTokenPayload, cursor string) (<-chan DiscoveryEvent, error) {
	events := make(chan DiscoveryEvent, 16)
	go func() {
		defer close(events)

		endpoint := cursor
		if endpoint == "" {
			endpoint = "https://graph.microsoft.com/v1.0/servicePrincipals?$filter=tags/any(t:t eq 'WindowsAzureActiveDirectoryIntegratedApp')"
		}
		var sps struct {
			Value []struct {
				ID          string   `json:"id"`
				DisplayName string   `json:"displayName"`
				Tags        []string `json:"tags"`
			} `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := getBearer(ctx, a.client, endpoint, creds.AccessToken, &sps); err != nil {
			events <- DiscoveryEvent{Err: fmt.Errorf("list microsoft service principals: %w", err)}
			return
		}
		for _, sp := range sps.Value {
			select {
			case events <- DiscoveryEvent{
				Kind:           EventKindAutomation,
				ExternalID:     sp.ID,
				Name:           sp.DisplayName,
				AutomationKind: "bot",
				Metadata:       map[string]any{"tags": sp.Tags},
			}:
			case <-ctx.Done():
				return
			}
		}
		if sps.NextLink != "" {
			events <- DiscoveryEvent{Kind: EventKindCursor, Cursor: sps.NextLink}
		}
	}()
	return events, nil
}

func (a *Microsoft365Adapter) Budget() RateBudget {
	return RateBudget{Remaining: int(a.client.Limiter().Remaining()), ResetAt: time.Now().Add(time.Minute)}
}
