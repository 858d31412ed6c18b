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

// GoogleWorkspaceConfig carries the OAuth client registration for the
// Google Workspace adapter.
type GoogleWorkspaceConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// GoogleWorkspaceAdapter discovers third-party OAuth-app grants against a
// Workspace domain; Apps Script projects are not listed. Its callback flow is a
// direct generalization of the teacher's googleCallbackHandler: same token
// endpoint, same id_token/access_token/refresh_token shape, same userinfo
// fetch — repointed at workspace admin-reporting scopes instead of login
// scopes.
type GoogleWorkspaceAdapter struct {
	cfg    GoogleWorkspaceConfig
	client *ratelimit.LimitedClient
}

// NewGoogleWorkspaceAdapter constructs a GoogleWorkspaceAdapter.
func NewGoogleWorkspaceAdapter(cfg GoogleWorkspaceConfig) *GoogleWorkspaceAdapter {
	return &GoogleWorkspaceAdapter{cfg: cfg, client: defaultLimitedClient()}
}

func (a *GoogleWorkspaceAdapter) Platform() connection.Platform { return connection.PlatformGoogleWorkspace }

func (a *GoogleWorkspaceAdapter) Capabilities() []Capability {
	return []Capability{CapabilityDiscoverAutomations, CapabilityListUsers, CapabilityFetchAuditEvents, CapabilityValidateToken}
}

func (a *GoogleWorkspaceAdapter) BuildAuthorizationURL(state string) (string, error) {
	if a.cfg.ClientID == "" {
		return "", fmt.Errorf("google workspace oauth not configured")
	}
	q := url.Values{
		"client_id":     {a.cfg.ClientID},
		"redirect_uri":  {a.cfg.RedirectURL},
		"response_type": {"code"},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
		"scope": {"openid email profile " +
			"https://www.googleapis.com/auth/admin.reports.audit.readonly " +
			"https://www.googleapis.com/auth/admin.directory.user.readonly"},
		"state": {state},
	}
	return "https://accounts.google.com/o/oauth2/v2/auth?" + q.Encode(), nil
}

func (a *GoogleWorkspaceAdapter) ExchangeCode(ctx context.Context, code string) (OAuthCredentials, UserInfo, error) {
	values := url.Values{
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {a.cfg.RedirectURL},
	}
	var tokenData struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
	}
	if err := postForm(ctx, a.client, "https://oauth2.googleapis.com/token", values, &tokenData); err != nil {
		return OAuthCredentials{}, UserInfo{}, fmt.Errorf("google token exchange: %w", err)
	}
	if tokenData.AccessToken == "" {
		return OAuthCredentials{}, UserInfo{}, fmt.Errorf("google token exchange returned no access token")
	}

	var userInfo struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Hd    string `json:"hd"`
	}
	if err := getBearer(ctx, a.client, "https://www.googleapis.com/oauth2/v2/userinfo", tokenData.AccessToken, &userInfo); err != nil {
		return OAuthCredentials{}, UserInfo{}, fmt.Errorf("google userinfo: %w", err)
	}

	creds := OAuthCredentials{
		AccessToken:  tokenData.AccessToken,
		RefreshToken: tokenData.RefreshToken,
		TokenType:    tokenData.TokenType,
		Scope:        tokenData.Scope,
		ExpiresAt:    time.Now().Add(time.Duration(tokenData.ExpiresIn) * time.Second),
	}
	return creds, UserInfo{ExternalAccountID: userInfo.Hd, DisplayName: userInfo.Name, Email: userInfo.Email}, nil
}

func (a *GoogleWorkspaceAdapter) Refresh(ctx context.Context, creds credential.OAuthTokenPayload) (OAuthCredentials, error) {
	if creds.RefreshToken == "" {
		return OAuthCredentials{}, fmt.Errorf("no refresh token on record")
	}
	values := url.Values{
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"refresh_token": {creds.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	var tokenData struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
		Scope       string `json:"scope"`
	}
	if err := postForm(ctx, a.client, "https://oauth2.googleapis.com/token", values, &tokenData); err != nil {
		return OAuthCredentials{}, fmt.Errorf("google token refresh: %w", err)
	}
	// Google does not reissue the refresh token on a refresh grant; preserve it.
	return OAuthCredentials{
		AccessToken:  tokenData.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    tokenData.TokenType,
		Scope:        tokenData.Scope,
		ExpiresAt:    time.Now().Add(time.Duration(tokenData.ExpiresIn) * time.Second),
	}, nil
}

func (a *GoogleWorkspaceAdapter) Revoke(ctx context.Context, creds credential.OAuthTokenPayload) error {
	values := url.Values{"token": {creds.AccessToken}}
	var discard struct{}
	return postForm(ctx, a.client, "https://oauth2.googleapis.com/revoke", values, &discard)
}

func (a *GoogleWorkspaceAdapter) ValidateToken(ctx context.Context, creds credential.OAuthTokenPayload) error {
	var info struct {
		Expires int `json:"expires_in"`
	}
	return getBearer(ctx, a.client, "https://www.googleapis.com/oauth2/v3/tokeninfo?access_token="+creds.AccessToken, creds.AccessToken, &info)
}

func (a *GoogleWorkspaceAdapter) Discover(ctx context.Context, creds credential.OAuthTokenPayload, cursor string) (<-chan DiscoveryEvent, error) {
	events := make(chan DiscoveryEvent, 16)
	go func() {
		defer close(events)

		var tokensResp struct {
			Items []struct {
				ClientID  string   `json:"clientId"`
				DisplayText string `json:"displayText"`
				Scopes    []string `json:"scopes"`
			} `json:"items"`
			NextPageToken string `json:"nextPageToken"`
		}
		endpoint := "https://www.googleapis.com/admin/directory/v1/customer/my_customer/tokens"
		if err := getBearer(ctx, a.client, endpoint, creds.AccessToken, &tokensResp); err != nil {
			events <- DiscoveryEvent{Err: fmt.Errorf("list google workspace oauth grants: %w", err)}
			return
		}
		for _, item := range tokensResp.Items {
			select {
			case events <- DiscoveryEvent{
				Kind:           EventKindAutomation,
				ExternalID:     item.ClientID,
				Name:           item.DisplayText,
				AutomationKind: "webhook",
				Permissions:    item.Scopes,
			}:
			case <-ctx.Done():
				return
			}
		}
		if tokensResp.NextPageToken != "" {
			events <- DiscoveryEvent{Kind: EventKindCursor, Cursor: tokensResp.NextPageToken}
		}
	}()
	return events, nil
}

func (a *GoogleWorkspaceAdapter) Budget() RateBudget {
	return RateBudget{Remaining: int(a.client.Limiter().Remaining()), ResetAt: time.Now().Add(time.Minute)}
}
