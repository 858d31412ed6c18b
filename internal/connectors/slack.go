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

// SlackConfig carries the OAuth client registration for the Slack adapter.
type SlackConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// SlackAdapter discovers workflow-builder workflows and bot users in a
// Slack workspace; incoming webhooks are not listed. Its OAuth contract
// follows the teacher's googleAuthHandler/googleCallbackHandler pair:
// a state parameter carried through the consent redirect,
// authorization-code exchange, then a user-info fetch (here, a
// bot-identity fetch via auth.test).
type SlackAdapter struct {
	cfg    SlackConfig
	client *ratelimit.LimitedClient
}

// NewSlackAdapter constructs a SlackAdapter.
func NewSlackAdapter(cfg SlackConfig) *SlackAdapter {
	return &SlackAdapter{cfg: cfg, client: defaultLimitedClient()}
}

func (a *SlackAdapter) Platform() connection.Platform { return connection.PlatformSlack }

func (a *SlackAdapter) Capabilities() []Capability {
	return []Capability{CapabilityDiscoverAutomations, CapabilityListUsers, CapabilityValidateToken}
}

func (a *SlackAdapter) BuildAuthorizationURL(state string) (string, error) {
	if a.cfg.ClientID == "" {
		return "", fmt.Errorf("slack oauth not configured")
	}
	q := url.Values{
		"client_id":    {a.cfg.ClientID},
		"redirect_uri": {a.cfg.RedirectURL},
		"scope":        {"workflow.steps:read,bot,users:read,channels:history,incoming-webhook"},
		"state":        {state},
	}
	return "https://slack.com/oauth/v2/authorize?" + q.Encode(), nil
}

func (a *SlackAdapter) ExchangeCode(ctx context.Context, code string) (OAuthCredentials, UserInfo, error) {
	values := url.Values{
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"code":          {code},
		"redirect_uri":  {a.cfg.RedirectURL},
	}
	var tokenData struct {
		OK          bool   `json:"ok"`
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		Scope       string `json:"scope"`
		Team        struct {
			ID string `json:"id"`
		} `json:"team"`
		Error string `json:"error"`
	}
	if err := postForm(ctx, a.client, "https://slack.com/api/oauth.v2.access", values, &tokenData); err != nil {
		return OAuthCredentials{}, UserInfo{}, fmt.Errorf("slack token exchange: %w", err)
	}
	if !tokenData.OK || tokenData.AccessToken == "" {
		return OAuthCredentials{}, UserInfo{}, fmt.Errorf("slack token exchange rejected: %s", tokenData.Error)
	}

	creds := OAuthCredentials{
		AccessToken: tokenData.AccessToken,
		TokenType:   tokenData.TokenType,
		Scope:       tokenData.Scope,
		// Slack bot tokens do not expire; ExpiresAt is left zero.
	}
	return creds, UserInfo{ExternalAccountID: tokenData.Team.ID}, nil
}

func (a *SlackAdapter) Refresh(ctx context.Context, creds credential.OAuthTokenPayload) (OAuthCredentials, error) {
	// Slack bot tokens issued via oauth.v2.access do not expire and carry no
	// refresh token; this is a no-op that preserves the existing credential.
	return OAuthCredentials{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
		Scope:        creds.Scope,
		ExpiresAt:    creds.ExpiresAt,
	}, nil
}

func (a *SlackAdapter) Revoke(ctx context.Context, creds credential.OAuthTokenPayload) error {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := getBearer(ctx, a.client, "https://slack.com/api/auth.revoke", creds.AccessToken, &out); err != nil {
		return fmt.Errorf("slack revoke: %w", err)
	}
	return nil
}

func (a *SlackAdapter) ValidateToken(ctx context.Context, creds credential.OAuthTokenPayload) error {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := getBearer(ctx, a.client, "https://slack.com/api/auth.test", creds.AccessToken, &out); err != nil {
		return fmt.Errorf("slack validate token: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("slack token invalid")
	}
	return nil
}

func (a *SlackAdapter) Discover(ctx context.Context, creds credential.OAuthTokenPayload, cursor string) (<-chan DiscoveryEvent, error) {
	events := make(chan DiscoveryEvent, 16)
	go func() {
		defer close(events)

		var workflows struct {
			OK        bool `json:"ok"`
			Workflows []struct {
				ID          string `json:"id"`
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"workflows"`
			ResponseMetadata struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := getBearer(ctx, a.client, "https://slack.com/api/workflows.list", creds.AccessToken, &workflows); err != nil {
			events <- DiscoveryEvent{Err: fmt.Errorf("list slack workflows: %w", err)}
			return
		}
		for _, wf := range workflows.Workflows {
			select {
			case events <- DiscoveryEvent{
				Kind:           EventKindAutomation,
				ExternalID:     wf.ID,
				Name:           wf.Name,
				AutomationKind: "workflow",
				Metadata:       map[string]any{"description": wf.Description},
			}:
			case <-ctx.Done():
				return
			}
		}

		var bots struct {
			OK      bool `json:"ok"`
			Members []struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				IsBot   bool   `json:"is_bot"`
				Deleted bool   `json:"deleted"`
			} `json:"members"`
		}
		if err := getBearer(ctx, a.client, "https://slack.com/api/users.list", creds.AccessToken, &bots); err != nil {
			events <- DiscoveryEvent{Err: fmt.Errorf("list slack bot users: %w", err)}
			return
		}
		for _, m := range bots.Members {
			if !m.IsBot || m.Deleted {
				continue
			}
			select {
			case events <- DiscoveryEvent{
				Kind:           EventKindAutomation,
				ExternalID:     m.ID,
				Name:           m.Name,
				AutomationKind: "bot",
			}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (a *SlackAdapter) Budget() RateBudget {
	return RateBudget{Remaining: int(a.client.Limiter().Remaining()), ResetAt: time.Now().Add(time.Minute)}
}
