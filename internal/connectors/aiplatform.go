package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/credential"
	"github.com/shadowtrace/discovery-platform/internal/platform/ratelimit"
)

// AIProvider names a supported AI platform. The domain model enumerates
// eight providers (§4.6 #7) even though AIPlatformAdapter today only
// implements a live connection flow for the first three; the remaining five
// exist so the ai_provider_call detector can recognize and evidence their
// traffic (model names, API hosts) when they appear in platform_metadata
// surfaced by the Slack/Google Workspace/Microsoft 365 adapters, without
// requiring a dedicated connection of their own.
type AIProvider string

const (
	AIProviderOpenAI       AIProvider = "openai"
	AIProviderAnthropic    AIProvider = "anthropic"
	AIProviderGoogleGemini AIProvider = "google_gemini"
	AIProviderAzureOpenAI  AIProvider = "azure_openai"
	AIProviderCohere       AIProvider = "cohere"
	AIProviderMistral      AIProvider = "mistral"
	AIProviderHuggingFace  AIProvider = "huggingface"
	AIProviderPerplexity   AIProvider = "perplexity"
)

// ProviderDomains maps each AIProvider to the outbound hostnames its API
// traffic is reachable at, the signal the ai_provider_call detector matches
// against outbound host patterns in platform_metadata.
var ProviderDomains = map[AIProvider][]string{
	AIProviderOpenAI:       {"api.openai.com"},
	AIProviderAnthropic:    {"api.anthropic.com"},
	AIProviderGoogleGemini: {"generativelanguage.googleapis.com"},
	AIProviderAzureOpenAI:  {"openai.azure.com"},
	AIProviderCohere:       {"api.cohere.ai", "api.cohere.com"},
	AIProviderMistral:      {"api.mistral.ai"},
	AIProviderHuggingFace:  {"api-inference.huggingface.co"},
	AIProviderPerplexity:   {"api.perplexity.ai"},
}

// AllProviders lists every enumerated provider in a stable order, used by
// the ai_provider_call detector to iterate deterministically.
func AllProviders() []AIProvider {
	return []AIProvider{
		AIProviderOpenAI, AIProviderAnthropic, AIProviderGoogleGemini,
		AIProviderAzureOpenAI, AIProviderCohere, AIProviderMistral,
		AIProviderHuggingFace, AIProviderPerplexity,
	}
}

// AIPlatformConfig parameterizes the generic adapter per provider.
type AIPlatformConfig struct {
	Provider AIProvider
}

// AIPlatformAdapter discovers the API-key-based integration of an AI
// provider account rather than workspace bots (§4.2.bis). It has
// no authorization-code flow: credentials are a caller-supplied API key
// validated directly, unlike the other three adapters' OAuth contract.
type AIPlatformAdapter struct {
	cfg    AIPlatformConfig
	client *ratelimit.LimitedClient
}

// NewAIPlatformAdapter constructs an AIPlatformAdapter for the given provider.
func NewAIPlatformAdapter(cfg AIPlatformConfig) *AIPlatformAdapter {
	return &AIPlatformAdapter{cfg: cfg, client: defaultLimitedClient()}
}

func (a *AIPlatformAdapter) Platform() connection.Platform { return connection.PlatformAIProvider }

func (a *AIPlatformAdapter) Capabilities() []Capability {
	return []Capability{CapabilityDiscoverAutomations, CapabilityValidateToken}
}

// BuildAuthorizationURL is unsupported: this adapter is API-key based, not
// OAuth-based, and a connection is created directly from a submitted key.
func (a *AIPlatformAdapter) BuildAuthorizationURL(state string) (string, error) {
	return "", fmt.Errorf("ai_platform adapter does not support the oauth flow")
}

// ExchangeCode is unsupported for the same reason.
func (a *AIPlatformAdapter) ExchangeCode(ctx context.Context, code string) (OAuthCredentials, UserInfo, error) {
	return OAuthCredentials{}, UserInfo{}, fmt.Errorf("ai_platform adapter does not support the oauth flow")
}

// Refresh is a no-op: API keys do not expire on a fixed schedule.
func (a *AIPlatformAdapter) Refresh(ctx context.Context, creds credential.OAuthTokenPayload) (OAuthCredentials, error) {
	return OAuthCredentials{AccessToken: creds.AccessToken}, nil
}

func (a *AIPlatformAdapter) Revoke(ctx context.Context, creds credential.OAuthTokenPayload) error {
	// Provider APIs expose no programmatic key-revocation endpoint reachable
	// with only the key itself; revocation is operator-side at the provider.
	return nil
}

func (a *AIPlatformAdapter) validateEndpoint() string {
	switch a.cfg.Provider {
	case AIProviderOpenAI:
		return "https://api.openai.com/v1/models"
	case AIProviderAnthropic:
		return "https://api.anthropic.com/v1/models"
	case AIProviderGoogleGemini:
		return "https://generativelanguage.googleapis.com/v1beta/models"
	default:
		return ""
	}
}

func (a *AIPlatformAdapter) ValidateToken(ctx context.Context, creds credential.OAuthTokenPayload) error {
	endpoint := a.validateEndpoint()
	if endpoint == "" {
		return fmt.Errorf("unsupported ai provider %q", a.cfg.Provider)
	}
	var discard struct {
		Data []map[string]any `json:"data"`
	}
	if err := getBearer(ctx, a.client, endpoint, creds.AccessToken, &discard); err != nil {
		return fmt.Errorf("validate %s api key: %w", a.cfg.Provider, err)
	}
	return nil
}

// Discover lists the provider's models with the submitted key and surfaces
// the key's integration as one ai_agent automation carrying the model
// count; API keys and organization members are not listed. This is the one
// adapter whose evidence is consumed by the ai_provider_call detector
// (§4.6-08) rather than the behavioral detectors that rely on event timing.
func (a *AIPlatformAdapter) Discover(ctx context.Context, creds credential.OAuthTokenPayload, cursor string) (<-chan DiscoveryEvent, error) {
	events := make(chan DiscoveryEvent, 4)
	go func() {
		defer close(events)
		endpoint := a.validateEndpoint()
		if endpoint == "" {
			events <- DiscoveryEvent{Err: fmt.Errorf("unsupported ai provider %q", a.cfg.Provider)}
			return
		}
		var models struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := getBearer(ctx, a.client, endpoint, creds.AccessToken, &models); err != nil {
			events <- DiscoveryEvent{Err: fmt.Errorf("list %s models: %w", a.cfg.Provider, err)}
			return
		}
		select {
		case events <- DiscoveryEvent{
			Kind:           EventKindAutomation,
			ExternalID:     string(a.cfg.Provider) + ":api-key-integration",
			Name:           fmt.Sprintf("%s API integration", a.cfg.Provider),
			AutomationKind: "ai_agent",
			Metadata:       map[string]any{"provider": a.cfg.Provider, "model_count": len(models.Data)},
		}:
		case <-ctx.Done():
		}
	}()
	return events, nil
}

func (a *AIPlatformAdapter) Budget() RateBudget {
	return RateBudget{Remaining: int(a.client.Limiter().Remaining()), ResetAt: time.Now().Add(time.Minute)}
}
