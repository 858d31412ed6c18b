package detectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/shadowtrace/discovery-platform/internal/connectors"
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

// aiProviderSignalPaths are the jsonpath expressions evaluated against
// platform_metadata for each evidence method named in §4.6 #7. The payload
// shape varies per connector (§9's "dynamic JSON metadata" note), so each
// path is tried independently and a missing one is not an error.
var aiProviderSignalPaths = map[string]string{
	"url_domain":     "$.outbound_url",
	"scope_names":    "$.scopes",
	"display_text":   "$.description",
	"user_agent":     "$.user_agent",
	"model_names":    "$.referenced_models",
	"outbound_hosts": "$.outbound_hosts",
}

// methodWeight is how much one matching evidence method contributes to
// overall confidence; stronger signals (explicit host/domain matches)
// outweigh weaker textual ones.
var methodWeight = map[string]float64{
	"url_domain":     0.3,
	"outbound_hosts": 0.3,
	"scope_names":    0.15,
	"model_names":    0.15,
	"display_text":   0.05,
	"user_agent":     0.05,
}

// AIProviderDetector matches an automation's metadata against the known AI
// providers via multiple independent methods, accumulating evidence across
// whichever methods the connector happened to populate (§4.6 #7).
type AIProviderDetector struct{}

func NewAIProviderDetector() *AIProviderDetector { return &AIProviderDetector{} }

func (d *AIProviderDetector) Type() detection.PatternType { return detection.PatternAIProviderCall }

func (d *AIProviderDetector) Detect(ctx context.Context, in Input) ([]detection.DetectionPattern, error) {
	if len(in.Automation.Metadata) == 0 {
		return nil, nil
	}

	signals := extractSignals(in.Automation.Metadata)
	if len(signals) == 0 {
		return nil, nil
	}

	var patterns []detection.DetectionPattern
	for _, provider := range connectors.AllProviders() {
		domains := connectors.ProviderDomains[provider]
		matchedMethods := map[string]bool{}
		for method, text := range signals {
			if matchesProvider(text, provider, domains) {
				matchedMethods[method] = true
			}
		}
		if len(matchedMethods) == 0 {
			continue
		}

		var confidence float64
		methods := make([]string, 0, len(matchedMethods))
		for method := range matchedMethods {
			confidence += methodWeight[method]
			methods = append(methods, method)
		}
		confidence = clamp01(confidence)

		severity := detection.SeverityLow
		if len(matchedMethods) >= 2 {
			severity = detection.SeverityMedium
		}
		if len(matchedMethods) >= 4 {
			severity = detection.SeverityHigh
		}

		patterns = append(patterns, newPattern(in, d.Type(), severity, confidence, map[string]any{
			"provider":         string(provider),
			"matched_methods":  methods,
			"method_count":     len(matchedMethods),
		}))
	}
	return patterns, nil
}

// extractSignals pulls each evidence-method field out of metadata via
// jsonpath, returning a flattened lowercase string per method that matched
// provider text can be searched against.
func extractSignals(metadata map[string]any) map[string]string {
	signals := make(map[string]string, len(aiProviderSignalPaths))
	for method, path := range aiProviderSignalPaths {
		value, err := jsonpath.Get(path, metadata)
		if err != nil || value == nil {
			continue
		}
		signals[method] = strings.ToLower(fmt.Sprint(value))
	}
	return signals
}

func matchesProvider(signalText string, provider connectors.AIProvider, domains []string) bool {
	if strings.Contains(signalText, strings.ToLower(string(provider))) {
		return true
	}
	for _, domain := range domains {
		if strings.Contains(signalText, strings.ToLower(domain)) {
			return true
		}
	}
	return false
}
