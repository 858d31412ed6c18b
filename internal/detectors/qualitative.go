package detectors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

// QualitativeVerdict is the structured response a language-model endpoint
// returns for one automation descriptor.
type QualitativeVerdict struct {
	Concerning bool     `json:"concerning"`
	Rationale  string   `json:"rationale"`
	Tags       []string `json:"tags"`
}

// QualitativeClient calls out to an external language-model endpoint.
// HTTPQualitativeClient in this package is the concrete implementation,
// which cmd/api and cmd/worker wire when the validator is configured; its
// absence is handled gracefully by QualitativeValidator itself.
type QualitativeClient interface {
	Evaluate(ctx context.Context, descriptor string) (QualitativeVerdict, error)
}

// QualitativeValidator forwards a compact automation descriptor to an
// external LLM endpoint for a structured verdict (§4.6 #10). It is
// optional, cost-metered via an in-memory cache keyed by descriptor hash,
// and never blocks a run: a nil client or a client error degrades to no
// pattern rather than failing the detector pass.
type QualitativeValidator struct {
	client QualitativeClient
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]cachedVerdict
}

type cachedVerdict struct {
	verdict QualitativeVerdict
	at      time.Time
}

// DefaultQualitativeCacheTTL bounds how long a cached verdict is reused
// before the descriptor is re-evaluated.
const DefaultQualitativeCacheTTL = 24 * time.Hour

// NewQualitativeValidator constructs a validator. Pass a nil client to run
// with the detector registered but permanently inert, matching §4.6 #10's
// "absence degrades gracefully".
func NewQualitativeValidator(client QualitativeClient) *QualitativeValidator {
	return &QualitativeValidator{client: client, ttl: DefaultQualitativeCacheTTL, cache: make(map[string]cachedVerdict)}
}

func (d *QualitativeValidator) Type() detection.PatternType { return detection.PatternAIProviderCall }

func (d *QualitativeValidator) Detect(ctx context.Context, in Input) ([]detection.DetectionPattern, error) {
	if d.client == nil {
		return nil, nil
	}

	descriptor, err := descriptorFor(in)
	if err != nil {
		return nil, nil
	}
	hash := descriptorHash(descriptor)

	if cached, ok := d.cachedVerdict(hash); ok {
		return patternsFromVerdict(in, cached), nil
	}

	verdict, err := d.client.Evaluate(ctx, descriptor)
	if err != nil {
		// Degrade gracefully: a failed qualitative call is never a run
		// failure, just an absent opinion.
		return nil, nil
	}
	d.storeVerdict(hash, verdict)
	return patternsFromVerdict(in, verdict), nil
}

func (d *QualitativeValidator) cachedVerdict(hash string) (QualitativeVerdict, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.cache[hash]
	if !ok || time.Since(entry.at) > d.ttl {
		return QualitativeVerdict{}, false
	}
	return entry.verdict, true
}

func (d *QualitativeValidator) storeVerdict(hash string, verdict QualitativeVerdict) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[hash] = cachedVerdict{verdict: verdict, at: time.Now()}
}

func descriptorFor(in Input) (string, error) {
	compact := struct {
		Name     string         `json:"name"`
		Kind     string         `json:"kind"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}{Name: in.Automation.Name, Kind: string(in.Automation.Kind), Metadata: in.Automation.Metadata}
	b, err := json.Marshal(compact)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func descriptorHash(descriptor string) string {
	sum := sha256.Sum256([]byte(descriptor))
	return hex.EncodeToString(sum[:])
}

func patternsFromVerdict(in Input, verdict QualitativeVerdict) []detection.DetectionPattern {
	if !verdict.Concerning {
		return nil
	}
	return []detection.DetectionPattern{newPattern(in, detection.PatternAIProviderCall, detection.SeverityLow, 0.4, map[string]any{
		"qualitative_rationale": verdict.Rationale,
		"qualitative_tags":      verdict.Tags,
	})}
}
