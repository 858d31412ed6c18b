package detectors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
)

type stubQualitativeClient struct {
	verdict QualitativeVerdict
	err     error
	calls   int
}

func (s *stubQualitativeClient) Evaluate(ctx context.Context, descriptor string) (QualitativeVerdict, error) {
	s.calls++
	return s.verdict, s.err
}

func TestQualitativeValidatorNilClientIsInert(t *testing.T) {
	v := NewQualitativeValidator(nil)
	patterns, err := v.Detect(context.Background(), Input{Automation: discovery.DiscoveredAutomation{Name: "foo"}})
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestQualitativeValidatorFlagsConcerningVerdict(t *testing.T) {
	client := &stubQualitativeClient{verdict: QualitativeVerdict{Concerning: true, Rationale: "looks automated", Tags: []string{"bulk"}}}
	v := NewQualitativeValidator(client)

	patterns, err := v.Detect(context.Background(), Input{Automation: discovery.DiscoveredAutomation{Name: "foo"}})
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, detection.PatternAIProviderCall, patterns[0].Type)
	require.Equal(t, 1, client.calls)
}

func TestQualitativeValidatorCachesRepeatedDescriptor(t *testing.T) {
	client := &stubQualitativeClient{verdict: QualitativeVerdict{Concerning: true}}
	v := NewQualitativeValidator(client)
	in := Input{Automation: discovery.DiscoveredAutomation{Name: "foo", Kind: discovery.AutomationKindBot}}

	_, err := v.Detect(context.Background(), in)
	require.NoError(t, err)
	_, err = v.Detect(context.Background(), in)
	require.NoError(t, err)

	require.Equal(t, 1, client.calls)
}

func TestQualitativeValidatorDegradesOnClientError(t *testing.T) {
	client := &stubQualitativeClient{err: errors.New("upstream unavailable")}
	v := NewQualitativeValidator(client)

	patterns, err := v.Detect(context.Background(), Input{Automation: discovery.DiscoveredAutomation{Name: "foo"}})
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestQualitativeValidatorIgnoresNonConcerningVerdict(t *testing.T) {
	client := &stubQualitativeClient{verdict: QualitativeVerdict{Concerning: false}}
	v := NewQualitativeValidator(client)

	patterns, err := v.Detect(context.Background(), Input{Automation: discovery.DiscoveredAutomation{Name: "foo"}})
	require.NoError(t, err)
	require.Empty(t, patterns)
}
