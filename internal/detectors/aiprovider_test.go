package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
)

func TestAIProviderDetectorMatchesOutboundHost(t *testing.T) {
	d := NewAIProviderDetector()
	in := Input{
		Automation: discovery.DiscoveredAutomation{
			Metadata: map[string]any{"outbound_hosts": []string{"api.openai.com"}},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, "openai", patterns[0].Evidence["provider"])
}

func TestAIProviderDetectorAccumulatesMultipleMethods(t *testing.T) {
	d := NewAIProviderDetector()
	in := Input{
		Automation: discovery.DiscoveredAutomation{
			Metadata: map[string]any{
				"outbound_hosts": []string{"api.anthropic.com"},
				"outbound_url":   "https://api.anthropic.com/v1/messages",
			},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, 2, patterns[0].Evidence["method_count"])
}

func TestAIProviderDetectorIgnoresUnrelatedMetadata(t *testing.T) {
	d := NewAIProviderDetector()
	in := Input{
		Automation: discovery.DiscoveredAutomation{
			Metadata: map[string]any{"outbound_hosts": []string{"internal.example.com"}},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestAIProviderDetectorIgnoresEmptyMetadata(t *testing.T) {
	d := NewAIProviderDetector()
	in := Input{Automation: discovery.DiscoveredAutomation{}}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}
