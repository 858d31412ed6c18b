package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
)

func TestCrossActorDetectorFlagsSharedCredentialFingerprint(t *testing.T) {
	d := NewCrossActorDetector()
	in := Input{
		Automation: discovery.DiscoveredAutomation{Metadata: map[string]any{"credential_fingerprint": "svc-acct-1"}},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, detection.PatternCredentialSharing, patterns[0].Type)
}

func TestCrossActorDetectorFlagsCoordinatedSchedule(t *testing.T) {
	d := NewCrossActorDetector()
	in := Input{History: samplesEverySeconds(8, 5*time.Minute)}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, detection.PatternCrossPlatformChain, patterns[0].Type)
}

func TestCrossActorDetectorIgnoresAbsentSignals(t *testing.T) {
	d := NewCrossActorDetector()
	in := Input{Automation: discovery.DiscoveredAutomation{}}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}
