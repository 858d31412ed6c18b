package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
)

func TestPermissionEscalationDetectorFlagsSingleJump(t *testing.T) {
	d := NewPermissionEscalationDetector()
	in := Input{
		History: []HistoricalSample{
			{Scopes: []string{"read"}},
			{Scopes: []string{"read", "write", "admin"}},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, detection.PatternPermissionEscalation, patterns[0].Type)
}

func TestPermissionEscalationDetectorFlagsGradualCreepAsScopeCreep(t *testing.T) {
	d := NewPermissionEscalationDetector()
	in := Input{
		History: []HistoricalSample{
			{Scopes: []string{"read"}},
			{Scopes: []string{"read", "write"}},
			{Scopes: []string{"read", "write", "admin"}},
			{Scopes: []string{"read", "write", "admin", "delete"}},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, detection.PatternScopeCreep, patterns[0].Type)
}

func TestPermissionEscalationDetectorIgnoresNonMonotonicSwap(t *testing.T) {
	d := NewPermissionEscalationDetector()
	in := Input{
		History: []HistoricalSample{
			{Scopes: []string{"read", "write"}},
			{Scopes: []string{"read", "admin"}},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestPermissionEscalationDetectorIgnoresStableScopes(t *testing.T) {
	d := NewPermissionEscalationDetector()
	in := Input{
		History: []HistoricalSample{
			{Scopes: []string{"read"}},
			{Scopes: []string{"read"}},
		},
	}

	patterns, err := d.Detect(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, patterns)
}
