package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKeySecretIsUniqueAndPrefixed(t *testing.T) {
	a, err := generateAPIKeySecret()
	require.NoError(t, err)
	b, err := generateAPIKeySecret()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(a, apiKeyPrefix))
	require.NotEqual(t, a, b)
}

func TestHashTokenIsDeterministic(t *testing.T) {
	require.Equal(t, hashToken("abc"), hashToken("abc"))
	require.NotEqual(t, hashToken("abc"), hashToken("abd"))
}
