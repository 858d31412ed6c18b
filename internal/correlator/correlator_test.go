package correlator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/correlation"
)

type fakeCorrelatorStore struct {
	candidates         []AutomationView
	invalidatedOrg     string
	invalidatedIDs     []string
	savedChains        []correlation.CorrelationChain
}

func (f *fakeCorrelatorStore) RecentlyActive(ctx context.Context, organizationID string, window time.Duration) ([]AutomationView, error) {
	return f.candidates, nil
}

func (f *fakeCorrelatorStore) InvalidateChainsTouching(ctx context.Context, organizationID string, automationIDs []string) error {
	f.invalidatedOrg = organizationID
	f.invalidatedIDs = automationIDs
	return nil
}

func (f *fakeCorrelatorStore) SaveChains(ctx context.Context, chains []correlation.CorrelationChain) error {
	f.savedChains = chains
	return nil
}

func TestCorrelateGroupsLinkedAutomationsIntoAChain(t *testing.T) {
	now := time.Now()
	store := &fakeCorrelatorStore{
		candidates: []AutomationView{
			{ID: "a", LastSeenAt: now, CredentialFingerprint: "shared"},
			{ID: "b", LastSeenAt: now, CredentialFingerprint: "shared"},
			{ID: "c", LastSeenAt: now.Add(-24 * time.Hour)},
		},
	}

	c := New(store, nil)
	err := c.Correlate(context.Background(), "org-1", []string{"a"})
	require.NoError(t, err)
	require.Len(t, store.savedChains, 1)
	require.ElementsMatch(t, []string{"a", "b"}, store.savedChains[0].AutomationIDs)
	require.Equal(t, "org-1", store.invalidatedOrg)
	require.Equal(t, []string{"a"}, store.invalidatedIDs)
}

func TestCorrelateSkipsWhenFewerThanTwoCandidates(t *testing.T) {
	store := &fakeCorrelatorStore{candidates: []AutomationView{{ID: "a"}}}

	c := New(store, nil)
	err := c.Correlate(context.Background(), "org-1", []string{"a"})
	require.NoError(t, err)
	require.Nil(t, store.savedChains)
	require.Empty(t, store.invalidatedOrg)
}

func TestCorrelateNoLinksProducesNoChains(t *testing.T) {
	now := time.Now()
	store := &fakeCorrelatorStore{
		candidates: []AutomationView{
			{ID: "a", LastSeenAt: now},
			{ID: "b", LastSeenAt: now.Add(time.Hour)},
		},
	}

	c := New(store, nil)
	err := c.Correlate(context.Background(), "org-1", []string{"a"})
	require.NoError(t, err)
	require.Empty(t, store.savedChains)
	require.Equal(t, "org-1", store.invalidatedOrg)
}

func TestChainConfidenceRewardsDiversity(t *testing.T) {
	single := []correlation.ChainLink{{Type: correlation.LinkSharedCredentials, Confidence: 0.6}}
	diverse := []correlation.ChainLink{
		{Type: correlation.LinkSharedCredentials, Confidence: 0.6},
		{Type: correlation.LinkSameAIProvider, Confidence: 0.6},
	}

	require.Greater(t, chainConfidence(diverse), chainConfidence(single))
}
