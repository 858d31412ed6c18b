package correlator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/correlation"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
)

// Correlator groups recently-active automations into CorrelationChains.
// Satisfies discoveryengine.Correlator.
type Correlator struct {
	store  Store
	log    *logging.Logger
	window time.Duration
}

func New(store Store, log *logging.Logger) *Correlator {
	return &Correlator{store: store, log: log, window: DefaultCorrelationWindow}
}

// Correlate implements §4.8: pull the organization's recently-active
// automations, pairwise-link them against all five correlation types,
// group the links into connected components, invalidate any prior chain
// touching an automation in automationIDs, and persist the fresh chains.
func (c *Correlator) Correlate(ctx context.Context, organizationID string, automationIDs []string) error {
	candidates, err := c.store.RecentlyActive(ctx, organizationID, c.window)
	if err != nil {
		return fmt.Errorf("load recently active automations: %w", err)
	}
	if len(candidates) < 2 {
		return nil
	}

	links := pairwiseLinks(candidates, c.window)
	chains := groupIntoChains(organizationID, candidates, links)

	if err := c.store.InvalidateChainsTouching(ctx, organizationID, automationIDs); err != nil {
		return fmt.Errorf("invalidate prior chains: %w", err)
	}
	if len(chains) == 0 {
		return nil
	}
	if err := c.store.SaveChains(ctx, chains); err != nil {
		return fmt.Errorf("save chains: %w", err)
	}
	return nil
}

func pairwiseLinks(candidates []AutomationView, window time.Duration) []correlation.ChainLink {
	var all []correlation.ChainLink
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			all = append(all, link(candidates[i], candidates[j], window)...)
		}
	}
	return all
}

// groupIntoChains unions automations connected by at least one link into
// connected components via union-find, then builds one CorrelationChain per
// component with 2+ members.
func groupIntoChains(organizationID string, candidates []AutomationView, links []correlation.ChainLink) []correlation.CorrelationChain {
	index := make(map[string]int, len(candidates))
	for i, a := range candidates {
		index[a.ID] = i
	}
	uf := newUnionFind(len(candidates))
	for _, l := range links {
		fi, fok := index[l.FromAutomationID]
		ti, tok := index[l.ToAutomationID]
		if fok && tok {
			uf.union(fi, ti)
		}
	}

	componentMembers := map[int][]int{}
	for i := range candidates {
		root := uf.find(i)
		componentMembers[root] = append(componentMembers[root], i)
	}

	componentLinks := map[int][]correlation.ChainLink{}
	for _, l := range links {
		fi := index[l.FromAutomationID]
		root := uf.find(fi)
		componentLinks[root] = append(componentLinks[root], l)
	}

	var chains []correlation.CorrelationChain
	now := time.Now().UTC()
	for root, members := range componentMembers {
		if len(members) < 2 {
			continue
		}
		chainLinks := componentLinks[root]
		automationIDs := make([]string, 0, len(members))
		platforms := map[connection.Platform]bool{}
		var windowStart, windowEnd time.Time
		for _, m := range members {
			a := candidates[m]
			automationIDs = append(automationIDs, a.ID)
			platforms[a.Platform] = true
			if windowStart.IsZero() || a.LastSeenAt.Before(windowStart) {
				windowStart = a.LastSeenAt
			}
			if a.LastSeenAt.After(windowEnd) {
				windowEnd = a.LastSeenAt
			}
		}

		chains = append(chains, correlation.CorrelationChain{
			ID:                 uuid.NewString(),
			OrganizationID:     organizationID,
			AutomationIDs:      automationIDs,
			Links:              chainLinks,
			Confidence:         chainConfidence(chainLinks),
			CrossPlatformChain: len(platforms) >= 2,
			WindowStart:        windowStart,
			WindowEnd:          windowEnd,
			DetectedAt:         now,
		})
	}
	return chains
}

// chainConfidence implements §4.8's "confidence computed from the number of
// distinct supporting correlation types and the strength of each": the
// mean per-type best confidence, weighted up slightly per additional
// distinct type so a chain supported five ways outranks one supported by a
// single strong link.
func chainConfidence(links []correlation.ChainLink) float64 {
	bestByType := map[correlation.LinkType]float64{}
	for _, l := range links {
		if l.Confidence > bestByType[l.Type] {
			bestByType[l.Type] = l.Confidence
		}
	}
	if len(bestByType) == 0 {
		return 0
	}
	var sum float64
	for _, c := range bestByType {
		sum += c
	}
	mean := sum / float64(len(bestByType))
	diversityBonus := 1 + 0.1*float64(len(bestByType)-1)
	return clamp01(mean * diversityBonus)
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
