package correlator

import (
	"context"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/correlation"
)

// Store is the persistence contract the correlator depends on.
type Store interface {
	// RecentlyActive returns every automation in organizationID last seen
	// within window, the candidate pool a run's affected automations are
	// grouped against.
	RecentlyActive(ctx context.Context, organizationID string, window time.Duration) ([]AutomationView, error)

	// InvalidateChainsTouching deletes every CorrelationChain referencing
	// any of automationIDs, implementing §4.8's "re-running invalidates
	// prior chains touching changed automations before writing replacements".
	InvalidateChainsTouching(ctx context.Context, organizationID string, automationIDs []string) error

	SaveChains(ctx context.Context, chains []correlation.CorrelationChain) error
}
