package discoveryengine

import (
	"context"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
)

// BaselineUpdater is the Baseline & Reinforcement Module's entry point as
// seen by the engine (§4.7: baselines are refreshed from the activity a run
// just recorded, the same way the detector pass is). Satisfied by
// internal/baselinesvc.Service.
type BaselineUpdater interface {
	RecomputeBaseline(ctx context.Context, organizationID, automationID string) (baseline.BehavioralBaseline, error)
}
