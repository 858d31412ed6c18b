package api

import (
	"context"

	"github.com/shadowtrace/discovery-platform/internal/baselinesvc"
	"github.com/shadowtrace/discovery-platform/internal/discoveryengine"
	"github.com/shadowtrace/discovery-platform/internal/domain/feedback"
)

// DiscoveryTrigger starts a discovery run for a connection. In a
// single-process deployment it is the Discovery Engine itself; in a
// split deployment (§11.bis) it is a WorkerClient that forwards the
// request to cmd/worker's internal, ServiceToken-authenticated HTTP
// surface instead of running the engine in this process.
type DiscoveryTrigger interface {
	TriggerRun(ctx context.Context, organizationID, connectionID string, opts discoveryengine.TriggerOptions) (string, error)
}

// BaselineAdjuster tunes per-organization detector thresholds from analyst
// feedback (§4.7's adjustThresholds). Satisfied by internal/baselinesvc.Service.
// Optional: a nil BaselineAdjuster on Server leaves feedback persisted
// without any threshold effect.
type BaselineAdjuster interface {
	AdjustThresholds(ctx context.Context, organizationID string, fb feedback.AutomationFeedback, patternType string) (baselinesvc.DetectorThresholds, error)
}
