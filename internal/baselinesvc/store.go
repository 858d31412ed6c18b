package baselinesvc

import (
	"context"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
)

// Store is the Postgres-backed fallback path behind the Redis cache
// (§4.7.bis).
type Store interface {
	LoadBaseline(ctx context.Context, organizationID, automationID string) (*baseline.BehavioralBaseline, error)
	SaveBaseline(ctx context.Context, b baseline.BehavioralBaseline) error

	LoadThresholds(ctx context.Context, organizationID string) (DetectorThresholds, error)
	SaveThresholds(ctx context.Context, organizationID string, thresholds DetectorThresholds) error

	// RecentObservations returns up to minSampleSize of the automation's
	// most recent discovery-run samples, the window §4.7's "≥
	// minSampleSize recent automations" is built from.
	RecentObservations(ctx context.Context, organizationID, automationID string, minSampleSize int) ([]Observation, error)
}
