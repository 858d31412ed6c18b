package discoveryengine

import (
	"context"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
)

// Store is the persistence contract the Discovery Engine depends on.
type Store interface {
	CreateRun(ctx context.Context, run *discovery.DiscoveryRun) error
	UpdateRunStatus(ctx context.Context, runID string, status discovery.RunStatus, automationsFound int, errMessage string) error

	// UpsertAutomation inserts a new automation or updates the mutable
	// fields of an existing one keyed by (connection_id, external_id),
	// returning the persisted row's id and whether it was newly created.
	UpsertAutomation(ctx context.Context, automation *discovery.DiscoveredAutomation) (id string, created bool, err error)

	// SoftExpireStale marks automations on connectionID not touched in this
	// run (i.e. last_seen_at older than graceWindow) as inactive.
	SoftExpireStale(ctx context.Context, organizationID, connectionID string, runStartedAt time.Time, graceWindow time.Duration) error

	// RecordActivitySample appends one activity-window observation for an
	// automation, the raw material detectors.Store.GetHistory and
	// baselinesvc's EMA adaptation are both built from.
	RecordActivitySample(ctx context.Context, organizationID, automationID string, sample ActivitySample) error
}

// ActivitySample is one discovery run's activity snapshot for an
// automation, derived from the adapter event that produced it.
type ActivitySample struct {
	Timestamp        time.Time
	EventCount       int
	BytesTransferred int64
	RecordsTouched   int
	Scopes           []string
}
