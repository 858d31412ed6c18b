// Package discoveryengine drives DiscoveryRuns: per-connection adapter
// streaming, automation upsert, soft-expiry of stale records, and the
// detector/correlator post-process pass (SPEC_FULL §4.4).
package discoveryengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shadowtrace/discovery-platform/internal/connectors"
	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/credential"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
	svcerrors "github.com/shadowtrace/discovery-platform/internal/platform/errors"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
	"github.com/shadowtrace/discovery-platform/internal/platform/metrics"
	"github.com/shadowtrace/discovery-platform/internal/vault"
)

// GraceWindow is how long an automation may go unseen before a run
// soft-expires it (§4.4 step 6).
const GraceWindow = 72 * time.Hour

// TriggerOptions customizes one triggerRun invocation.
type TriggerOptions struct {
	Trigger discovery.Trigger
}

// ConnectionLookup resolves connection metadata the engine needs but does
// not own (platform, organization id); satisfied by internal/storage/postgres.
type ConnectionLookup interface {
	GetConnection(ctx context.Context, organizationID, connectionID string) (connection.PlatformConnection, error)
}

// Engine runs DiscoveryRuns. It holds an in-process per-connection advisory
// lock; a multi-instance deployment additionally relies on the database
// transition in internal/storage/postgres to make concurrent triggerRun
// calls from different processes safely no-op on the losing side.
type Engine struct {
	connections ConnectionLookup
	registry    *connectors.Registry
	vault       *vault.Vault
	store       Store
	detectors   DetectorRunner
	correlator  Correlator
	publisher   EventPublisher
	log         *logging.Logger
	metrics     *metrics.Metrics
	baseline    BaselineUpdater

	locksMu sync.Mutex
	locks   map[string]bool // connection_id -> in-flight
}

// WithBaselineUpdater wires the Baseline & Reinforcement Module into the
// engine's post-process step. Left unset, baselines are never recomputed
// and detectors relying on them stay in their cold-start "learning" state.
func (e *Engine) WithBaselineUpdater(b BaselineUpdater) *Engine {
	e.baseline = b
	return e
}

// New constructs an Engine.
func New(connections ConnectionLookup, registry *connectors.Registry, v *vault.Vault, store Store, detectors DetectorRunner, correlator Correlator, publisher EventPublisher, log *logging.Logger, m *metrics.Metrics) *Engine {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &Engine{
		connections: connections,
		registry:    registry,
		vault:       v,
		store:       store,
		detectors:   detectors,
		correlator:  correlator,
		publisher:   publisher,
		log:         log,
		metrics:     m,
		locks:       make(map[string]bool),
	}
}

// TriggerRun starts a DiscoveryRun for connectionID. A second trigger while
// one is already running for the same connection is coalesced: it returns
// immediately with a Conflict error rather than queuing a duplicate.
func (e *Engine) TriggerRun(ctx context.Context, organizationID, connectionID string, opts TriggerOptions) (string, error) {
	if !e.acquireLock(connectionID) {
		return "", svcerrors.Conflict("a discovery run is already in progress for this connection")
	}

	conn, err := e.connections.GetConnection(ctx, organizationID, connectionID)
	if err != nil {
		e.releaseLock(connectionID)
		return "", err
	}

	run := &discovery.DiscoveryRun{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		ConnectionID:   connectionID,
		Trigger:        opts.Trigger,
		Status:         discovery.RunStatusQueued,
		StartedAt:      time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		e.releaseLock(connectionID)
		return "", err
	}

	e.publisher.Publish(ctx, organizationID, "discovery.started", map[string]any{
		"run_id": run.ID, "connection_id": connectionID,
	})

	go func() {
		defer e.releaseLock(connectionID)
		// A run outlives the triggering request's context; give it its own
		// bounded lifetime instead.
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		e.execute(runCtx, run, conn)
	}()

	return run.ID, nil
}

func (e *Engine) acquireLock(connectionID string) bool {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	if e.locks[connectionID] {
		return false
	}
	e.locks[connectionID] = true
	return true
}

func (e *Engine) releaseLock(connectionID string) {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	delete(e.locks, connectionID)
}

func (e *Engine) execute(ctx context.Context, run *discovery.DiscoveryRun, conn connection.PlatformConnection) {
	start := time.Now()
	adapter, err := e.registry.Get(conn.Platform)
	if err != nil {
		e.fail(ctx, run, err)
		return
	}

	var creds credential.OAuthTokenPayload
	if err := e.vault.Get(ctx, conn.OrganizationID, conn.ID, &creds); err != nil {
		e.fail(ctx, run, fmt.Errorf("load credentials: %w", err))
		return
	}

	stream, err := adapter.Discover(ctx, creds, "")
	if err != nil {
		e.fail(ctx, run, fmt.Errorf("start discovery stream: %w", err))
		return
	}

	var affected []string
	var itemErrors int
	for event := range stream {
		if event.Err != nil {
			itemErrors++
			e.log.Warn(ctx, "discovery engine: adapter emitted item error", map[string]interface{}{
				"run_id": run.ID, "error": event.Err.Error(),
			})
			continue
		}
		if event.Kind != connectors.EventKindAutomation {
			continue
		}

		vendorName := ExtractVendorName(event.Name)
		automation := &discovery.DiscoveredAutomation{
			ID:             uuid.NewString(),
			OrganizationID: conn.OrganizationID,
			ConnectionID:   conn.ID,
			DiscoveryRunID: run.ID,
			ExternalID:     event.ExternalID,
			Name:           event.Name,
			Kind:           discovery.AutomationKind(event.AutomationKind),
			Metadata:       event.Metadata,
			FirstSeenAt:    time.Now().UTC(),
			LastSeenAt:     time.Now().UTC(),
		}
		if automation.Metadata == nil {
			automation.Metadata = map[string]any{}
		}
		automation.Metadata["vendor_name"] = vendorName
		automation.Metadata["vendor_group"] = VendorGroup(vendorName, string(conn.Platform))

		id, _, err := e.store.UpsertAutomation(ctx, automation)
		if err != nil {
			itemErrors++
			e.log.Warn(ctx, "discovery engine: upsert automation failed", map[string]interface{}{
				"run_id": run.ID, "error": err.Error(),
			})
			continue
		}
		affected = append(affected, id)

		sample := ActivitySample{
			Timestamp: automation.LastSeenAt,
			Scopes:    event.Permissions,
		}
		if n, ok := event.Metadata["event_count"].(int); ok {
			sample.EventCount = n
		} else {
			sample.EventCount = 1
		}
		if b, ok := event.Metadata["bytes_transferred"].(int64); ok {
			sample.BytesTransferred = b
		}
		if r, ok := event.Metadata["records_touched"].(int); ok {
			sample.RecordsTouched = r
		}
		if err := e.store.RecordActivitySample(ctx, conn.OrganizationID, id, sample); err != nil {
			e.log.Warn(ctx, "discovery engine: record activity sample failed", map[string]interface{}{
				"run_id": run.ID, "error": err.Error(),
			})
		}
	}

	if err := e.store.SoftExpireStale(ctx, conn.OrganizationID, conn.ID, run.StartedAt, GraceWindow); err != nil {
		e.log.Warn(ctx, "discovery engine: soft-expire pass failed", map[string]interface{}{
			"run_id": run.ID, "error": err.Error(),
		})
	}

	var warnings []string
	if len(affected) > 0 && e.detectors != nil {
		w, err := e.detectors.RunAll(ctx, conn.OrganizationID, affected)
		warnings = append(warnings, w...)
		if err != nil {
			e.log.Warn(ctx, "discovery engine: detector pass returned error", map[string]interface{}{
				"run_id": run.ID, "error": err.Error(),
			})
		}
		if e.correlator != nil {
			e.publisher.Publish(ctx, conn.OrganizationID, "correlation:started", map[string]any{
				"run_id": run.ID, "automation_count": len(affected),
			})
			if err := e.correlator.Correlate(ctx, conn.OrganizationID, affected); err != nil {
				e.log.Warn(ctx, "discovery engine: correlator pass failed", map[string]interface{}{
					"run_id": run.ID, "error": err.Error(),
				})
			}
		}
		if e.baseline != nil {
			for _, automationID := range affected {
				if _, err := e.baseline.RecomputeBaseline(ctx, conn.OrganizationID, automationID); err != nil {
					e.log.Warn(ctx, "discovery engine: baseline recompute failed", map[string]interface{}{
						"run_id": run.ID, "automation_id": automationID, "error": err.Error(),
					})
				}
			}
		}
	}

	status := discovery.RunStatusCompleted
	if itemErrors > 0 || len(warnings) > 0 {
		status = discovery.RunStatusCompleted // partial outcomes still report completed with warnings logged
	}
	if err := e.store.UpdateRunStatus(ctx, run.ID, status, len(affected), ""); err != nil {
		e.log.Warn(ctx, "discovery engine: update run status failed", map[string]interface{}{"run_id": run.ID, "error": err.Error()})
	}

	if e.metrics != nil {
		e.metrics.RecordDiscoveryRun(string(conn.Platform), string(status), time.Since(start))
	}
	e.publisher.Publish(ctx, conn.OrganizationID, "discovery.completed", map[string]any{
		"run_id": run.ID, "connection_id": conn.ID, "automations_found": len(affected), "status": status,
	})
	e.log.LogDiscoveryRun(ctx, run.ID, conn.ID, string(status), len(affected))
}

func (e *Engine) fail(ctx context.Context, run *discovery.DiscoveryRun, cause error) {
	if err := e.store.UpdateRunStatus(ctx, run.ID, discovery.RunStatusFailed, 0, cause.Error()); err != nil {
		e.log.Warn(ctx, "discovery engine: update run status to failed also failed", map[string]interface{}{
			"run_id": run.ID, "error": err.Error(),
		})
	}
	e.publisher.Publish(ctx, run.OrganizationID, "discovery.failed", map[string]any{
		"run_id": run.ID, "connection_id": run.ConnectionID, "error": cause.Error(),
	})
	e.log.LogDiscoveryRun(ctx, run.ID, run.ConnectionID, string(discovery.RunStatusFailed), 0)
}
