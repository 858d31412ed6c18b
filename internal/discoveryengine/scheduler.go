package discoveryengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
	"github.com/shadowtrace/discovery-platform/internal/domain/organization"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
	"github.com/shadowtrace/discovery-platform/internal/system"
)

var _ system.Service = (*Scheduler)(nil)

// OrgConnectionLister enumerates an organization's non-revoked connections,
// the fan-out target of a periodic trigger.
type OrgConnectionLister interface {
	ListOrganizations(ctx context.Context) ([]organization.Organization, error)
	ListConnectionsForOrganization(ctx context.Context, organizationID string) ([]connection.PlatformConnection, error)
}

// Scheduler registers one robfig/cron/v3 job per organization at Start,
// from each organization's stored discovery.frequencyHours (§4.4.bis). A
// later settings change takes effect only when Reschedule is called for
// that organization; nothing in this module calls it. Each firing calls
// the same Engine.TriggerRun a manual REST call would.
type Scheduler struct {
	engine *Engine
	orgs   OrgConnectionLister
	log    *logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID // organization_id -> registered entry
	running bool
}

// NewScheduler constructs a Scheduler.
func NewScheduler(engine *Engine, orgs OrgConnectionLister, log *logging.Logger) *Scheduler {
	return &Scheduler{
		engine:  engine,
		orgs:    orgs,
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Name() string { return "discovery-scheduler" }

func (s *Scheduler) Descriptor() system.Descriptor {
	return system.Descriptor{
		Name:         s.Name(),
		Domain:       "discovery",
		Layer:        system.LayerEngine,
		Capabilities: []string{"periodic-trigger"},
	}
}

// Start registers one cron entry per organization and begins running them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	s.cron = cron.New(cron.WithSeconds())
	orgs, err := s.orgs.ListOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("discovery scheduler: list organizations: %w", err)
	}
	for _, org := range orgs {
		if err := s.registerLocked(org); err != nil {
			s.log.Warn(ctx, "discovery scheduler: failed to register organization", map[string]interface{}{
				"organization_id": org.ID, "error": err.Error(),
			})
		}
	}

	s.cron.Start()
	s.running = true
	return nil
}

// Stop drains in-flight cron invocations and stops accepting new ones.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.running = false
	s.entries = make(map[string]cron.EntryID)
	return nil
}

// Reschedule re-registers org's cron entry at its current
// discovery.frequencyHours, replacing any prior entry. It does nothing
// while the scheduler is not running.
func (s *Scheduler) Reschedule(org organization.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	if id, ok := s.entries[org.ID]; ok {
		s.cron.Remove(id)
		delete(s.entries, org.ID)
	}
	return s.registerLocked(org)
}

func (s *Scheduler) registerLocked(org organization.Organization) error {
	frequency := org.Settings.Discovery.FrequencyHours
	if frequency == 0 {
		frequency = 24
	}
	spec := fmt.Sprintf("0 0 */%d * * *", frequency)
	organizationID := org.ID
	id, err := s.cron.AddFunc(spec, func() { s.fireOrganization(organizationID) })
	if err != nil {
		return fmt.Errorf("register cron entry: %w", err)
	}
	s.entries[organizationID] = id
	return nil
}

func (s *Scheduler) fireOrganization(organizationID string) {
	ctx := context.Background()
	conns, err := s.orgs.ListConnectionsForOrganization(ctx, organizationID)
	if err != nil {
		s.log.Warn(ctx, "discovery scheduler: list connections failed", map[string]interface{}{
			"organization_id": organizationID, "error": err.Error(),
		})
		return
	}
	for _, conn := range conns {
		if conn.State != connection.StateActive && conn.State != connection.StateDegraded {
			continue
		}
		if _, err := s.engine.TriggerRun(ctx, organizationID, conn.ID, TriggerOptions{Trigger: discovery.TriggerPeriodic}); err != nil {
			s.log.Warn(ctx, "discovery scheduler: trigger run failed", map[string]interface{}{
				"organization_id": organizationID, "connection_id": conn.ID, "error": err.Error(),
			})
		}
	}
}
