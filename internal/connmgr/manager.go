// Package connmgr owns the PlatformConnection state machine: periodic
// health checks, pre-expiry refreshes, and rate-limit accounting per
// connection (SPEC_FULL §4.3).
package connmgr

import (
	"context"
	"sync"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/connectors"
	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/credential"
	svcerrors "github.com/shadowtrace/discovery-platform/internal/platform/errors"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
	"github.com/shadowtrace/discovery-platform/internal/platform/metrics"
	"github.com/shadowtrace/discovery-platform/internal/system"
	"github.com/shadowtrace/discovery-platform/internal/vault"
)

// RefreshExpiryDelta is how far ahead of expires_at a refresh is fired
// (§4.3: "δ where δ defaults to 5 minutes").
const RefreshExpiryDelta = 5 * time.Minute

// DefaultRefreshRetryPolicy retries a transient refresh failure (rate limit,
// network blip) up to three times after the initial attempt, with
// exponential backoff (§7). It is
// never applied to an InvalidGrant: that error is terminal per §4.3 and is
// revoked on the first attempt.
var DefaultRefreshRetryPolicy = system.RetryPolicy{
	Attempts:       3,
	InitialBackoff: 2 * time.Second,
	MaxBackoff:     30 * time.Second,
	Multiplier:     2,
}

// Ensure Manager implements system.Service, the same lifecycle contract the
// teacher's automation scheduler satisfies.
var _ system.Service = (*Manager)(nil)

// Manager runs the periodic health-check/refresh loop described in §4.3,
// structured the same way as the teacher's automation Scheduler: a single
// background goroutine driven by a ticker, started/stopped via
// system.Service.
type Manager struct {
	store    Store
	registry *connectors.Registry
	vault    *vault.Vault
	log      *logging.Logger
	interval time.Duration

	retryPolicy system.RetryPolicy
	hooks       system.ObservationHooks

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New constructs a Manager. interval controls health-check cadence; pass 0
// for the default of 60s. m may be nil, in which case refresh observations
// are discarded.
func New(store Store, registry *connectors.Registry, v *vault.Vault, log *logging.Logger, m *metrics.Metrics, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	hooks := system.NoopObservationHooks
	if m != nil {
		hooks.OnComplete = func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			status := "success"
			if err != nil {
				status = "error"
			}
			m.RecordConnectionRefresh(meta["platform"], status, duration)
		}
	}
	return &Manager{
		store: store, registry: registry, vault: v, log: log, interval: interval,
		retryPolicy: DefaultRefreshRetryPolicy, hooks: hooks,
	}
}

func (m *Manager) Name() string { return "connection-manager" }

// Descriptor advertises this service's placement in the architecture.
func (m *Manager) Descriptor() system.Descriptor {
	return system.Descriptor{
		Name:         "connection-manager",
		Domain:       "connections",
		Layer:        system.LayerAdapter,
		Capabilities: []string{"health-check", "token-refresh", "state-machine"},
	}
}

// Start begins the background health-check/refresh loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.tick(runCtx)
			}
		}
	}()

	m.log.Info(ctx, "connection manager started", nil)
	return nil
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.log.Info(ctx, "connection manager stopped", nil)
	return nil
}

func (m *Manager) tick(ctx context.Context) {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conns, err := m.store.ListNonRevoked(listCtx)
	cancel()
	if err != nil {
		m.log.Warn(ctx, "connection manager: list connections failed", map[string]interface{}{"error": err.Error()})
		return
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn connection.PlatformConnection) {
			defer wg.Done()
			m.checkConnection(ctx, conn)
		}(conn)
	}
	wg.Wait()
}

// checkConnection runs one connection's health check and, if it is nearing
// expiry, a pre-expiry refresh. Per §4.3's backoff rule, non-active
// connections are checked by the ticker at the same cadence but failures
// there do not escalate state further (they are already degraded/error).
func (m *Manager) checkConnection(ctx context.Context, conn connection.PlatformConnection) {
	adapter, err := m.registry.Get(conn.Platform)
	if err != nil {
		m.log.Warn(ctx, "connection manager: no adapter for platform", map[string]interface{}{
			"platform": string(conn.Platform), "error": err.Error(),
		})
		return
	}

	var creds credential.OAuthTokenPayload
	if err := m.vault.Get(ctx, conn.OrganizationID, conn.ID, &creds); err != nil {
		m.transition(ctx, conn, connection.StateError, "credential unavailable: "+err.Error())
		return
	}

	if !creds.ExpiresAt.IsZero() && time.Until(creds.ExpiresAt) <= RefreshExpiryDelta {
		m.refresh(ctx, conn, adapter, creds)
		return
	}

	if err := adapter.ValidateToken(ctx, creds); err != nil {
		if svcerrors.Code(err) == svcerrors.ErrCodeInvalidGrant {
			m.transition(ctx, conn, connection.StateRevoked, "token rejected by platform")
			return
		}
		m.transition(ctx, conn, connection.StateDegraded, err.Error())
		return
	}

	if conn.State != connection.StateActive {
		m.transition(ctx, conn, connection.StateActive, "")
	}
}

func (m *Manager) refresh(ctx context.Context, conn connection.PlatformConnection, adapter connectors.Adapter, creds credential.OAuthTokenPayload) {
	done := system.StartObservation(ctx, m.hooks, map[string]string{"platform": string(conn.Platform)})

	newCreds, err := adapter.Refresh(ctx, creds)
	if err != nil && svcerrors.Code(err) != svcerrors.ErrCodeInvalidGrant {
		// Transient error (rate limit, network): retry with capped
		// exponential backoff (§7) before giving up for this tick.
		err = system.Retry(ctx, m.retryPolicy, func() error {
			var retryErr error
			newCreds, retryErr = adapter.Refresh(ctx, creds)
			return retryErr
		})
	}
	done(err)

	if err != nil {
		if svcerrors.Code(err) == svcerrors.ErrCodeInvalidGrant {
			// A refresh rejected outright is classified InvalidGrant: the
			// transition is connected -> expired(revoked) and discovery is
			// suppressed on this connection going forward. Terminal, so no
			// retry budget is spent on it.
			m.transition(ctx, conn, connection.StateRevoked, "refresh rejected: "+err.Error())
			return
		}
		m.log.Warn(ctx, "connection manager: refresh retries exhausted", map[string]interface{}{"error": err.Error()})
		m.transition(ctx, conn, connection.StateDegraded, "refresh failed: "+err.Error())
		return
	}

	payload := credential.OAuthTokenPayload{
		AccessToken:  newCreds.AccessToken,
		RefreshToken: newCreds.RefreshToken,
		TokenType:    newCreds.TokenType,
		Scope:        newCreds.Scope,
		ExpiresAt:    newCreds.ExpiresAt,
	}
	if _, err := m.vault.Rotate(ctx, conn.OrganizationID, conn.ID, credential.KindOAuthToken, payload); err != nil {
		m.log.Warn(ctx, "connection manager: store refreshed credential failed", map[string]interface{}{"error": err.Error()})
		m.transition(ctx, conn, connection.StateDegraded, "credential store failed after refresh")
		return
	}
	m.transition(ctx, conn, connection.StateActive, "")
}

func (m *Manager) transition(ctx context.Context, conn connection.PlatformConnection, newState connection.State, errMessage string) {
	if conn.State == newState {
		return
	}
	if !connection.CanTransition(conn.State, newState) {
		m.log.Warn(ctx, "connection manager: rejected illegal state transition", map[string]interface{}{
			"from": string(conn.State), "to": string(newState),
		})
		return
	}
	if err := m.store.TransitionState(ctx, conn.OrganizationID, conn.ID, newState, errMessage); err != nil {
		m.log.Warn(ctx, "connection manager: persist state transition failed", map[string]interface{}{"error": err.Error()})
		return
	}
	m.log.LogSecurityEvent(ctx, "connection.state_transition", map[string]interface{}{
		"connection_id": conn.ID,
		"from":          string(conn.State),
		"to":            string(newState),
	})
}
