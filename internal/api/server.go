package api

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shadowtrace/discovery-platform/internal/analytics"
	"github.com/shadowtrace/discovery-platform/internal/connectors"
	"github.com/shadowtrace/discovery-platform/internal/domain/audit"
	"github.com/shadowtrace/discovery-platform/internal/platform/authtoken"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
	"github.com/shadowtrace/discovery-platform/internal/platform/metrics"
	"github.com/shadowtrace/discovery-platform/internal/platform/ratelimit"
	"github.com/shadowtrace/discovery-platform/internal/realtime"
	"github.com/shadowtrace/discovery-platform/internal/system"
	"github.com/shadowtrace/discovery-platform/internal/vault"
)

var _ system.Service = (*Server)(nil)
var _ system.DescriptorProvider = (*Server)(nil)

// Server is the API Surface (§4.11): a stateless REST/JSON HTTP server
// fronting every other service, structured as the teacher's gateway is —
// one http.Server lifted into the system.Service contract — generalized
// from its Marble-gateway specifics to this platform's own auth and domain
// surface.
type Server struct {
	store      Store
	db         *sql.DB
	signer     *authtoken.Signer
	connectors *connectors.Registry
	vault      *vault.Vault
	trigger    DiscoveryTrigger
	hub        *realtime.Hub
	baseline   BaselineAdjuster
	analytics  *analytics.Service
	oauthState *oauthStateSigner
	limiters   *orgLimiters
	log        *logging.Logger
	metrics    *metrics.Metrics

	httpServer *http.Server
	addr       string
}

// Deps bundles Server's constructor dependencies; every field is already
// wired up by cmd/api's main before Server is constructed. Trigger is
// either the Discovery Engine itself (single-process deployment) or a
// WorkerClient (split deployment, §11.bis).
type Deps struct {
	Store            Store
	DB               *sql.DB
	Signer           *authtoken.Signer
	Connectors       *connectors.Registry
	Vault            *vault.Vault
	Trigger          DiscoveryTrigger
	Hub              *realtime.Hub
	Baseline         BaselineAdjuster
	Analytics        *analytics.Service
	OAuthStateSecret string
	RateLimit        ratelimit.Config
	Log              *logging.Logger
	Metrics          *metrics.Metrics
	Addr             string
}

// New constructs the API Surface server. It does not start listening until
// Start is called.
func New(deps Deps) *Server {
	return &Server{
		store:      deps.Store,
		db:         deps.DB,
		signer:     deps.Signer,
		connectors: deps.Connectors,
		vault:      deps.Vault,
		trigger:    deps.Trigger,
		hub:        deps.Hub,
		baseline:   deps.Baseline,
		analytics:  deps.Analytics,
		oauthState: newOAuthStateSigner(deps.OAuthStateSecret),
		limiters:   newOrgLimiters(deps.RateLimit),
		log:        deps.Log,
		metrics:    deps.Metrics,
		addr:       deps.Addr,
	}
}

func (s *Server) Name() string { return "api-surface" }

func (s *Server) Descriptor() system.Descriptor {
	return system.Descriptor{
		Name:         "api-surface",
		Domain:       "api",
		Layer:        system.LayerIngress,
		Capabilities: []string{"rest", "oauth-callback", "analytics-read"},
	}
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// The Real-Time Hub authenticates its own caller from the first
	// WebSocket frame (§4.9.bis), so this route carries no auth middleware
	// of its own.
	if s.hub != nil {
		r.HandleFunc("/ws", s.hub.HandleWebSocket).Methods(http.MethodGet)
	}

	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/oauth/{platform}/authorize", s.handleOAuthAuthorize).Methods(http.MethodPost)
	auth.HandleFunc("/callback/{platform}", s.handleOAuthCallback).Methods(http.MethodGet)

	authedMiddleware := authMiddleware(s.store, s.signer, s.log)
	rateLimited := rateLimitMiddleware(s.limiters)

	authProtected := r.PathPrefix("/api/auth").Subrouter()
	authProtected.Use(authedMiddleware, rateLimited)
	authProtected.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	authProtected.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	authProtected.HandleFunc("/api-keys", s.handleCreateAPIKey).Methods(http.MethodPost)
	authProtected.HandleFunc("/api-keys", s.handleListAPIKeys).Methods(http.MethodGet)
	authProtected.HandleFunc("/api-keys/{id}", s.handleRevokeAPIKey).Methods(http.MethodDelete)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authedMiddleware, rateLimited)

	api.HandleFunc("/connections", s.handleListConnections).Methods(http.MethodGet)
	api.HandleFunc("/connections/{connectionId}", s.handleRevokeConnection).Methods(http.MethodDelete)
	api.HandleFunc("/discovery/{connectionId}", s.handleTriggerDiscovery).Methods(http.MethodPost)
	api.HandleFunc("/automations", s.handleListAutomations).Methods(http.MethodGet)
	api.HandleFunc("/automations/{id}", s.handleGetAutomation).Methods(http.MethodGet)
	api.HandleFunc("/feedback", s.handleSubmitFeedback).Methods(http.MethodPost)

	api.HandleFunc("/analytics/risk-trends", s.handleRiskTrends).Methods(http.MethodGet)
	api.HandleFunc("/analytics/platform-distribution", s.handlePlatformDistribution).Methods(http.MethodGet)
	api.HandleFunc("/analytics/automation-growth", s.handleAutomationGrowth).Methods(http.MethodGet)
	api.HandleFunc("/analytics/top-risks", s.handleTopRisks).Methods(http.MethodGet)
	api.HandleFunc("/analytics/summary", s.handleSummaryStats).Methods(http.MethodGet)
	api.HandleFunc("/analytics/heatmap", s.handleHeatMap).Methods(http.MethodGet)
	api.HandleFunc("/analytics/type-distribution", s.handleTypeDistribution).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady additionally checks the database is reachable, matching the
// teacher gateway's distinction between "process is up" and "process can
// serve traffic".
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "NOT_READY", Message: err.Error()})
		return
	}
	respondOK(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Start begins serving HTTP traffic. It returns once the listener is bound;
// Serve itself runs in its own goroutine and reports fatal errors to the
// logger, matching how the other long-running services in this process
// treat unexpected termination as a log event rather than a panic.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error(ctx, "api surface stopped unexpectedly", err, nil)
		}
	}()
	return nil
}

// Stop gracefully drains in-flight requests before closing the listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// audit records a security-relevant action. It never fails the request: a
// logging failure here shouldn't roll back work the user already sees
// succeeded, so errors are only logged, matching the teacher gateway's own
// best-effort audit write.
func (s *Server) audit(ctx context.Context, organizationID, actorUserID string, action audit.Action, resourceType, resourceID string) {
	err := s.store.AppendAuditEntry(ctx, audit.AuditLogEntry{
		OrganizationID: organizationID,
		ActorUserID:    actorUserID,
		Action:         action,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
	})
	if err != nil {
		s.log.Error(ctx, "append audit entry", err, map[string]interface{}{"action": string(action)})
	}
}
