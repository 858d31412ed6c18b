// Package workerapi exposes the Discovery Engine's internal, ServiceToken-
// protected HTTP contract (SPEC_FULL §11.bis) that a split-process cmd/api
// calls through internal/api.WorkerClient instead of invoking the engine
// in-process. It is the worker-side mirror of internal/api's Server: the
// same lifecycle shape (system.Service, a bound http.Server, graceful
// Shutdown), scoped to one route.
package workerapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shadowtrace/discovery-platform/internal/discoveryengine"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
	"github.com/shadowtrace/discovery-platform/internal/httputil"
	svcerrors "github.com/shadowtrace/discovery-platform/internal/platform/errors"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
	"github.com/shadowtrace/discovery-platform/internal/serviceauth"
	"github.com/shadowtrace/discovery-platform/internal/system"
)

var _ system.Service = (*Server)(nil)
var _ system.DescriptorProvider = (*Server)(nil)

// Trigger is the subset of *discoveryengine.Engine this surface drives.
type Trigger interface {
	TriggerRun(ctx context.Context, organizationID, connectionID string, opts discoveryengine.TriggerOptions) (string, error)
}

// Server is cmd/worker's internal HTTP surface.
type Server struct {
	engine    Trigger
	validator *serviceauth.Validator
	log       *logging.Logger
	addr      string

	httpServer *http.Server
}

// New constructs a Server. validator rejects any caller that isn't the "api"
// service identity (§11.bis: the worker only ever accepts triggers from the
// API Surface, never directly from end users).
func New(engine Trigger, validator *serviceauth.Validator, log *logging.Logger, addr string) *Server {
	return &Server{engine: engine, validator: validator, log: log, addr: addr}
}

func (s *Server) Name() string { return "worker-internal-surface" }

func (s *Server) Descriptor() system.Descriptor {
	return system.Descriptor{
		Name:         s.Name(),
		Domain:       "discovery",
		Layer:        system.LayerIngress,
		Capabilities: []string{"internal-trigger"},
	}
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/internal/health", s.handleHealth).Methods(http.MethodGet)

	internal := r.PathPrefix("/internal/v1").Subrouter()
	internal.Use(s.validator.Middleware)
	internal.HandleFunc("/discovery-runs/{connectionId}", s.handleTriggerRun).Methods(http.MethodPost)
	return r
}

type triggerRunRequest struct {
	OrganizationID string           `json:"organizationId"`
	Trigger        discovery.Trigger `json:"trigger"`
}

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	connectionID := mux.Vars(r)["connectionId"]

	var req triggerRunRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.OrganizationID == "" {
		httputil.WriteErrorWithCode(w, http.StatusBadRequest, "VALIDATION_FAILED", "organizationId is required")
		return
	}
	if req.Trigger == "" {
		req.Trigger = discovery.TriggerManual
	}

	runID, err := s.engine.TriggerRun(r.Context(), req.OrganizationID, connectionID, discoveryengine.TriggerOptions{
		Trigger: req.Trigger,
	})
	if err != nil {
		status := svcerrors.GetHTTPStatus(err)
		httputil.WriteErrorWithCode(w, status, string(svcerrors.Code(err)), err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Start begins serving the internal HTTP surface.
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
			s.log.Error(ctx, "worker internal surface stopped unexpectedly", err, nil)
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
