package api

import (
	"net/http"
	"strconv"

	"github.com/shadowtrace/discovery-platform/internal/analytics"
	svcerrors "github.com/shadowtrace/discovery-platform/internal/platform/errors"
)

func parseWindow(r *http.Request) analytics.Window {
	switch r.URL.Query().Get("window") {
	case "month":
		return analytics.WindowMonth
	case "quarter":
		return analytics.WindowQuarter
	default:
		return analytics.WindowWeek
	}
}

func (s *Server) handleRiskTrends(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	trends, err := s.analytics.RiskTrends(r.Context(), p.OrganizationID, parseWindow(r))
	if err != nil {
		respondError(w, svcerrors.Internal("risk trends", err))
		return
	}
	respondOK(w, http.StatusOK, trends)
}

func (s *Server) handlePlatformDistribution(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	dist, err := s.analytics.PlatformDistribution(r.Context(), p.OrganizationID)
	if err != nil {
		respondError(w, svcerrors.Internal("platform distribution", err))
		return
	}
	respondOK(w, http.StatusOK, dist)
}

func (s *Server) handleAutomationGrowth(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	growth, err := s.analytics.AutomationGrowth(r.Context(), p.OrganizationID, parseWindow(r))
	if err != nil {
		respondError(w, svcerrors.Internal("automation growth", err))
		return
	}
	respondOK(w, http.StatusOK, growth)
}

func (s *Server) handleTopRisks(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	risks, err := s.analytics.TopRisks(r.Context(), p.OrganizationID, limit)
	if err != nil {
		respondError(w, svcerrors.Internal("top risks", err))
		return
	}
	respondOK(w, http.StatusOK, risks)
}

func (s *Server) handleSummaryStats(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	stats, err := s.analytics.SummaryStats(r.Context(), p.OrganizationID)
	if err != nil {
		respondError(w, svcerrors.Internal("summary stats", err))
		return
	}
	respondOK(w, http.StatusOK, stats)
}

func (s *Server) handleHeatMap(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	heatMap, err := s.analytics.HeatMap(r.Context(), p.OrganizationID)
	if err != nil {
		respondError(w, svcerrors.Internal("heat map", err))
		return
	}
	respondOK(w, http.StatusOK, heatMap)
}

func (s *Server) handleTypeDistribution(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	dist, err := s.analytics.AutomationTypeDistribution(r.Context(), p.OrganizationID)
	if err != nil {
		respondError(w, svcerrors.Internal("type distribution", err))
		return
	}
	respondOK(w, http.StatusOK, dist)
}
