package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/shadowtrace/discovery-platform/internal/discoveryengine"
	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/credential"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
	"github.com/shadowtrace/discovery-platform/internal/domain/feedback"
	svcerrors "github.com/shadowtrace/discovery-platform/internal/platform/errors"
)

type connectionView struct {
	ID                string     `json:"id"`
	Platform          string     `json:"platform"`
	State             string     `json:"state"`
	DisplayName       string     `json:"displayName"`
	ExternalAccountID string     `json:"externalAccountId"`
	LastSyncAt        *time.Time `json:"lastSyncAt,omitempty"`
	LastErrorMessage  string     `json:"lastErrorMessage,omitempty"`
}

func toConnectionView(c connection.PlatformConnection) connectionView {
	return connectionView{
		ID:                c.ID,
		Platform:          string(c.Platform),
		State:             string(c.State),
		DisplayName:       c.DisplayName,
		ExternalAccountID: c.ExternalAccountID,
		LastSyncAt:        c.LastSyncAt,
		LastErrorMessage:  c.LastErrorMessage,
	}
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	conns, err := s.store.ListConnectionsForOrganization(r.Context(), p.OrganizationID)
	if err != nil {
		respondError(w, svcerrors.Internal("list connections", err))
		return
	}
	views := make([]connectionView, 0, len(conns))
	for _, c := range conns {
		views = append(views, toConnectionView(c))
	}
	respondOK(w, http.StatusOK, views)
}

// handleRevokeConnection performs the user-initiated revoke transition
// (§4.3): the connection moves straight to StateRevoked regardless of its
// current state, and the Connection Manager's background loop stops
// touching it (ListNonRevoked excludes it going forward).
func (s *Server) handleRevokeConnection(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	connectionID := mux.Vars(r)["connectionId"]

	if _, err := s.store.GetConnection(r.Context(), p.OrganizationID, connectionID); err != nil {
		respondError(w, svcerrors.NotFound("connection", connectionID))
		return
	}
	if err := s.store.TransitionState(r.Context(), p.OrganizationID, connectionID, connection.StateRevoked, "revoked by user"); err != nil {
		respondError(w, svcerrors.Internal("revoke connection", err))
		return
	}
	s.audit(r.Context(), p.OrganizationID, p.UserID, "connection.revoked", "connection", connectionID)
	respondOK(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// handleOAuthAuthorize returns the platform's consent URL. The state
// parameter is a signed, stateless token (organization id + nonce + expiry)
// rather than a server-side session row, since the schema carries no
// oauth_states table for this supplemented endpoint.
func (s *Server) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	platform := connection.Platform(mux.Vars(r)["platform"])

	adapter, err := s.connectors.Get(platform)
	if err != nil {
		respondError(w, svcerrors.ValidationFailed("platform", "unsupported platform"))
		return
	}

	state, err := s.oauthState.sign(p.OrganizationID, platform)
	if err != nil {
		respondError(w, svcerrors.Internal("sign oauth state", err))
		return
	}

	url, err := adapter.BuildAuthorizationURL(state)
	if err != nil {
		respondError(w, svcerrors.Internal("build authorization url", err))
		return
	}
	respondOK(w, http.StatusOK, map[string]string{"authorizationUrl": url})
}

// handleOAuthCallback exchanges the authorization code, seals the resulting
// token in the vault, and records the connection. Unlike most handlers this
// one trusts the organization embedded in the signed state rather than a
// bearer token, since the identity provider redirects the browser here
// directly and may not carry the platform's own session.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	platform := connection.Platform(mux.Vars(r)["platform"])
	code := r.URL.Query().Get("code")
	stateParam := r.URL.Query().Get("state")
	if code == "" || stateParam == "" {
		respondError(w, svcerrors.ValidationFailed("code|state", "both are required"))
		return
	}

	organizationID, statedPlatform, err := s.oauthState.verify(stateParam)
	if err != nil || statedPlatform != platform {
		respondError(w, svcerrors.TokenInvalid(err))
		return
	}

	adapter, err := s.connectors.Get(platform)
	if err != nil {
		respondError(w, svcerrors.ValidationFailed("platform", "unsupported platform"))
		return
	}

	ctx := r.Context()
	creds, userInfo, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		respondError(w, svcerrors.UpstreamUnavailable(string(platform), err))
		return
	}

	conn, err := s.store.CreateConnection(ctx, connection.PlatformConnection{
		OrganizationID:    organizationID,
		Platform:          platform,
		State:             connection.StateActive,
		DisplayName:       userInfo.DisplayName,
		ExternalAccountID: userInfo.ExternalAccountID,
	})
	if err != nil {
		respondError(w, svcerrors.Internal("create connection", err))
		return
	}

	if _, err := s.vault.Put(ctx, organizationID, conn.ID, credential.KindOAuthToken, credential.OAuthTokenPayload{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
		Scope:        creds.Scope,
		ExpiresAt:    creds.ExpiresAt,
	}); err != nil {
		respondError(w, svcerrors.Internal("seal credentials", err))
		return
	}
	s.audit(ctx, organizationID, "", "connection.created", "connection", conn.ID)

	respondOK(w, http.StatusCreated, toConnectionView(conn))
}

func (s *Server) handleTriggerDiscovery(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	connectionID := mux.Vars(r)["connectionId"]

	runID, err := s.trigger.TriggerRun(r.Context(), p.OrganizationID, connectionID, discoveryengine.TriggerOptions{
		Trigger: discovery.TriggerManual,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	s.audit(r.Context(), p.OrganizationID, p.UserID, "discovery.triggered", "connection", connectionID)
	respondOK(w, http.StatusAccepted, map[string]string{"runId": runID})
}

type automationView struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Kind          string         `json:"kind"`
	Platform      string         `json:"platform"`
	OwnerIdentity string         `json:"ownerIdentity,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	RiskScore     int            `json:"riskScore,omitempty"`
	RiskLevel     string         `json:"riskLevel,omitempty"`
	HasRisk       bool           `json:"hasRisk"`
	FirstSeenAt   time.Time      `json:"firstSeenAt"`
	LastSeenAt    time.Time      `json:"lastSeenAt"`
}

func toAutomationView(row AutomationRow) automationView {
	return automationView{
		ID:            row.ID,
		Name:          row.Name,
		Kind:          string(row.Kind),
		Platform:      string(row.Platform),
		OwnerIdentity: row.OwnerIdentity,
		Metadata:      row.Metadata,
		RiskScore:     row.RiskScore,
		RiskLevel:     string(row.RiskLevel),
		HasRisk:       row.HasRisk,
		FirstSeenAt:   row.FirstSeenAt,
		LastSeenAt:    row.LastSeenAt,
	}
}

// vendorGroup is the §4.11 grouped response shape: automations bucketed by
// the vendor named in discovery metadata, one row per distinct vendor and
// platform pair.
type vendorGroup struct {
	VendorName       string           `json:"vendorName"`
	Platform         string           `json:"platform"`
	ApplicationCount int              `json:"applicationCount"`
	HighestRiskLevel string           `json:"highestRiskLevel"`
	Applications     []automationView `json:"applications"`
}

var riskLevelRank = map[string]int{"": 0, "low": 1, "medium": 2, "high": 3, "critical": 4}

func groupByVendor(rows []AutomationRow) []vendorGroup {
	order := make([]string, 0)
	groups := make(map[string]*vendorGroup)
	for _, row := range rows {
		vendorName, _ := row.Metadata["vendor_name"].(string)
		if vendorName == "" {
			vendorName = row.Name
		}
		key := vendorName + "|" + string(row.Platform)
		g, ok := groups[key]
		if !ok {
			g = &vendorGroup{VendorName: vendorName, Platform: string(row.Platform)}
			groups[key] = g
			order = append(order, key)
		}
		view := toAutomationView(row)
		g.Applications = append(g.Applications, view)
		g.ApplicationCount++
		if riskLevelRank[view.RiskLevel] > riskLevelRank[g.HighestRiskLevel] {
			g.HighestRiskLevel = view.RiskLevel
		}
	}
	out := make([]vendorGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return out
}

func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	query := r.URL.Query()

	groupBy := query.Get("groupBy")
	if groupBy != "" && groupBy != "vendor" {
		respondError(w, svcerrors.ValidationFailed("groupBy", "must be \"vendor\" if set"))
		return
	}

	limit := 50
	if raw := query.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	rows, nextCursor, err := s.store.ListAutomations(r.Context(), p.OrganizationID, ListAutomationsOptions{
		IncludeInactive: query.Get("includeInactive") == "true",
		Cursor:          query.Get("cursor"),
		Limit:           limit,
	})
	if err != nil {
		respondError(w, svcerrors.Internal("list automations", err))
		return
	}

	if groupBy == "vendor" {
		respondOK(w, http.StatusOK, map[string]interface{}{
			"vendorGroups": groupByVendor(rows),
			"nextCursor":   nextCursor,
		})
		return
	}

	views := make([]automationView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toAutomationView(row))
	}
	respondOK(w, http.StatusOK, map[string]interface{}{
		"automations": views,
		"nextCursor":  nextCursor,
	})
}

func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	id := mux.Vars(r)["id"]

	detail, err := s.store.GetAutomationDetail(r.Context(), p.OrganizationID, id)
	if err != nil {
		respondError(w, svcerrors.NotFound("automation", id))
		return
	}
	respondOK(w, http.StatusOK, map[string]interface{}{
		"automation": toAutomationView(detail.Automation),
		"detections": detail.Detections,
	})
}

type submitFeedbackRequest struct {
	AutomationID string `json:"automationId"`
	Disposition  string `json:"disposition"`
	Notes        string `json:"notes"`
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var req submitFeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, svcerrors.ValidationFailed("body", "invalid JSON"))
		return
	}
	if req.AutomationID == "" {
		respondError(w, svcerrors.ValidationFailed("automationId", "required"))
		return
	}

	fb, err := s.store.CreateFeedback(r.Context(), feedback.AutomationFeedback{
		OrganizationID: p.OrganizationID,
		AutomationID:   req.AutomationID,
		UserID:         p.UserID,
		Disposition:    feedback.Disposition(req.Disposition),
		Notes:          req.Notes,
	})
	if err != nil {
		respondError(w, svcerrors.Internal("create feedback", err))
		return
	}
	s.audit(r.Context(), p.OrganizationID, p.UserID, "feedback.submitted", "automation", req.AutomationID)
	s.adjustThresholdsFromFeedback(r.Context(), p.OrganizationID, req.AutomationID, fb)
	respondOK(w, http.StatusCreated, fb)
}

// adjustThresholdsFromFeedback feeds an analyst's disposition into the
// Baseline & Reinforcement Module for every detector pattern currently
// recorded against the automation (§4.7). It never fails the request: the
// feedback row is already committed, so a threshold-tuning error here is
// logged and nothing more.
func (s *Server) adjustThresholdsFromFeedback(ctx context.Context, organizationID, automationID string, fb feedback.AutomationFeedback) {
	if s.baseline == nil {
		return
	}
	detail, err := s.store.GetAutomationDetail(ctx, organizationID, automationID)
	if err != nil {
		s.log.Warn(ctx, "load automation detail for threshold adjustment failed", map[string]interface{}{"automation_id": automationID, "error": err.Error()})
		return
	}
	seen := make(map[string]bool, len(detail.Detections))
	for _, pattern := range detail.Detections {
		patternType := string(pattern.Type)
		if seen[patternType] {
			continue
		}
		seen[patternType] = true
		if _, err := s.baseline.AdjustThresholds(ctx, organizationID, fb, patternType); err != nil {
			s.log.Warn(ctx, "adjust detector thresholds failed", map[string]interface{}{"automation_id": automationID, "pattern_type": patternType, "error": err.Error()})
		}
	}
}
