package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/shadowtrace/discovery-platform/internal/domain/organization"
	"github.com/shadowtrace/discovery-platform/internal/domain/user"
	"github.com/shadowtrace/discovery-platform/internal/platform/authtoken"
	svcerrors "github.com/shadowtrace/discovery-platform/internal/platform/errors"
)

type registerRequest struct {
	OrganizationName string `json:"organizationName"`
	Email            string `json:"email"`
	Password         string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

type userView struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Email          string    `json:"email"`
	Role           user.Role `json:"role"`
}

func toUserView(u user.User) userView {
	return userView{ID: u.ID, OrganizationID: u.OrganizationID, Email: u.Email, Role: u.Role}
}

// handleRegister creates a fresh organization and its first user (always
// RoleAdmin), the supplemented onboarding path §4.11.bis calls for.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, svcerrors.ValidationFailed("body", "invalid JSON"))
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" || req.OrganizationName == "" {
		respondError(w, svcerrors.ValidationFailed("email|password|organizationName", "all fields are required"))
		return
	}
	if len(req.Password) < 8 {
		respondError(w, svcerrors.ValidationFailed("password", "must be at least 8 characters"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, svcerrors.Internal("hash password", err))
		return
	}

	ctx := r.Context()
	org, err := s.store.CreateOrganization(ctx, organization.Organization{
		Name:     req.OrganizationName,
		Tier:     organization.TierFree,
		Settings: organization.DefaultSettings(),
	})
	if err != nil {
		respondError(w, svcerrors.Internal("create organization", err))
		return
	}

	u, err := s.store.CreateUser(ctx, user.User{
		OrganizationID: org.ID,
		Email:          req.Email,
		PasswordHash:   string(hash),
		Role:           user.RoleAdmin,
	})
	if err != nil {
		respondError(w, svcerrors.Internal("create user", err))
		return
	}
	s.audit(ctx, org.ID, u.ID, "organization.registered", "organization", org.ID)

	s.issueSession(w, r, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, svcerrors.ValidationFailed("body", "invalid JSON"))
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ctx := r.Context()
	// Email is unique per organization, not globally; login resolves the
	// organization from the email's first match since a bare login request
	// carries no organization id of its own.
	u, err := s.store.GetUserByEmailAnyOrg(ctx, req.Email)
	if err != nil {
		respondError(w, svcerrors.AuthRequired("invalid credentials"))
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		respondError(w, svcerrors.AuthRequired("invalid credentials"))
		return
	}
	s.audit(ctx, u.OrganizationID, u.ID, "user.login_succeeded", "user", u.ID)

	s.issueSession(w, r, u)
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, u user.User) {
	token, err := s.signer.Issue(u)
	if err != nil {
		respondError(w, svcerrors.Internal("issue session token", err))
		return
	}
	now := time.Now().UTC()
	_, err = s.store.CreateSession(r.Context(), user.Session{
		UserID:    u.ID,
		TokenHash: hashToken(token),
		ExpiresAt: now.Add(authtoken.SessionDuration),
	})
	if err != nil {
		respondError(w, svcerrors.Internal("create session", err))
		return
	}
	respondOK(w, http.StatusOK, authResponse{Token: token, User: toUserView(u)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	raw := strings.TrimPrefix(authHeader, "Bearer ")
	if raw == "" {
		respondOK(w, http.StatusOK, map[string]string{"status": "logged_out"})
		return
	}
	sess, err := s.store.GetSessionByTokenHash(r.Context(), hashToken(raw))
	if err == nil {
		_ = s.store.DeleteSession(r.Context(), sess.ID)
	}
	respondOK(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, svcerrors.AuthRequired("missing principal"))
		return
	}
	u, err := s.store.GetUser(r.Context(), p.UserID)
	if err != nil {
		respondError(w, svcerrors.NotFound("user", p.UserID))
		return
	}
	respondOK(w, http.StatusOK, toUserView(u))
}

type createAPIKeyRequest struct {
	Label string `json:"label"`
}

type apiKeyView struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// handleCreateAPIKey generates a fresh key, returning the raw secret exactly
// once; only its hash is ever persisted.
func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, svcerrors.AuthRequired("missing principal"))
		return
	}
	var req createAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, svcerrors.ValidationFailed("body", "invalid JSON"))
		return
	}
	raw, err := generateAPIKeySecret()
	if err != nil {
		respondError(w, svcerrors.Internal("generate api key", err))
		return
	}
	key, err := s.store.CreateAPIKey(r.Context(), user.APIKey{
		OrganizationID: p.OrganizationID,
		UserID:         p.UserID,
		KeyHash:        hashToken(raw),
		Label:          req.Label,
	})
	if err != nil {
		respondError(w, svcerrors.Internal("create api key", err))
		return
	}
	s.audit(r.Context(), p.OrganizationID, p.UserID, "api_key.created", "api_key", key.ID)
	respondOK(w, http.StatusCreated, map[string]interface{}{
		"id":    key.ID,
		"label": key.Label,
		"key":   raw,
	})
}

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, svcerrors.AuthRequired("missing principal"))
		return
	}
	keys, err := s.store.ListAPIKeysForUser(r.Context(), p.UserID)
	if err != nil {
		respondError(w, svcerrors.Internal("list api keys", err))
		return
	}
	views := make([]apiKeyView, 0, len(keys))
	for _, k := range keys {
		if k.RevokedAt != nil {
			continue
		}
		views = append(views, apiKeyView{ID: k.ID, Label: k.Label, CreatedAt: k.CreatedAt, LastUsedAt: k.LastUsedAt})
	}
	respondOK(w, http.StatusOK, views)
}

func (s *Server) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	id := mux.Vars(r)["id"]
	if err := s.store.RevokeAPIKey(r.Context(), id); err != nil {
		respondError(w, svcerrors.NotFound("api_key", id))
		return
	}
	s.audit(r.Context(), p.OrganizationID, p.UserID, "api_key.revoked", "api_key", id)
	respondOK(w, http.StatusOK, map[string]string{"status": "revoked"})
}
