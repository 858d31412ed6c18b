package api

import (
	"context"

	"github.com/shadowtrace/discovery-platform/internal/domain/audit"
	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
	"github.com/shadowtrace/discovery-platform/internal/domain/feedback"
	"github.com/shadowtrace/discovery-platform/internal/domain/organization"
	"github.com/shadowtrace/discovery-platform/internal/domain/user"
)

// ListAutomationsOptions scopes and paginates Store.ListAutomations.
type ListAutomationsOptions struct {
	IncludeInactive bool
	Cursor          string
	Limit           int
}

// AutomationRow is one automation's list-view projection, joined with its
// owning platform and (if computed) current risk assessment.
type AutomationRow struct {
	discovery.DiscoveredAutomation
	Platform  connection.Platform
	RiskScore int
	RiskLevel detection.RiskLevel
	HasRisk   bool
}

// AutomationDetailRow is a single automation's full read model.
type AutomationDetailRow struct {
	Automation AutomationRow
	Detections []detection.DetectionPattern
}

// Store is the full read/write surface the API Surface depends on. Every
// method here is already implemented by internal/storage/postgres.Store —
// most were built for other domain services and are reused verbatim; the
// handful the API Surface alone needs (ListAutomations, GetAutomationDetail)
// live in store_api.go.
type Store interface {
	CreateOrganization(ctx context.Context, org organization.Organization) (organization.Organization, error)
	GetOrganization(ctx context.Context, organizationID string) (organization.Organization, error)

	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, organizationID, email string) (user.User, error)
	GetUserByEmailAnyOrg(ctx context.Context, email string) (user.User, error)

	CreateSession(ctx context.Context, sess user.Session) (user.Session, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (user.Session, error)
	TouchSession(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error

	CreateAPIKey(ctx context.Context, key user.APIKey) (user.APIKey, error)
	GetAPIKeyByHash(ctx context.Context, keyHash string) (user.APIKey, error)
	ListAPIKeysForUser(ctx context.Context, userID string) ([]user.APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID string) error
	TouchAPIKeyLastUsed(ctx context.Context, keyID string) error

	CreateConnection(ctx context.Context, conn connection.PlatformConnection) (connection.PlatformConnection, error)
	GetConnection(ctx context.Context, organizationID, connectionID string) (connection.PlatformConnection, error)
	ListConnectionsForOrganization(ctx context.Context, organizationID string) ([]connection.PlatformConnection, error)
	TransitionState(ctx context.Context, organizationID, connectionID string, newState connection.State, errMessage string) error

	ListAutomations(ctx context.Context, organizationID string, opts ListAutomationsOptions) (rows []AutomationRow, nextCursor string, err error)
	GetAutomationDetail(ctx context.Context, organizationID, automationID string) (AutomationDetailRow, error)

	CreateFeedback(ctx context.Context, fb feedback.AutomationFeedback) (feedback.AutomationFeedback, error)

	AppendAuditEntry(ctx context.Context, entry audit.AuditLogEntry) error
}
