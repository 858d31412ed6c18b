package connmgr

import (
	"context"

	"github.com/shadowtrace/discovery-platform/internal/domain/connection"
)

// Store is the persistence contract the Connection Manager depends on. The
// postgres implementation lives in internal/storage/postgres.
type Store interface {
	ListNonRevoked(ctx context.Context) ([]connection.PlatformConnection, error)
	GetConnection(ctx context.Context, organizationID, connectionID string) (connection.PlatformConnection, error)
	// TransitionState persists a state change and its side-effect fields
	// (LastSyncAt, LastErrorMessage) in a single transactional unit.
	TransitionState(ctx context.Context, organizationID, connectionID string, newState connection.State, errMessage string) error
}
