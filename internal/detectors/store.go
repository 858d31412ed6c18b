package detectors

import (
	"context"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
	"github.com/shadowtrace/discovery-platform/internal/domain/discovery"
	"github.com/shadowtrace/discovery-platform/internal/domain/organization"
)

// Store is the persistence contract the detector Set depends on to load
// each automation's evidence window and to persist the findings it produces.
type Store interface {
	GetOrganization(ctx context.Context, organizationID string) (organization.Organization, error)
	GetAutomation(ctx context.Context, organizationID, automationID string) (discovery.DiscoveredAutomation, error)
	GetBaseline(ctx context.Context, organizationID, automationID string) (*baseline.BehavioralBaseline, error)
	GetHistory(ctx context.Context, organizationID, automationID string, since time.Time) ([]HistoricalSample, error)
	GetExistingPatterns(ctx context.Context, organizationID, automationID string) ([]detection.DetectionPattern, error)

	SavePatterns(ctx context.Context, patterns []detection.DetectionPattern) error
	SaveRiskAssessment(ctx context.Context, assessment detection.RiskAssessment) error
}

// HistoryLookback is how far back GetHistory samples are pulled, wide
// enough to cover the slowest detector's window (timing variance wants 20+
// events; most organizations produce that within a couple of weeks).
const HistoryLookback = 30 * 24 * time.Hour
