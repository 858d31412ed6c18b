package baselinesvc

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
	"github.com/shadowtrace/discovery-platform/internal/domain/feedback"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
)

// NextUpdateDue mirrors §4.7.bis's "TTL matching next_update_due": absent a
// per-organization override, baselines are expected to be recomputed daily.
const NextUpdateDue = 24 * time.Hour

// Service implements the Baseline & Reinforcement Module: EMA-adapted
// baselines read-through a Redis cache, and feedback-driven threshold
// tuning, both per organization (§4.7, §4.7.bis).
type Service struct {
	store Store
	redis *redis.Client
	log   *logging.Logger

	adaptationRate float64
	minSampleSize  int
}

// New constructs a Service. A nil redis client degrades to Store-only reads
// (no caching, not an error) so the module still functions in a deployment
// without Redis configured.
func New(store Store, redisClient *redis.Client, log *logging.Logger) *Service {
	return &Service{
		store:          store,
		redis:          redisClient,
		log:            log,
		adaptationRate: DefaultAdaptationRate,
		minSampleSize:  DefaultMinSampleSize,
	}
}

// GetBaseline returns the current baseline for an automation, preferring
// the Redis cache and falling back to Postgres on a miss (§4.7.bis).
func (s *Service) GetBaseline(ctx context.Context, organizationID, automationID string) (*baseline.BehavioralBaseline, error) {
	if s.redis != nil {
		if cached, hit, err := cacheGet(ctx, s.redis, organizationID, automationID); err != nil {
			s.log.Warn(ctx, "baseline cache read failed, falling back to store", map[string]interface{}{
				"organization_id": organizationID, "automation_id": automationID, "error": err.Error(),
			})
		} else if hit {
			return cached, nil
		}
	}

	b, err := s.store.LoadBaseline(ctx, organizationID, automationID)
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	if b != nil && s.redis != nil {
		if err := cacheSet(ctx, s.redis, *b, NextUpdateDue); err != nil {
			s.log.Warn(ctx, "baseline cache repopulate failed", map[string]interface{}{
				"organization_id": organizationID, "automation_id": automationID, "error": err.Error(),
			})
		}
	}
	return b, nil
}

// RecomputeBaseline pulls up to minSampleSize recent observations, folds
// them into the existing baseline via EMA, persists the result, and
// invalidates the cache so the next read repopulates it fresh (§4.7).
func (s *Service) RecomputeBaseline(ctx context.Context, organizationID, automationID string) (baseline.BehavioralBaseline, error) {
	existing, err := s.store.LoadBaseline(ctx, organizationID, automationID)
	if err != nil {
		return baseline.BehavioralBaseline{}, fmt.Errorf("load existing baseline: %w", err)
	}

	minSampleSize := s.minSampleSize
	if minSampleSize <= 0 {
		minSampleSize = DefaultMinSampleSize
	}
	observations, err := s.store.RecentObservations(ctx, organizationID, automationID, minSampleSize)
	if err != nil {
		return baseline.BehavioralBaseline{}, fmt.Errorf("load recent observations: %w", err)
	}

	updated := Apply(existing, observations, organizationID, automationID, s.adaptationRate)
	if err := s.store.SaveBaseline(ctx, updated); err != nil {
		return baseline.BehavioralBaseline{}, fmt.Errorf("save baseline: %w", err)
	}

	if s.redis != nil {
		if err := cacheInvalidate(ctx, s.redis, organizationID, automationID); err != nil {
			s.log.Warn(ctx, "baseline cache invalidate failed", map[string]interface{}{
				"organization_id": organizationID, "automation_id": automationID, "error": err.Error(),
			})
		}
	}
	return updated, nil
}

// AdjustThresholds implements §4.7's adjustThresholds(feedback): it loads
// the organization's current thresholds, shifts the one the feedback's
// pattern type corresponds to, clamps it, and persists the result.
func (s *Service) AdjustThresholds(ctx context.Context, organizationID string, fb feedback.AutomationFeedback, patternType string) (DetectorThresholds, error) {
	current, err := s.store.LoadThresholds(ctx, organizationID)
	if err != nil {
		return DetectorThresholds{}, fmt.Errorf("load thresholds: %w", err)
	}
	updated := AdjustForFeedback(current, patternType, fb.Disposition)
	if err := s.store.SaveThresholds(ctx, organizationID, updated); err != nil {
		return DetectorThresholds{}, fmt.Errorf("save thresholds: %w", err)
	}
	s.log.LogAudit(ctx, "baseline.threshold_adjusted", "organization", organizationID, string(fb.Disposition))
	return updated, nil
}
