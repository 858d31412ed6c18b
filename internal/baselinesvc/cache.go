package baselinesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
)

func baselineCacheKey(organizationID, automationID string) string {
	return fmt.Sprintf("shadowtrace:baseline:%s:%s", organizationID, automationID)
}

// cacheGet reads a baseline from Redis, treating redis.Nil as a plain
// cache miss rather than an error (§4.7.bis).
func cacheGet(ctx context.Context, client *redis.Client, organizationID, automationID string) (*baseline.BehavioralBaseline, bool, error) {
	raw, err := client.Get(ctx, baselineCacheKey(organizationID, automationID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var b baseline.BehavioralBaseline
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached baseline: %w", err)
	}
	return &b, true, nil
}

// cacheSet writes a baseline to Redis with a TTL matching the next time
// this organization's baseline is due to be recomputed.
func cacheSet(ctx context.Context, client *redis.Client, b baseline.BehavioralBaseline, nextUpdateDue time.Duration) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal baseline for cache: %w", err)
	}
	if nextUpdateDue <= 0 {
		nextUpdateDue = time.Hour
	}
	if err := client.Set(ctx, baselineCacheKey(b.OrganizationID, b.AutomationID), raw, nextUpdateDue).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// cacheInvalidate drops a baseline from the cache, used when a fresh
// RecomputeBaseline call supersedes it immediately rather than waiting on
// the TTL.
func cacheInvalidate(ctx context.Context, client *redis.Client, organizationID, automationID string) error {
	if err := client.Del(ctx, baselineCacheKey(organizationID, automationID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
