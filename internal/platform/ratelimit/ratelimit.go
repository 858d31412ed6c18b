// Package ratelimit provides token-bucket rate limiting for both the API
// Surface's per-caller budget and each Connector Adapter's platform budget.
package ratelimit

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config describes a dual per-second/per-minute token bucket.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig is a permissive default for an internal caller; connector
// adapters override this per platform from their documented rate-limit
// headers.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 100, Burst: 200}
}

// Limiter wraps golang.org/x/time/rate with a parallel per-minute ceiling,
// since a platform's documented budget is often expressed per-minute rather
// than per-second.
type Limiter struct {
	mu        sync.RWMutex
	perSecond *rate.Limiter
	perMinute *rate.Limiter
	config    Config
}

// New creates a Limiter from cfg, filling in sane defaults for zero values.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &Limiter{
		perSecond: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		perMinute: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond*60), cfg.Burst*2),
		config:    cfg,
	}
}

// Allow reports whether a request may proceed right now.
func (l *Limiter) Allow() bool { return l.perSecond.Allow() }

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error { return l.perSecond.Wait(ctx) }

// LimitExceeded reports whether the per-second budget is currently exhausted.
func (l *Limiter) LimitExceeded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.perSecond.Allow()
}

// PerMinuteLimitExceeded reports whether the per-minute budget is exhausted.
func (l *Limiter) PerMinuteLimitExceeded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.perMinute.Allow()
}

// Remaining estimates remaining per-second budget, used by connector
// adapters to report §4.2's "remaining budget" to the engine.
func (l *Limiter) Remaining() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.perSecond.Tokens()
}

// Reset rebuilds both buckets from the original config, used after a
// platform signals its budget has refreshed (e.g. a Retry-After elapsed).
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perSecond = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)
	l.perMinute = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond*60), l.config.Burst*2)
}

// LimitedClient wraps an *http.Client so every outbound call waits on the
// limiter first, used by connector adapters calling platform APIs.
type LimitedClient struct {
	client  *http.Client
	limiter *Limiter
}

// NewLimitedClient builds a LimitedClient around client using cfg.
func NewLimitedClient(client *http.Client, cfg Config) *LimitedClient {
	return &LimitedClient{client: client, limiter: New(cfg)}
}

// Do waits for budget then issues req.
func (c *LimitedClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return c.client.Do(req)
}

// Limiter exposes the underlying limiter for budget introspection.
func (c *LimitedClient) Limiter() *Limiter { return c.limiter }

// Backoff computes an exponential backoff for attempt (0-based): base
// doubled per attempt and capped at max, plus a random jitter of up to one
// eighth of that capped delay, so the result can exceed max by up to max/8.
// No caller in the module uses it.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	d := base << attempt
	if d <= 0 || d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4 + 1))
	return d - jitter/2 + jitter
}
