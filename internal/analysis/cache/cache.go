// Package cache stores analysis reports in Redis keyed by a hash of the
// content and analysis options. Concurrent misses for the same key are
// collapsed with singleflight and Redis calls go through a circuit breaker,
// so a Redis outage degrades to recomputation instead of failing requests.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/sentinel/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "analysis:"

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type ReportCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.Breaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a ReportCache. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *ReportCache {
	c := &ReportCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "report-cache"),
	}
	c.breaker = resilience.NewBreaker("redis", resilience.BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         15 * time.Second,
		// A missing key is an answer, not a Redis failure.
		IsSuccessful: func(err error) bool { return err == nil || pkgredis.IsNilError(err) },
		OnStateChange: func(name string, _, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// Key derives the cache key for content analysed with opts.
func Key(content string, opts analysis.Options) string {
	raw := fmt.Sprintf("summary=%d|keywords=%d|%s", opts.SummaryLength, opts.KeywordCount, content)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// Get returns the cached report for key. Errors are logged and reported as
// a miss.
func (c *ReportCache) Get(ctx context.Context, key string) (*analysis.Report, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		return err
	})
	switch {
	case pkgredis.IsNilError(err):
		c.miss()
		return nil, false
	case err != nil:
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	var report analysis.Report
	if err := json.Unmarshal(data, &report); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "key", key)
	return &report, true
}

// Set stores report under key. Failures are logged only.
func (c *ReportCache) Set(ctx context.Context, key string, report *analysis.Report) {
	data, err := json.Marshal(report)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	}); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached report or computes, stores and returns a
// fresh one. The bool reports a cache hit.
func (c *ReportCache) GetOrCompute(ctx context.Context, key string, compute func() (*analysis.Report, error)) (*analysis.Report, bool, error) {
	if report, ok := c.Get(ctx, key); ok {
		return report, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		report, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, report)
		return report, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*analysis.Report), false, nil
}

// Invalidate drops every cached report.
func (c *ReportCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns hit and miss counts since start.
func (c *ReportCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ReportCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ReportCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
