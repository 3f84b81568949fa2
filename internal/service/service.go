// Package service implements the three pipeline stages. Each stage is a
// write-through cache over its own slice of the store.
package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-pipeline/internal/cache"
	"github.com/kjstillabower/weather-pipeline/internal/observability"
)

// Stage names used as metric labels.
const (
	stageValidator = "validator"
	stageFetcher   = "fetcher"
	stageFormatter = "formatter"
)

func recordOutcome(stage, outcome string) {
	observability.StageRequestsTotal.WithLabelValues(stage, outcome).Inc()
}

// cacheGet reads ns:zipcode. A backend fault is logged, counted and reported
// as a miss so the stage falls through to the store.
func cacheGet(ctx context.Context, c cache.Cache, ns cache.Namespace, zipcode string) ([]byte, bool) {
	logger := observability.LoggerFromContext(ctx)
	key := cache.Key(ns, zipcode)

	start := time.Now()
	val, ok, err := c.Get(ctx, key)
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(duration)
		observability.CacheMissesTotal.WithLabelValues(string(ns)).Inc()
		logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(duration)
	if !ok {
		observability.CacheMissesTotal.WithLabelValues(string(ns)).Inc()
		logger.Debug("cache miss", zap.String("key", key))
		return nil, false
	}
	observability.CacheHitsTotal.WithLabelValues(string(ns)).Inc()
	logger.Debug("cache hit", zap.String("key", key))
	return val, true
}

// cacheSet writes ns:zipcode. A failure is logged and counted but never fails
// the request; the store already holds the data.
func cacheSet(ctx context.Context, c cache.Cache, ns cache.Namespace, zipcode string, value []byte, ttl time.Duration) {
	key := cache.Key(ns, zipcode)
	start := time.Now()
	if err := c.Set(ctx, key, value, ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(start).Seconds())
		observability.LoggerFromContext(ctx).Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(start).Seconds())
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "no servers") {
		return "connection"
	}
	return "unknown"
}
