package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-pipeline/internal/observability"
)

// DataFetcher is implemented by the fetcher stage. Each call populates the data
// namespace as a side effect. Declared here to avoid importing the service package.
type DataFetcher interface {
	Fetch(ctx context.Context, zipcode string) (json.RawMessage, error)
}

// CacheWarmer prefetches weather for a list of zipcodes so the first real
// requests hit the data namespace.
type CacheWarmer struct {
	fetcher DataFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher DataFetcher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches each zipcode concurrently. Returns the joined per-zipcode errors, if any.
func (w *CacheWarmer) Warm(ctx context.Context, zipcodes []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("zipcodes", len(zipcodes)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, zip := range zipcodes {
		wg.Add(1)
		go func(zip string) {
			defer wg.Done()
			if _, err := w.fetcher.Fetch(ctx, zip); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", zip, err))
				mu.Unlock()
			}
		}(zip)
	}
	wg.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("zipcodes", len(zipcodes)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
// A hit does not extend an entry's TTL, so entries still expire and are
// fetched again by the first tick after expiry.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, zipcodes []string, interval time.Duration) error {
	if err := w.Warm(ctx, zipcodes); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, zipcodes); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
