package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-pipeline/internal/cache"
	"github.com/kjstillabower/weather-pipeline/internal/client"
	"github.com/kjstillabower/weather-pipeline/internal/models"
	"github.com/kjstillabower/weather-pipeline/internal/observability"
	"github.com/kjstillabower/weather-pipeline/internal/store"
)

// FetcherOptions tunes a Fetcher. The zero value disables coalescing.
type FetcherOptions struct {
	// Coalesce makes concurrent misses for one zipcode share a single
	// provider call and a single appended record.
	Coalesce bool
	// CoalesceTimeout bounds the shared call, which outlives any one caller.
	CoalesceTimeout time.Duration
}

// Fetcher returns the current observation for a zipcode, calling the provider
// only on a data-cache miss. Every provider success is appended to the store.
type Fetcher struct {
	provider        client.Provider
	cache           cache.Cache
	store           store.ObservationStore
	coalesce        bool
	coalesceTimeout time.Duration
	group           singleflight.Group
	stampede        *stampedeTracker
	now             func() time.Time
}

func NewFetcher(p client.Provider, c cache.Cache, s store.ObservationStore, opts FetcherOptions) *Fetcher {
	timeout := opts.CoalesceTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		provider:        p,
		cache:           c,
		store:           s,
		coalesce:        opts.Coalesce,
		coalesceTimeout: timeout,
		stampede:        newStampedeTracker(),
		now:             time.Now,
	}
}

// Configured reports whether the provider credential is present.
func (f *Fetcher) Configured() bool {
	return f.provider.Configured()
}

// Fetch returns the DataRecord JSON for zipcode. A cache hit returns the
// cached bytes unchanged, so repeated fetches inside the TTL are byte-identical.
// The zipcode is assumed already validated.
func (f *Fetcher) Fetch(ctx context.Context, zipcode string) (json.RawMessage, error) {
	if !f.provider.Configured() {
		recordOutcome(stageFetcher, "config_error")
		return nil, ErrConfiguration
	}

	if cached, ok := cacheGet(ctx, f.cache, cache.NamespaceData, zipcode); ok {
		recordOutcome(stageFetcher, models.SourceCache)
		return json.RawMessage(cached), nil
	}

	if f.stampede.RecordMiss(zipcode) > 1 {
		observability.CacheStampedeDetectedTotal.Inc()
	}
	defer f.stampede.RecordHit(zipcode)

	var (
		payload []byte
		err     error
	)
	if f.coalesce {
		payload, err = f.fetchShared(ctx, zipcode)
	} else {
		payload, err = f.fetchAndRecord(ctx, zipcode)
	}
	if err != nil {
		recordOutcome(stageFetcher, fetchOutcome(err))
		return nil, err
	}
	recordOutcome(stageFetcher, models.SourceDatabase)
	return json.RawMessage(payload), nil
}

// fetchShared joins any in-flight fetch for zipcode. The shared call runs on a
// context detached from this caller so one caller giving up does not fail the rest.
func (f *Fetcher) fetchShared(ctx context.Context, zipcode string) ([]byte, error) {
	ch := f.group.DoChan(zipcode, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.coalesceTimeout)
		defer cancel()
		return f.fetchAndRecord(shared, zipcode)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			observability.CoalescedFetchesTotal.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (f *Fetcher) fetchAndRecord(ctx context.Context, zipcode string) ([]byte, error) {
	logger := observability.LoggerFromContext(ctx)

	rec, err := f.provider.CurrentConditions(ctx, zipcode)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrNotConfigured):
			return nil, ErrConfiguration
		case errors.Is(err, client.ErrUnavailable):
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("fetch weather for %s: %w", zipcode, err)
	}
	rec.Zipcode = zipcode
	// Millisecond precision survives every store round trip unchanged.
	rec.Timestamp = f.now().UTC().Truncate(time.Millisecond)

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode weather record: %w", err)
	}
	if err := f.store.AppendObservation(ctx, rec); err != nil {
		return nil, fmt.Errorf("append observation for %s: %w", zipcode, err)
	}
	logger.Info("observation recorded",
		zap.String("zipcode", zipcode),
		zap.Time("timestamp", rec.Timestamp),
	)

	cacheSet(ctx, f.cache, cache.NamespaceData, zipcode, payload, cache.DataTTL)
	return payload, nil
}

func fetchOutcome(err error) string {
	var upstream *client.UpstreamError
	switch {
	case errors.As(err, &upstream):
		return "upstream_error"
	case errors.Is(err, ErrConfiguration):
		return "config_error"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
