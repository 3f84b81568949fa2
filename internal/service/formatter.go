package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-pipeline/internal/cache"
	"github.com/kjstillabower/weather-pipeline/internal/models"
	"github.com/kjstillabower/weather-pipeline/internal/observability"
	"github.com/kjstillabower/weather-pipeline/internal/store"
)

// DefaultHistoryLimit is used when History is asked for a non-positive limit.
const DefaultHistoryLimit = 10

// MaxHistoryLimit caps how many observations one History call returns.
const MaxHistoryLimit = 100

// Formatter serves the latest observation for a zipcode as a FormattedResult.
type Formatter struct {
	cache cache.Cache
	store store.ObservationStore
}

func NewFormatter(c cache.Cache, s store.ObservationStore) *Formatter {
	return &Formatter{cache: c, store: s}
}

// Result returns the newest observation for zipcode. Source is "cache" when
// served from the result namespace and "database" otherwise.
func (f *Formatter) Result(ctx context.Context, zipcode string) (models.FormattedResult, error) {
	if cached, ok := cacheGet(ctx, f.cache, cache.NamespaceResult, zipcode); ok {
		var res models.FormattedResult
		err := json.Unmarshal(cached, &res)
		if err == nil {
			res.Source = models.SourceCache
			recordOutcome(stageFormatter, models.SourceCache)
			return res, nil
		}
		observability.LoggerFromContext(ctx).Warn("discarding undecodable cached result",
			zap.String("zipcode", zipcode), zap.Error(err))
	}

	rec, err := f.store.LatestObservation(ctx, zipcode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			recordOutcome(stageFormatter, "not_found")
			return models.FormattedResult{}, ErrNotFound
		}
		recordOutcome(stageFormatter, "error")
		return models.FormattedResult{}, fmt.Errorf("latest observation for %s: %w", zipcode, err)
	}

	res := models.NewFormattedResult(rec, models.SourceDatabase)
	if payload, err := json.Marshal(res); err == nil {
		cacheSet(ctx, f.cache, cache.NamespaceResult, zipcode, payload, cache.ResultTTL)
	}
	recordOutcome(stageFormatter, models.SourceDatabase)
	return res, nil
}

// History returns up to limit observations for zipcode, newest first, with
// limit clamped to MaxHistoryLimit. It always
// reads the store. An unknown zipcode yields an empty history, not an error.
func (f *Formatter) History(ctx context.Context, zipcode string, limit int) (models.History, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)
	recs, err := f.store.ListObservations(ctx, zipcode, limit)
	if err != nil {
		return models.History{}, fmt.Errorf("list observations for %s: %w", zipcode, err)
	}
	if recs == nil {
		recs = []models.DataRecord{}
	}
	return models.History{Zipcode: zipcode, Count: len(recs), History: recs}, nil
}
