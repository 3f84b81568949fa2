package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-pipeline/internal/cache"
	"github.com/kjstillabower/weather-pipeline/internal/models"
	"github.com/kjstillabower/weather-pipeline/internal/observability"
	"github.com/kjstillabower/weather-pipeline/internal/store"
	"github.com/kjstillabower/weather-pipeline/internal/validation"
)

// Validator checks zipcode format and catalogs every zipcode it accepts.
type Validator struct {
	cache cache.Cache
	store store.IdentifierStore
	now   func() time.Time
}

func NewValidator(c cache.Cache, s store.IdentifierStore) *Validator {
	return &Validator{cache: c, store: s, now: time.Now}
}

// Validate accepts exactly five ASCII digits. A format error is returned
// before any cache or store access. The first successful validation of a
// zipcode creates its catalog record; later ones are served from the
// identifier cache or the existing record.
func (v *Validator) Validate(ctx context.Context, zipcode string) (models.Validation, error) {
	if _, err := validation.ValidateZipcode(zipcode); err != nil {
		recordOutcome(stageValidator, "invalid")
		return models.Validation{}, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}

	if _, ok := cacheGet(ctx, v.cache, cache.NamespaceIdentifier, zipcode); ok {
		recordOutcome(stageValidator, models.SourceCache)
		return models.Validation{Zipcode: zipcode, Valid: true, Source: models.SourceCache}, nil
	}

	if err := v.ensureRecord(ctx, zipcode); err != nil {
		recordOutcome(stageValidator, "error")
		return models.Validation{}, err
	}

	cacheSet(ctx, v.cache, cache.NamespaceIdentifier, zipcode, []byte(cache.IdentifierValue), cache.IdentifierTTL)
	recordOutcome(stageValidator, models.SourceDatabase)
	return models.Validation{Zipcode: zipcode, Valid: true, Source: models.SourceDatabase}, nil
}

// ensureRecord creates the catalog record if absent. Losing a creation race
// to a concurrent request is success: the record exists either way.
func (v *Validator) ensureRecord(ctx context.Context, zipcode string) error {
	_, err := v.store.FindIdentifier(ctx, zipcode)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("find identifier %s: %w", zipcode, err)
	}

	err = v.store.CreateIdentifier(ctx, models.ValidationRecord{
		Zipcode:   zipcode,
		IsValid:   true,
		CreatedAt: v.now().UTC(),
	})
	switch {
	case err == nil:
		observability.LoggerFromContext(ctx).Info("zipcode cataloged", zap.String("zipcode", zipcode))
		return nil
	case errors.Is(err, store.ErrAlreadyExists):
		return nil
	default:
		return fmt.Errorf("create identifier %s: %w", zipcode, err)
	}
}
