// Package memory provides an in-process Store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kjstillabower/weather-pipeline/internal/models"
	"github.com/kjstillabower/weather-pipeline/internal/store"
)

// Store keeps identifiers and observations in maps. Safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	identifiers  map[string]models.ValidationRecord
	observations map[string][]models.DataRecord
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		identifiers:  make(map[string]models.ValidationRecord),
		observations: make(map[string][]models.DataRecord),
	}
}

func (s *Store) FindIdentifier(ctx context.Context, zipcode string) (models.ValidationRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.ValidationRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.identifiers[zipcode]
	if !ok {
		return models.ValidationRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) CreateIdentifier(ctx context.Context, rec models.ValidationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Zipcode == "" {
		return fmt.Errorf("zipcode is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identifiers[rec.Zipcode]; ok {
		return store.ErrAlreadyExists
	}
	s.identifiers[rec.Zipcode] = rec
	return nil
}

// AppendObservation appends rec. Records are kept in append order; readers sort.
func (s *Store) AppendObservation(ctx context.Context, rec models.DataRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Zipcode == "" {
		return fmt.Errorf("zipcode is required")
	}
	s.mu.Lock()
	s.observations[rec.Zipcode] = append(s.observations[rec.Zipcode], rec)
	s.mu.Unlock()
	return nil
}

func (s *Store) LatestObservation(ctx context.Context, zipcode string) (models.DataRecord, error) {
	recs, err := s.ListObservations(ctx, zipcode, 1)
	if err != nil {
		return models.DataRecord{}, err
	}
	if len(recs) == 0 {
		return models.DataRecord{}, store.ErrNotFound
	}
	return recs[0], nil
}

// ListObservations returns newest-first by Timestamp, later appends first on ties.
func (s *Store) ListObservations(ctx context.Context, zipcode string, limit int) ([]models.DataRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	s.mu.RLock()
	src := s.observations[zipcode]
	out := make([]models.DataRecord, len(src))
	for i := range src {
		out[len(src)-1-i] = src[i]
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

var _ store.Store = (*Store)(nil)
