package store

import (
	"context"
	"errors"
	"time"

	"github.com/kjstillabower/weather-pipeline/internal/models"
	"github.com/kjstillabower/weather-pipeline/internal/observability"
)

// Instrumented wraps s so every operation records storeOperationDurationSeconds.
// ErrNotFound and ErrAlreadyExists count as success; they are answers, not faults.
func Instrumented(s Store) Store {
	return &instrumented{next: s}
}

type instrumented struct {
	next Store
}

func observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrAlreadyExists) {
		status = "error"
	}
	observability.StoreOperationDurationSeconds.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func (s *instrumented) FindIdentifier(ctx context.Context, zipcode string) (rec models.ValidationRecord, err error) {
	defer func(start time.Time) { observe("find_identifier", start, err) }(time.Now())
	return s.next.FindIdentifier(ctx, zipcode)
}

func (s *instrumented) CreateIdentifier(ctx context.Context, rec models.ValidationRecord) (err error) {
	defer func(start time.Time) { observe("create_identifier", start, err) }(time.Now())
	return s.next.CreateIdentifier(ctx, rec)
}

func (s *instrumented) AppendObservation(ctx context.Context, rec models.DataRecord) (err error) {
	defer func(start time.Time) { observe("append_observation", start, err) }(time.Now())
	return s.next.AppendObservation(ctx, rec)
}

func (s *instrumented) LatestObservation(ctx context.Context, zipcode string) (rec models.DataRecord, err error) {
	defer func(start time.Time) { observe("latest_observation", start, err) }(time.Now())
	return s.next.LatestObservation(ctx, zipcode)
}

func (s *instrumented) ListObservations(ctx context.Context, zipcode string, limit int) (recs []models.DataRecord, err error) {
	defer func(start time.Time) { observe("list_observations", start, err) }(time.Now())
	return s.next.ListObservations(ctx, zipcode, limit)
}

func (s *instrumented) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *instrumented) Close() error {
	return s.next.Close()
}
