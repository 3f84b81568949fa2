// Package store defines the persistent source of truth behind each stage cache.
package store

import (
	"context"
	"errors"

	"github.com/kjstillabower/weather-pipeline/internal/models"
)

var (
	// ErrNotFound is returned when a zipcode has no identifier or no observations.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by CreateIdentifier when the zipcode is already cataloged.
	ErrAlreadyExists = errors.New("already exists")
)

// IdentifierStore is the validator's catalog of known zipcodes.
type IdentifierStore interface {
	FindIdentifier(ctx context.Context, zipcode string) (models.ValidationRecord, error)
	CreateIdentifier(ctx context.Context, rec models.ValidationRecord) error
}

// ObservationStore is the append-only history of weather observations.
// LatestObservation returns the record with the greatest Timestamp; ties go to
// the most recently appended record.
type ObservationStore interface {
	AppendObservation(ctx context.Context, rec models.DataRecord) error
	LatestObservation(ctx context.Context, zipcode string) (models.DataRecord, error)
	// ListObservations returns at most limit records, newest first.
	ListObservations(ctx context.Context, zipcode string, limit int) ([]models.DataRecord, error)
}

// Store is a complete backend.
type Store interface {
	IdentifierStore
	ObservationStore
	Ping(ctx context.Context) error
	Close() error
}
