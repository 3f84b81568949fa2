package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kjstillabower/weather-pipeline/internal/models"
	"github.com/kjstillabower/weather-pipeline/internal/store"
	"github.com/kjstillabower/weather-pipeline/internal/store/memory"
)

func TestInstrumented_PassesThrough(t *testing.T) {
	ctx := context.Background()
	s := store.Instrumented(memory.New())

	if _, err := s.FindIdentifier(ctx, "90210"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindIdentifier() error = %v, want ErrNotFound", err)
	}
	if err := s.CreateIdentifier(ctx, models.ValidationRecord{Zipcode: "90210", IsValid: true}); err != nil {
		t.Fatalf("CreateIdentifier() error = %v", err)
	}
	if err := s.CreateIdentifier(ctx, models.ValidationRecord{Zipcode: "90210", IsValid: true}); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("duplicate CreateIdentifier() error = %v, want ErrAlreadyExists", err)
	}
	if err := s.AppendObservation(ctx, models.DataRecord{Zipcode: "90210", Temperature: 70}); err != nil {
		t.Fatalf("AppendObservation() error = %v", err)
	}
	got, err := s.LatestObservation(ctx, "90210")
	if err != nil || got.Temperature != 70 {
		t.Fatalf("LatestObservation() = %+v, %v", got, err)
	}
	if recs, err := s.ListObservations(ctx, "90210", 5); err != nil || len(recs) != 1 {
		t.Fatalf("ListObservations() = %v, %v", recs, err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
