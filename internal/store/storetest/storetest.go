// Package storetest holds behavior tests every store.Store implementation must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weather-pipeline/internal/models"
	"github.com/kjstillabower/weather-pipeline/internal/store"
)

// Run exercises open against the shared Store contract. open must return a fresh, empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("FindIdentifier_Missing", func(t *testing.T) { testFindIdentifierMissing(t, open(t)) })
	t.Run("CreateIdentifier_Idempotent", func(t *testing.T) { testCreateIdentifierDuplicate(t, open(t)) })
	t.Run("CreateIdentifier_Concurrent", func(t *testing.T) { testCreateIdentifierConcurrent(t, open(t)) })
	t.Run("LatestObservation_Empty", func(t *testing.T) { testLatestEmpty(t, open(t)) })
	t.Run("LatestObservation_MaxTimestamp", func(t *testing.T) { testLatestMaxTimestamp(t, open(t)) })
	t.Run("LatestObservation_TieGoesToLastAppend", func(t *testing.T) { testLatestTie(t, open(t)) })
	t.Run("ListObservations_NewestFirstWithLimit", func(t *testing.T) { testListNewestFirst(t, open(t)) })
	t.Run("ListObservations_ScopedToZipcode", func(t *testing.T) { testListScoped(t, open(t)) })
	t.Run("ListObservations_BadLimit", func(t *testing.T) { testListBadLimit(t, open(t)) })
	t.Run("ListObservations_HugeLimit", func(t *testing.T) { testListHugeLimit(t, open(t)) })
	t.Run("Ping", func(t *testing.T) {
		if err := open(t).Ping(context.Background()); err != nil {
			t.Fatalf("Ping() error = %v", err)
		}
	})
}

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func record(zip string, ts time.Time, temp float64) models.DataRecord {
	return models.DataRecord{
		Zipcode:     zip,
		City:        "Beverly Hills",
		Temperature: temp,
		Description: "clear sky",
		WindSpeed:   5.5,
		Humidity:    40,
		Timestamp:   ts,
	}
}

func testFindIdentifierMissing(t *testing.T, s store.Store) {
	_, err := s.FindIdentifier(context.Background(), "90210")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindIdentifier() error = %v, want ErrNotFound", err)
	}
}

func testCreateIdentifierDuplicate(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := models.ValidationRecord{Zipcode: "90210", IsValid: true, CreatedAt: base}
	if err := s.CreateIdentifier(ctx, rec); err != nil {
		t.Fatalf("CreateIdentifier() error = %v", err)
	}
	if err := s.CreateIdentifier(ctx, rec); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("second CreateIdentifier() error = %v, want ErrAlreadyExists", err)
	}
	got, err := s.FindIdentifier(ctx, "90210")
	if err != nil {
		t.Fatalf("FindIdentifier() error = %v", err)
	}
	if got.Zipcode != "90210" || !got.IsValid || !got.CreatedAt.Equal(base) {
		t.Errorf("FindIdentifier() = %+v", got)
	}
}

func testCreateIdentifierConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateIdentifier(ctx, models.ValidationRecord{Zipcode: "10001", IsValid: true, CreatedAt: base})
			switch {
			case err == nil:
				mu.Lock()
				created++
				mu.Unlock()
			case errors.Is(err, store.ErrAlreadyExists):
			default:
				t.Errorf("CreateIdentifier() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Errorf("successful creates = %d, want exactly 1", created)
	}
}

func testLatestEmpty(t *testing.T, s store.Store) {
	_, err := s.LatestObservation(context.Background(), "90210")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("LatestObservation() error = %v, want ErrNotFound", err)
	}
}

func testLatestMaxTimestamp(t *testing.T, s store.Store) {
	ctx := context.Background()
	// Appended out of timestamp order on purpose.
	for _, rec := range []models.DataRecord{
		record("90210", base.Add(2*time.Minute), 72),
		record("90210", base.Add(5*time.Minute), 75),
		record("90210", base, 70),
	} {
		if err := s.AppendObservation(ctx, rec); err != nil {
			t.Fatalf("AppendObservation() error = %v", err)
		}
	}
	got, err := s.LatestObservation(ctx, "90210")
	if err != nil {
		t.Fatalf("LatestObservation() error = %v", err)
	}
	if got.Temperature != 75 || !got.Timestamp.Equal(base.Add(5*time.Minute)) {
		t.Errorf("LatestObservation() = %+v, want the 75 degree record", got)
	}
	if got.City != "Beverly Hills" || got.Description != "clear sky" || got.WindSpeed != 5.5 || got.Humidity != 40 {
		t.Errorf("LatestObservation() fields not round-tripped: %+v", got)
	}
}

func testLatestTie(t *testing.T, s store.Store) {
	ctx := context.Background()
	_ = s.AppendObservation(ctx, record("90210", base, 70))
	_ = s.AppendObservation(ctx, record("90210", base, 71))
	got, err := s.LatestObservation(ctx, "90210")
	if err != nil {
		t.Fatalf("LatestObservation() error = %v", err)
	}
	if got.Temperature != 71 {
		t.Errorf("LatestObservation() temperature = %v, want 71 (last appended)", got.Temperature)
	}
}

func testListNewestFirst(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		if err := s.AppendObservation(ctx, record("90210", base.Add(time.Duration(i)*time.Minute), float64(60+i))); err != nil {
			t.Fatalf("AppendObservation() error = %v", err)
		}
	}
	got, err := s.ListObservations(ctx, "90210", 10)
	if err != nil {
		t.Fatalf("ListObservations() error = %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	for i, rec := range got {
		if want := float64(71 - i); rec.Temperature != want {
			t.Errorf("got[%d].Temperature = %v, want %v", i, rec.Temperature, want)
		}
	}
}

func testListScoped(t *testing.T, s store.Store) {
	ctx := context.Background()
	_ = s.AppendObservation(ctx, record("90210", base, 70))
	_ = s.AppendObservation(ctx, record("10001", base, 50))
	got, err := s.ListObservations(ctx, "10001", 10)
	if err != nil {
		t.Fatalf("ListObservations() error = %v", err)
	}
	if len(got) != 1 || got[0].Zipcode != "10001" {
		t.Errorf("ListObservations(10001) = %+v", got)
	}
	empty, err := s.ListObservations(ctx, "99999", 10)
	if err != nil {
		t.Fatalf("ListObservations(unknown) error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("ListObservations(unknown) = %v, want empty", empty)
	}
}

func testListBadLimit(t *testing.T, s store.Store) {
	for _, limit := range []int{0, -1} {
		if _, err := s.ListObservations(context.Background(), "90210", limit); err == nil {
			t.Errorf("ListObservations(limit=%d) error = nil", limit)
		}
	}
}

// A limit far beyond the stored count must not reserve memory for it.
func testListHugeLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.AppendObservation(ctx, record("90210", base.Add(time.Duration(i)*time.Minute), float64(70+i))); err != nil {
			t.Fatalf("AppendObservation() error = %v", err)
		}
	}
	recs, err := s.ListObservations(ctx, "90210", 1<<40)
	if err != nil {
		t.Fatalf("ListObservations() error = %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("ListObservations() len = %d, want 3", len(recs))
	}
}
