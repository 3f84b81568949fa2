// Package sqlite provides a SQLite-backed Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/kjstillabower/weather-pipeline/internal/models"
	"github.com/kjstillabower/weather-pipeline/internal/store"
	"github.com/kjstillabower/weather-pipeline/internal/store/sqlite/migrations"
)

// Store persists identifiers and observations in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the database at path, creating it if needed, and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database is usable. Used for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func (s *Store) FindIdentifier(ctx context.Context, zipcode string) (models.ValidationRecord, error) {
	var (
		rec       models.ValidationRecord
		isValid   int
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT zipcode, is_valid, created_at FROM zipcodes WHERE zipcode = ?`, zipcode,
	).Scan(&rec.Zipcode, &isValid, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ValidationRecord{}, store.ErrNotFound
	}
	if err != nil {
		return models.ValidationRecord{}, fmt.Errorf("find identifier: %w", err)
	}
	rec.IsValid = isValid != 0
	rec.CreatedAt = fromMillis(createdAt)
	return rec, nil
}

// CreateIdentifier inserts rec. A duplicate zipcode returns store.ErrAlreadyExists.
func (s *Store) CreateIdentifier(ctx context.Context, rec models.ValidationRecord) error {
	if rec.Zipcode == "" {
		return fmt.Errorf("zipcode is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	isValid := 0
	if rec.IsValid {
		isValid = 1
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO zipcodes (zipcode, is_valid, created_at) VALUES (?, ?, ?)`,
		rec.Zipcode, isValid, toMillis(rec.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("create identifier: %w", err)
	}
	return nil
}

func (s *Store) AppendObservation(ctx context.Context, rec models.DataRecord) error {
	if rec.Zipcode == "" {
		return fmt.Errorf("zipcode is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO weather_records (
	zipcode,
	city,
	temperature,
	description,
	wind_speed,
	humidity,
	timestamp
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		rec.Zipcode,
		rec.City,
		rec.Temperature,
		rec.Description,
		rec.WindSpeed,
		rec.Humidity,
		toMillis(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append observation: %w", err)
	}
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

// ListObservations lists newest-first records for zipcode.
func (s *Store) ListObservations(ctx context.Context, zipcode string, limit int) ([]models.DataRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	zipcode,
	city,
	temperature,
	description,
	wind_speed,
	humidity,
	timestamp
FROM weather_records
WHERE zipcode = ?
ORDER BY timestamp DESC, id DESC
LIMIT ?
`, zipcode, limit)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var records []models.DataRecord
	for rows.Next() {
		var (
			rec models.DataRecord
			ts  int64
		)
		if err := rows.Scan(
			&rec.Zipcode,
			&rec.City,
			&rec.Temperature,
			&rec.Description,
			&rec.WindSpeed,
			&rec.Humidity,
			&ts,
		); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		rec.Timestamp = fromMillis(ts)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return records, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ store.Store = (*Store)(nil)
