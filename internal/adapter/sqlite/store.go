// Package sqlite is the persistence adapter: incidents keyed by URL plus the
// ingestion run ledger, stored in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store implements domain.Store and domain.RunRecorder.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and migrates it to the latest schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers, so concurrent runs queue rather
	// than fail with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ExistsByURL reports whether an incident with url is stored.
func (s *Store) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM incidents WHERE url = ? LIMIT 1", url).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lookup url: %w", err)
	}
	return true, nil
}

// Insert stores a candidate with status "reported". It returns
// domain.ErrConflict when the URL is already stored. A nil URL is stored
// as NULL, which the UNIQUE constraint never compares equal.
func (s *Store) Insert(ctx context.Context, c domain.Candidate) (domain.Incident, error) {
	now := domain.Clock().Now().UTC()
	inc := domain.Incident{
		Source:      c.Source,
		Category:    c.Category,
		Title:       c.Title,
		Description: c.Summary,
		URL:         c.URL,
		Location:    c.Location,
		Latitude:    c.Latitude,
		Longitude:   c.Longitude,
		PublishedAt: c.PublishedAt,
		Status:      domain.StatusReported,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.QueryRowContext(ctx, `
INSERT INTO incidents (source, category, title, description, url, location,
                       latitude, longitude, published_at, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`,
		string(inc.Source), inc.Category, inc.Title, inc.Description, nullString(inc.URL), inc.Location,
		nullFloat(inc.Latitude), nullFloat(inc.Longitude), nullTime(inc.PublishedAt),
		inc.Status, formatTime(now), formatTime(now),
	).Scan(&inc.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Incident{}, fmt.Errorf("insert %q: %w", c.URLOrEmpty(), domain.ErrConflict)
		}
		return domain.Incident{}, fmt.Errorf("insert incident: %w", err)
	}
	return inc, nil
}

// ListIncidents returns the most recently stored incidents, newest first.
func (s *Store) ListIncidents(ctx context.Context, limit int) ([]domain.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, source, category, title, description, url, location,
       latitude, longitude, published_at, status, created_at, updated_at
FROM incidents ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		var (
			inc                  domain.Incident
			source               string
			url, published       sql.NullString
			lat, lon             sql.NullFloat64
			createdAt, updatedAt string
		)
		if err := rows.Scan(&inc.ID, &source, &inc.Category, &inc.Title, &inc.Description, &url,
			&inc.Location, &lat, &lon, &published, &inc.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.Source = domain.Source(source)
		if url.Valid {
			inc.URL = &url.String
		}
		if lat.Valid {
			inc.Latitude = &lat.Float64
		}
		if lon.Valid {
			inc.Longitude = &lon.Float64
		}
		if published.Valid {
			t, err := parseTime(published.String)
			if err != nil {
				return nil, err
			}
			inc.PublishedAt = &t
		}
		if inc.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if inc.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// RecordRun writes a run ledger entry.
func (s *Store) RecordRun(ctx context.Context, r domain.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ingest_runs (id, source, params, started_at, finished_at,
                         fetched, inserted, skipped, failed, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Source), r.Params, formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.Tally.Fetched, r.Tally.Inserted, r.Tally.Skipped, r.Tally.Failed, r.Error,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// RecentRuns returns up to limit ledger entries, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, source, params, started_at, finished_at, fetched, inserted, skipped, failed, error
FROM ingest_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		var (
			r                 domain.RunRecord
			source            string
			started, finished string
		)
		if err := rows.Scan(&r.ID, &source, &r.Params, &started, &finished,
			&r.Tally.Fetched, &r.Tally.Inserted, &r.Tally.Skipped, &r.Tally.Failed, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Source = domain.Source(source)
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	// Without extended result codes only the primary code is reported.
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

// Fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
