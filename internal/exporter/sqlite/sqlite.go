// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sustainable-computing-io/joulemeter/internal/exporter"
	"github.com/sustainable-computing-io/joulemeter/internal/meter"
)

// ErrTraceNotFound is returned by Load for unknown trace IDs
type ErrTraceNotFound struct {
	ID uuid.UUID
}

func (e ErrTraceNotFound) Error() string {
	return fmt.Sprintf("trace %s not found", e.ID)
}

// TraceInfo summarizes a stored trace
type TraceInfo struct {
	ID      uuid.UUID
	Name    string
	Samples int
}

// Store keeps traces in a sqlite database
type Store struct {
	logger *slog.Logger
	db     *sql.DB
}

var _ exporter.Exporter = (*Store)(nil)

type OptionFn func(*Store)

// WithLogger sets the logger for the sqlite store
func WithLogger(logger *slog.Logger) OptionFn {
	return func(s *Store) {
		s.logger = logger.With("service", "sqlite")
	}
}

// Open opens or creates the database at path and applies the schema
func Open(path string, opts ...OptionFn) (*Store, error) {
	s := &Store{logger: slog.Default().With("service", "sqlite")}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database not responding: %w", err)
	}

	// a single writer avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.db = db
	s.logger.Info("Trace store opened", "path", path)
	return s, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS traces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS samples (
		trace_id TEXT NOT NULL REFERENCES traces(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		timestamp REAL NOT NULL,
		tag TEXT NOT NULL,
		duration REAL NOT NULL,
		PRIMARY KEY (trace_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS sample_energy (
		trace_id TEXT NOT NULL,
		sample_idx INTEGER NOT NULL,
		position INTEGER NOT NULL,
		domain TEXT NOT NULL,
		energy REAL NOT NULL,
		PRIMARY KEY (trace_id, sample_idx, position),
		FOREIGN KEY (trace_id, sample_idx) REFERENCES samples(trace_id, idx) ON DELETE CASCADE
	)`,
}

func migrate(db *sql.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return nil
}

func (s *Store) Name() string {
	return "sqlite"
}

// Export stores trace in a single transaction
func (s *Store) Export(trace exporter.Trace) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`INSERT INTO traces (id, name) VALUES (?, ?)`, trace.ID.String(), trace.Name); err != nil {
		return fmt.Errorf("failed to insert trace %s: %w", trace.ID, err)
	}

	for i, sample := range trace.Samples {
		if _, err = tx.Exec(
			`INSERT INTO samples (trace_id, idx, timestamp, tag, duration) VALUES (?, ?, ?, ?, ?)`,
			trace.ID.String(), i, sample.Timestamp, sample.Tag, sample.Duration,
		); err != nil {
			return fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
		for pos, domain := range sample.Domains() {
			if _, err = tx.Exec(
				`INSERT INTO sample_energy (trace_id, sample_idx, position, domain, energy) VALUES (?, ?, ?, ?, ?)`,
				trace.ID.String(), i, pos, domain, sample.Energy[domain],
			); err != nil {
				return fmt.Errorf("failed to insert energy of sample %d: %w", i, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("Stored trace", "trace", trace.Name, "id", trace.ID, "samples", len(trace.Samples))
	return nil
}

// Traces lists stored traces in insertion order
func (s *Store) Traces() ([]TraceInfo, error) {
	rows, err := s.db.Query(`
		SELECT t.id, t.name, COUNT(s.idx)
		FROM traces t LEFT JOIN samples s ON s.trace_id = t.id
		GROUP BY t.id
		ORDER BY t.rowid`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	traces := []TraceInfo{}
	for rows.Next() {
		var info TraceInfo
		var id string
		if err := rows.Scan(&id, &info.Name, &info.Samples); err != nil {
			return nil, err
		}
		if info.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid trace id %q: %w", id, err)
		}
		traces = append(traces, info)
	}
	return traces, rows.Err()
}

type storedSample struct {
	timestamp float64
	tag       string
	duration  float64
	domains   []string
	energy    map[string]float64
}

// Load reads back the trace with the given id
func (s *Store) Load(id uuid.UUID) (exporter.Trace, error) {
	trace := exporter.Trace{ID: id}
	err := s.db.QueryRow(`SELECT name FROM traces WHERE id = ?`, id.String()).Scan(&trace.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return exporter.Trace{}, ErrTraceNotFound{ID: id}
	}
	if err != nil {
		return exporter.Trace{}, err
	}

	samples, err := s.loadSamples(id)
	if err != nil {
		return exporter.Trace{}, err
	}
	if err := s.loadEnergy(id, samples); err != nil {
		return exporter.Trace{}, err
	}

	trace.Samples = make([]meter.Sample, len(samples))
	for i, ss := range samples {
		trace.Samples[i] = meter.NewSample(ss.timestamp, ss.tag, ss.duration, ss.domains, ss.energy)
	}
	return trace, nil
}

func (s *Store) loadSamples(id uuid.UUID) ([]*storedSample, error) {
	rows, err := s.db.Query(
		`SELECT timestamp, tag, duration FROM samples WHERE trace_id = ? ORDER BY idx`, id.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	samples := []*storedSample{}
	for rows.Next() {
		ss := &storedSample{energy: map[string]float64{}}
		if err := rows.Scan(&ss.timestamp, &ss.tag, &ss.duration); err != nil {
			return nil, err
		}
		samples = append(samples, ss)
	}
	return samples, rows.Err()
}

func (s *Store) loadEnergy(id uuid.UUID, samples []*storedSample) error {
	rows, err := s.db.Query(
		`SELECT sample_idx, domain, energy FROM sample_energy WHERE trace_id = ? ORDER BY sample_idx, position`,
		id.String())
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var idx int
		var domain string
		var energy float64
		if err := rows.Scan(&idx, &domain, &energy); err != nil {
			return err
		}
		if idx < 0 || idx >= len(samples) {
			return fmt.Errorf("energy row references unknown sample %d of trace %s", idx, id)
		}
		samples[idx].domains = append(samples[idx].domains, domain)
		samples[idx].energy[domain] = energy
	}
	return rows.Err()
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
