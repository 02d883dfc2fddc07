// Package capturelog journals zero-shutter-lag capture decisions and the
// frames handed to the saver, for diagnostics and tuning. It stores
// metadata only, never pixels.
package capturelog

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/zerolag/internal/zsl"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the SQLite-backed capture journal.
type Store struct {
	*sql.DB
}

// Record is one frame delivered to a Saver.
type Record struct {
	ID            int64  `json:"id"`
	CaptureID     string `json:"capture_id"`
	Timestamp     int64  `json:"timestamp_ns"`
	FrameNumber   int64  `json:"frame_number"`
	AEState       string `json:"ae_state,omitempty"`
	AFState       string `json:"af_state,omitempty"`
	LensState     string `json:"lens_state,omitempty"`
	SizeBytes     int    `json:"size_bytes"`
	MetadataError string `json:"metadata_error,omitempty"`
	Outcome       string `json:"outcome,omitempty"` // joined from decisions
}

// Open opens (or creates) the journal at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY between
	// the saver and the decision recorder.
	db.SetMaxOpenConns(1)

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("capture journal ready at %s", path)
	return s, nil
}

// MigrateUp runs all pending migrations up to the latest version.
// Returns nil if no migrations were needed (already at latest version).
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Note: We don't close m here because it would close the underlying DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty state.
func (s *Store) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// RecordDecision stores the outcome of one capture request. ageNanos is the
// age of the served frame at request time (zero when nothing was served).
func (s *Store) RecordDecision(captureID string, d zsl.Decision, ageNanos int64, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	var ts, frame, age sql.NullInt64
	if d.Outcome == zsl.OutcomeZSL {
		ts = sql.NullInt64{Int64: d.Timestamp, Valid: true}
		frame = sql.NullInt64{Int64: d.FrameNumber, Valid: true}
		age = sql.NullInt64{Int64: ageNanos, Valid: true}
	}

	_, err := s.Exec(`
		INSERT INTO decisions (
			capture_id, outcome, timestamp_ns, frame_number,
			candidates, expired, rejected, age_ns, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		captureID, string(d.Outcome), ts, frame,
		d.Candidates, d.Expired, d.Rejected, age, errText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// RecordCapture stores one saved frame.
func (s *Store) RecordCapture(rec Record) error {
	_, err := s.Exec(`
		INSERT INTO captures (
			capture_id, timestamp_ns, frame_number, ae_state, af_state,
			lens_state, size_bytes, metadata_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CaptureID, rec.Timestamp, rec.FrameNumber, nullString(rec.AEState),
		nullString(rec.AFState), nullString(rec.LensState), rec.SizeBytes,
		nullString(rec.MetadataError),
	)
	if err != nil {
		return fmt.Errorf("failed to insert capture: %w", err)
	}
	return nil
}

// RecentCaptures returns up to limit saved frames, newest first, with the
// outcome of the request that produced them.
func (s *Store) RecentCaptures(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Query(`
		SELECT c.id, c.capture_id, c.timestamp_ns, COALESCE(c.frame_number, 0),
			COALESCE(c.ae_state, ''), COALESCE(c.af_state, ''), COALESCE(c.lens_state, ''),
			c.size_bytes, COALESCE(c.metadata_error, ''), COALESCE(d.outcome, '')
		FROM captures c
		LEFT JOIN decisions d ON d.capture_id = c.capture_id
		ORDER BY c.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.CaptureID, &r.Timestamp, &r.FrameNumber,
			&r.AEState, &r.AFState, &r.LensState, &r.SizeBytes, &r.MetadataError, &r.Outcome); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByOutcome returns the number of capture requests per outcome.
func (s *Store) CountByOutcome() (map[string]int, error) {
	rows, err := s.Query(`SELECT outcome, COUNT(*) FROM decisions GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// ServedAges returns the recorded age (ns) of every ZSL-served frame.
func (s *Store) ServedAges() ([]float64, error) {
	rows, err := s.Query(`SELECT age_ns FROM decisions WHERE outcome = ? AND age_ns IS NOT NULL ORDER BY requested_at`, string(zsl.OutcomeZSL))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ages []float64
	for rows.Next() {
		var age int64
		if err := rows.Scan(&age); err != nil {
			return nil, err
		}
		ages = append(ages, float64(age))
	}
	return ages, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
