// Package history keeps a local SQLite record of every resolved file.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	metadefender "github.com/Bob-Loth/opswat-demo"
)

//go:embed schema.sql
var schemaFS embed.FS

// DefaultLimit is the number of entries List returns for a non-positive limit.
const DefaultLimit = 20

// Entry is one recorded outcome.
type Entry struct {
	ID          string
	Fingerprint metadefender.Fingerprint
	Filename    string
	DataID      string
	Outcome     string
	Verdict     string
	Progress    int
	// Report is the raw JSON of the final report, nil when none was obtained.
	Report    json.RawMessage
	Error     string
	CreatedAt time.Time
}

// DecodeReport unmarshals the stored report.
func (e *Entry) DecodeReport() (*metadefender.AnalysisReport, error) {
	if len(e.Report) == 0 {
		return nil, nil
	}
	var r metadefender.AnalysisReport
	if err := json.Unmarshal(e.Report, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", e.ID, err)
	}
	return &r, nil
}

// Store is a history database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path, creating parent directories.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history: empty database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers from concurrent batch workers.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EntryFromOutcome builds an unsaved entry for a workflow outcome.
func EntryFromOutcome(filename string, out *metadefender.Outcome) (Entry, error) {
	e := Entry{
		Fingerprint: out.Fingerprint,
		Filename:    filename,
		DataID:      out.DataID,
		Outcome:     out.Kind.String(),
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	if out.Report != nil {
		raw, merr := json.Marshal(out.Report)
		if merr != nil {
			return Entry{}, fmt.Errorf("encode report: %w", merr)
		}
		e.Report = raw
		e.Verdict = out.Report.Verdict()
		e.Progress = out.Report.Progress()
	}
	return e, nil
}

// Record stores e, filling in ID and CreatedAt when unset, and returns the
// stored entry.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.Fingerprint == "" {
		return Entry{}, errors.New("history: entry has no fingerprint")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	var report sql.NullString
	if len(e.Report) > 0 {
		report = sql.NullString{String: string(e.Report), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (id, fingerprint, filename, data_id, outcome, verdict, progress, report, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Fingerprint), e.Filename, e.DataID, e.Outcome, e.Verdict, e.Progress,
		report, e.Error, e.CreatedAt.UnixNano())
	if err != nil {
		return Entry{}, fmt.Errorf("insert scan %s: %w", e.ID, err)
	}
	return e, nil
}

const selectColumns = `id, fingerprint, filename, data_id, outcome, verdict, progress, report, error, created_at`

// Latest returns the most recent entry for fp, or nil if there is none.
func (s *Store) Latest(ctx context.Context, fp metadefender.Fingerprint) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM scans
		WHERE fingerprint = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, string(fp))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest %s: %w", fp, err)
	}
	return e, nil
}

// List returns up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM scans
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list scans: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*Entry, error) {
	var (
		e       Entry
		fp      string
		report  sql.NullString
		created int64
	)
	if err := r.Scan(&e.ID, &fp, &e.Filename, &e.DataID, &e.Outcome, &e.Verdict, &e.Progress,
		&report, &e.Error, &created); err != nil {
		return nil, err
	}
	e.Fingerprint = metadefender.Fingerprint(fp)
	if report.Valid {
		e.Report = json.RawMessage(report.String)
	}
	e.CreatedAt = time.Unix(0, created).UTC()
	return &e, nil
}
