// Package recording persists metadata about local `record` sessions:
// which command was run, when, at what size, and where its .ttyrec file
// lives. This is a supplement to spec.md's core (the core's registry is
// explicitly memory-only, §6: "Persisted state: none in the core") — it
// exists only for the `record`/`play` CLI surface named as an external
// collaborator in spec.md §1/§6.
package recording

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Metadata describes one local recording, mirroring the fields the
// original implementation's recording index tracks.
type Metadata struct {
	SessionID       string
	Filename        string
	Command         string
	Args            []string
	WorkDir         string
	StartTime       time.Time
	DurationSeconds float64
	Cols            int
	Rows            int
	Title           string
	RecordingPath   string
}

// Store is a sqlite-backed metadata index, adapting the teacher's
// JSON-file recording.Store into an embedded database (spec.md §3
// expansion: RecordingMetadata).
type Store struct {
	db            *sql.DB
	recordingsDir string
}

// Open opens (creating if necessary) the sqlite database at dbPath and
// ensures its schema exists. recordingsDir is the directory .ttyrec
// files are written to and scanned from.
func Open(dbPath, recordingsDir string) (*Store, error) {
	if err := os.MkdirAll(recordingsDir, 0o755); err != nil {
		return nil, fmt.Errorf("recording: create recordings dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("recording: create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("recording: open %s: %w", dbPath, err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS recordings (
	session_id       TEXT PRIMARY KEY,
	filename         TEXT NOT NULL,
	command          TEXT NOT NULL,
	args             TEXT NOT NULL DEFAULT '[]',
	work_dir         TEXT NOT NULL DEFAULT '',
	start_time       INTEGER NOT NULL,
	duration_seconds REAL NOT NULL DEFAULT 0,
	cols             INTEGER NOT NULL,
	rows             INTEGER NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	recording_path   TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("recording: create schema: %w", err)
	}

	return &Store{db: db, recordingsDir: recordingsDir}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordingsDir returns the directory .ttyrec files live in.
func (s *Store) RecordingsDir() string {
	return s.recordingsDir
}

// Save inserts or updates a recording's metadata, keyed by SessionID.
func (s *Store) Save(m Metadata) error {
	args, err := json.Marshal(m.Args)
	if err != nil {
		return fmt.Errorf("recording: marshal args: %w", err)
	}

	_, err = s.db.Exec(`
INSERT INTO recordings (session_id, filename, command, args, work_dir, start_time, duration_seconds, cols, rows, title, recording_path)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	filename = excluded.filename,
	command = excluded.command,
	args = excluded.args,
	work_dir = excluded.work_dir,
	start_time = excluded.start_time,
	duration_seconds = excluded.duration_seconds,
	cols = excluded.cols,
	rows = excluded.rows,
	title = excluded.title,
	recording_path = excluded.recording_path
`, m.SessionID, m.Filename, m.Command, string(args), m.WorkDir, m.StartTime.Unix(), m.DurationSeconds, m.Cols, m.Rows, m.Title, m.RecordingPath)
	if err != nil {
		return fmt.Errorf("recording: save %s: %w", m.SessionID, err)
	}
	return nil
}

// LoadAll returns every recording's metadata, most recent first.
func (s *Store) LoadAll() ([]Metadata, error) {
	rows, err := s.db.Query(`
SELECT session_id, filename, command, args, work_dir, start_time, duration_seconds, cols, rows, title, recording_path
FROM recordings ORDER BY start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("recording: query all: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetBySessionID returns one recording's metadata, or an error if none
// exists for that session id.
func (s *Store) GetBySessionID(sessionID string) (Metadata, error) {
	row := s.db.QueryRow(`
SELECT session_id, filename, command, args, work_dir, start_time, duration_seconds, cols, rows, title, recording_path
FROM recordings WHERE session_id = ?`, sessionID)

	m, err := scanMetadata(row)
	if err == sql.ErrNoRows {
		return Metadata{}, fmt.Errorf("recording: no metadata for session %s", sessionID)
	}
	if err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// Delete removes a recording's metadata row. It does not remove the
// underlying .ttyrec file.
func (s *Store) Delete(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM recordings WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("recording: delete %s: %w", sessionID, err)
	}
	return nil
}

// ScanRecordings lists every .ttyrec file in the recordings directory,
// regardless of whether it has a corresponding metadata row.
func (s *Store) ScanRecordings() ([]string, error) {
	entries, err := os.ReadDir(s.recordingsDir)
	if err != nil {
		return nil, fmt.Errorf("recording: read %s: %w", s.recordingsDir, err)
	}

	var found []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".ttyrec") {
			found = append(found, filepath.Join(s.recordingsDir, entry.Name()))
		}
	}
	return found, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row scanner) (Metadata, error) {
	var m Metadata
	var argsJSON string
	var startUnix int64
	if err := row.Scan(&m.SessionID, &m.Filename, &m.Command, &argsJSON, &m.WorkDir, &startUnix, &m.DurationSeconds, &m.Cols, &m.Rows, &m.Title, &m.RecordingPath); err != nil {
		return Metadata{}, err
	}
	if err := json.Unmarshal([]byte(argsJSON), &m.Args); err != nil {
		return Metadata{}, fmt.Errorf("recording: unmarshal args: %w", err)
	}
	m.StartTime = time.Unix(startUnix, 0).UTC()
	return m, nil
}
