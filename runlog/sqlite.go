// ABOUTME: SQLite-backed run event log sink with runs and events tables.
// ABOUTME: WAL mode for concurrent readers; event data maps stored as JSON text.
package runlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink persists run metadata and events in a SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// Compile-time check that SQLiteSink implements Sink.
var _ Sink = (*SQLiteSink)(nil)

// OpenSQLite opens or creates the run log database at the given path and
// ensures the schema exists.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			start_time TEXT NOT NULL,
			event_count INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			node TEXT NOT NULL DEFAULT '',
			data TEXT,
			timestamp TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, event_id);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Begin inserts (or refreshes) the run's metadata row.
func (s *SQLiteSink) Begin(info RunInfo) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, workflow, start_time) VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET workflow=excluded.workflow, start_time=excluded.start_time`,
		info.ID, info.Workflow, info.StartTime.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Append inserts one event row and bumps the run's event count.
func (s *SQLiteSink) Append(rec Record) error {
	var data any
	if rec.Data != nil {
		encoded, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("encode event data: %w", err)
		}
		data = string(encoded)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO events (event_id, run_id, type, node, data, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Type, rec.Node, data, rec.Timestamp.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE runs SET event_count = event_count + 1 WHERE run_id = ?`, rec.RunID,
	); err != nil {
		return fmt.Errorf("update event count: %w", err)
	}
	return tx.Commit()
}

// Events returns all records for a run ordered by event ID, which for ULIDs
// is emission order.
func (s *SQLiteSink) Events(runID string) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT event_id, run_id, type, node, data, timestamp FROM events WHERE run_id = ? ORDER BY event_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var data sql.NullString
		var ts string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Type, &rec.Node, &data, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &rec.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse event timestamp: %w", err)
		}
		rec.Timestamp = parsed
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Runs lists all runs, newest first.
func (s *SQLiteSink) Runs() ([]RunInfo, error) {
	rows, err := s.db.Query(
		`SELECT run_id, workflow, start_time, event_count FROM runs ORDER BY start_time DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		var info RunInfo
		var ts string
		if err := rows.Scan(&info.ID, &info.Workflow, &ts, &info.EventCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse run start time: %w", err)
		}
		info.StartTime = parsed
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
