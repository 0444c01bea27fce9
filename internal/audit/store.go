// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package audit

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/tundra/internal/errors"
)

// Store persists audit events to SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the audit database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, errors.KindSystem, "opening audit db")
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL, -- Unix timestamp
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		uid INTEGER NOT NULL,
		username TEXT,
		device TEXT,
		detail TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_device ON audit_events(device);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, errors.KindSystem, "initializing audit schema")
	}
	return nil
}

// Insert persists one event.
func (s *Store) Insert(e Event) error {
	_, err := s.db.Exec(`
		INSERT INTO audit_events (id, timestamp, type, severity, uid, username, device, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.Unix(),
		string(e.Type),
		string(e.Severity),
		e.UID,
		e.Username,
		e.Device,
		e.Detail,
	)
	if err != nil {
		return errors.Wrap(err, errors.KindSystem, "inserting audit event")
	}
	return nil
}

// Recent returns the newest limit events, newest first.
func (s *Store) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, timestamp, type, severity, uid, username, device, detail
		FROM audit_events ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindSystem, "querying audit events")
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Type, &e.Severity, &e.UID, &e.Username, &e.Device, &e.Detail); err != nil {
			return nil, errors.Wrap(err, errors.KindSystem, "scanning audit event")
		}
		e.Timestamp = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ByDevice returns events for one device handle, newest first.
func (s *Store) ByDevice(handle string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, timestamp, type, severity, uid, username, device, detail
		FROM audit_events WHERE device = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, handle, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindSystem, "querying audit events")
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Type, &e.Severity, &e.UID, &e.Username, &e.Device, &e.Detail); err != nil {
			return nil, errors.Wrap(err, errors.KindSystem, "scanning audit event")
		}
		e.Timestamp = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
