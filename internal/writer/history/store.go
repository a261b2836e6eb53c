// internal/writer/history/store.go
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/tamzrod/hws-coordinator/internal/status"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id  TEXT    NOT NULL,
	at         TEXT    NOT NULL,
	cycle      INTEGER NOT NULL,
	available  INTEGER NOT NULL,
	operation  TEXT    NOT NULL,
	doc        TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_device ON snapshots(device_id, id);

CREATE TABLE IF NOT EXISTS status_changes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id       TEXT    NOT NULL,
	at              TEXT    NOT NULL,
	available       INTEGER NOT NULL,
	health          TEXT    NOT NULL,
	last_error_code INTEGER NOT NULL,
	last_error      TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_status_device ON status_changes(device_id, id);
`

// ErrNotFound is returned when a device has no recorded snapshot.
var ErrNotFound = errors.New("history: not found")

// Record is one stored snapshot.
type Record struct {
	DeviceID  string
	At        time.Time
	Cycle     uint64
	Available bool
	Operation string
	Doc       map[string]any
}

// StatusChange is one stored status transition.
type StatusChange struct {
	DeviceID      string
	At            time.Time
	Available     bool
	Health        string
	LastErrorCode uint16
	LastError     string
}

// Store keeps snapshots and status transitions in SQLite.
// It satisfies writer.Writer and writer.StatusWriter.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	// SQLite has a single writer; :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Write stores the full snapshot document.
func (s *Store) Write(snap status.Snapshot) error {
	doc, err := json.Marshal(status.Encode(snap))
	if err != nil {
		return fmt.Errorf("history: encoding snapshot: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO snapshots (device_id, at, cycle, available, operation, doc) VALUES (?, ?, ?, ?, ?, ?)`,
		snap.DeviceID, stamp(snap.At), int64(snap.Cycle), boolInt(snap.Available), snap.Operation, string(doc),
	)
	if err != nil {
		return fmt.Errorf("history: insert snapshot: %w", err)
	}
	return nil
}

// WriteStatus stores a status transition.
func (s *Store) WriteStatus(snap status.Snapshot) error {
	_, err := s.db.Exec(
		`INSERT INTO status_changes (device_id, at, available, health, last_error_code, last_error) VALUES (?, ?, ?, ?, ?, ?)`,
		snap.DeviceID, stamp(snap.At), boolInt(snap.Available), status.HealthName(snap.Health), int(snap.LastErrorCode), snap.LastError,
	)
	if err != nil {
		return fmt.Errorf("history: insert status: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot of a device.
func (s *Store) Latest(ctx context.Context, deviceID string) (Record, error) {
	recs, err := s.Snapshots(ctx, deviceID, 1)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[0], nil
}

// Snapshots returns up to limit snapshots, newest first.
func (s *Store) Snapshots(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, at, cycle, available, operation, doc FROM snapshots
		 WHERE device_id = ? ORDER BY id DESC LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r         Record
			at, doc   string
			cycle     int64
			available int
		)
		if err := rows.Scan(&r.DeviceID, &at, &cycle, &available, &r.Operation, &doc); err != nil {
			return nil, fmt.Errorf("history: scan snapshot: %w", err)
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		r.Cycle = uint64(cycle)
		r.Available = available != 0
		if err := json.Unmarshal([]byte(doc), &r.Doc); err != nil {
			return nil, fmt.Errorf("history: decode snapshot: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StatusChanges returns up to limit transitions, newest first.
func (s *Store) StatusChanges(ctx context.Context, deviceID string, limit int) ([]StatusChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, at, available, health, last_error_code, last_error FROM status_changes
		 WHERE device_id = ? ORDER BY id DESC LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query status: %w", err)
	}
	defer rows.Close()

	var out []StatusChange
	for rows.Next() {
		var (
			c         StatusChange
			at        string
			available int
			code      int
		)
		if err := rows.Scan(&c.DeviceID, &at, &available, &c.Health, &code, &c.LastError); err != nil {
			return nil, fmt.Errorf("history: scan status: %w", err)
		}
		c.At, _ = time.Parse(time.RFC3339Nano, at)
		c.Available = available != 0
		c.LastErrorCode = uint16(code)
		out = append(out, c)
	}
	return out, rows.Err()
}
