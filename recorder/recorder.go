// Package recorder persists a bounded history of applied sync messages to
// SQLite for offline analysis without slowing the live ingest path.
package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Cycle is one applied message in the sync history.
type Cycle struct {
	Kind     string
	Producer string
	Upserts  int
	Removals int
	WireSeq  uint64
	At       time.Time
}

// Recorder writes sync history rows into SQLite, trimming oldest rows once
// the configured cap is exceeded.
type Recorder struct {
	db       *sql.DB
	maxRows  int
	mu       sync.Mutex
	inserted int
}

// trimCheckEvery bounds how often the row cap is enforced; trimming per
// insert would double the write load for no benefit.
const trimCheckEvery = 256

// NewRecorder opens (or creates) the SQLite database at path and ensures the
// schema exists.
func NewRecorder(path string, maxRows int) (*Recorder, error) {
	if maxRows <= 0 {
		return nil, errors.New("recorder: max rows must be > 0")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("recorder: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Recorder{db: db, maxRows: maxRows}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS sync_cycles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT,
    producer TEXT,
    upserts INTEGER,
    removals INTEGER,
    wire_seq INTEGER,
    applied_at INTEGER
);`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Record inserts one history row. Heartbeats are skipped; they carry no data
// and would dominate the table.
func (r *Recorder) Record(c Cycle) error {
	if r == nil || r.db == nil {
		return nil
	}
	kind := strings.ToLower(strings.TrimSpace(c.Kind))
	if kind == "" || kind == "heartbeat" {
		return nil
	}
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(`
INSERT INTO sync_cycles (kind, producer, upserts, removals, wire_seq, applied_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		kind, c.Producer, c.Upserts, c.Removals, int64(c.WireSeq), at.UTC().Unix())
	if err != nil {
		return fmt.Errorf("recorder: insert: %w", err)
	}
	r.mu.Lock()
	r.inserted++
	check := r.inserted%trimCheckEvery == 1
	r.mu.Unlock()
	if check {
		r.trim()
	}
	return nil
}

// trim deletes oldest rows beyond the cap.
func (r *Recorder) trim() {
	_, _ = r.db.Exec(`
DELETE FROM sync_cycles WHERE id <= (
    SELECT id FROM sync_cycles ORDER BY id DESC LIMIT 1 OFFSET ?
)`, r.maxRows)
}

// RecentCycles returns up to n newest rows, newest first.
func (r *Recorder) RecentCycles(n int) ([]Cycle, error) {
	if r == nil || r.db == nil || n <= 0 {
		return nil, nil
	}
	rows, err := r.db.Query(`
SELECT kind, producer, upserts, removals, wire_seq, applied_at
FROM sync_cycles ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recorder: query: %w", err)
	}
	defer rows.Close()
	var out []Cycle
	for rows.Next() {
		var c Cycle
		var seq, at int64
		if err := rows.Scan(&c.Kind, &c.Producer, &c.Upserts, &c.Removals, &seq, &at); err != nil {
			return nil, fmt.Errorf("recorder: scan: %w", err)
		}
		c.WireSeq = uint64(seq)
		c.At = time.Unix(at, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}
