// Package journal keeps a history of sync session events in an embedded
// SQLite database.
//
// The database runs in WAL mode so the history command can read while a
// running sync writes. Events reach the journal through its Observer
// implementation, which queues them and writes from a background goroutine
// so sessions never wait on disk.
//
// Layout:
//   - Database file: ~/.mdsync/journal.db (configurable)
//   - Table: events, one row per session event
//   - Indexes: by time and by session
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mdsync/mdsync/internal/engine"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// queueSize bounds the number of events waiting to be written.
const queueSize = 256

// Journal wraps the SQLite connection holding the event history.
type Journal struct {
	conn   *sql.DB
	path   string
	logger *log.Logger

	queue   chan engine.Event
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	dropped int
}

// Open opens or creates the journal at path and initializes its schema.
//
// The caller MUST call Close() when done so queued events are flushed.
//
// Example:
//
//	j, err := journal.Open("journal.db", logger)
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
func Open(path string, logger *log.Logger) (*Journal, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[journal] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	j := &Journal{
		conn:   conn,
		path:   path,
		logger: logger,
		queue:  make(chan engine.Event, queueSize),
	}
	if err := j.InitSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	j.wg.Add(1)
	go j.drain()
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// InitSchema creates the events table and its indexes. It is idempotent.
func (j *Journal) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		direction TEXT,
		source TEXT,
		target TEXT,
		detail TEXT,
		at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_at ON events(at_ms);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, at_ms);
	`
	if _, err := j.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return nil
}

// Record writes one event synchronously.
func (j *Journal) Record(ctx context.Context, e engine.Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	query := `
	INSERT INTO events (session_id, kind, direction, source, target, detail, at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := j.conn.ExecContext(ctx, query,
		e.SessionID,
		string(e.Kind),
		nullString(e.Direction),
		nullString(e.Source),
		nullString(e.Target),
		nullString(e.Detail),
		e.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", e.Kind, err)
	}
	return nil
}

// Observe queues e for writing. When the queue is full the event is dropped
// and counted.
func (j *Journal) Observe(e engine.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- e:
	default:
		j.dropped++
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

func (j *Journal) drain() {
	defer j.wg.Done()
	for e := range j.queue {
		if err := j.Record(context.Background(), e); err != nil {
			j.logger.Printf("Error: %v", err)
		}
	}
}

// Filter narrows a Query.
type Filter struct {
	// SessionID limits results to one session
	SessionID string

	// Since excludes events before this time
	Since time.Time

	// Kinds limits results to these event kinds
	Kinds []engine.EventKind

	// Limit caps the number of rows (0 = no limit)
	Limit int
}

// Query returns matching events, oldest first.
func (j *Journal) Query(ctx context.Context, filter Filter) ([]engine.Event, error) {
	query := `SELECT session_id, kind, direction, source, target, detail, at_ms FROM events WHERE 1=1`
	var args []interface{}

	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if !filter.Since.IsZero() {
		query += " AND at_ms >= ?"
		args = append(args, filter.Since.UnixMilli())
	}
	if len(filter.Kinds) > 0 {
		query += " AND kind IN (?" + strings.Repeat(",?", len(filter.Kinds)-1) + ")"
		for _, k := range filter.Kinds {
			args = append(args, string(k))
		}
	}
	if filter.Limit > 0 {
		// newest rows win the limit but are still returned oldest first
		query = "SELECT * FROM (" + query + " ORDER BY at_ms DESC, id DESC LIMIT ?) ORDER BY at_ms"
		args = append(args, filter.Limit)
	} else {
		query += " ORDER BY at_ms, id"
	}

	rows, err := j.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var events []engine.Event
	for rows.Next() {
		var e engine.Event
		var kind string
		var direction, source, target, detail sql.NullString
		var atMS int64
		if err := rows.Scan(&e.SessionID, &kind, &direction, &source, &target, &detail, &atMS); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Kind = engine.EventKind(kind)
		e.Direction = direction.String
		e.Source = source.String
		e.Target = target.String
		e.Detail = detail.String
		e.At = time.UnixMilli(atMS)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// Count returns the number of recorded events.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Prune deletes events older than before and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.conn.ExecContext(ctx, "DELETE FROM events WHERE at_ms < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes queued events, checkpoints the WAL and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	j.wg.Wait()

	if _, err := j.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		j.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := j.conn.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
