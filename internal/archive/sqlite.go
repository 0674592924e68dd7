// ABOUTME: SQLite implementation of the event archive using modernc.org/sqlite
// ABOUTME: Automatic schema creation plus an async sink for the registry

package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/arkgart/orchestra/internal/event"
)

// sinkBufferSize bounds the async write queue. When the queue is full
// the oldest behaviour is to drop and log; archival is best-effort.
const sinkBufferSize = 256

// SQLite is an Archive backed by a local sqlite database.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger

	queue   chan Entry
	drainWG sync.WaitGroup
	once    sync.Once
}

// NewSQLite opens (or creates) the archive database at path.
// Parent directories are created if needed.
func NewSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "archive")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	a := &SQLite{
		db:     db,
		logger: logger,
		queue:  make(chan Entry, sinkBufferSize),
	}

	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	a.drainWG.Add(1)
	go a.drain()

	logger.Info("event archive initialized", "path", path)
	return a, nil
}

func (a *SQLite) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS session_events (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (session_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_session_events_session
			ON session_events(session_id);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Record persists one archived event.
func (a *SQLite) Record(ctx context.Context, entry Entry) error {
	query := `
		INSERT OR IGNORE INTO session_events (session_id, seq, type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := a.db.ExecContext(ctx, query,
		entry.SessionID,
		entry.Seq,
		entry.Type,
		entry.Payload,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting archived event: %w", err)
	}
	return nil
}

// Events returns the archived events for a session in sequence order.
func (a *SQLite) Events(ctx context.Context, sessionID string) ([]Entry, error) {
	query := `
		SELECT session_id, seq, type, payload, created_at
		FROM session_events
		WHERE session_id = ?
		ORDER BY seq ASC
	`
	rows, err := a.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying archived events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.SessionID, &e.Seq, &e.Type, &e.Payload, &ts); err != nil {
			return nil, fmt.Errorf("scanning archived event: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return entries, nil
}

// Sink returns a non-blocking recorder suitable for the registry's
// archive hook. Events are serialized and queued; the background writer
// drains the queue. Overflow is dropped with a warning.
func (a *SQLite) Sink() func(sessionID string, seq int, ev *event.Event) {
	return func(sessionID string, seq int, ev *event.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			a.logger.Warn("skipping unencodable event", "session_id", sessionID, "error", err)
			return
		}
		entry := Entry{
			SessionID: sessionID,
			Seq:       seq,
			Type:      string(ev.Type),
			Payload:   string(payload),
			CreatedAt: time.Now().UTC(),
		}
		select {
		case a.queue <- entry:
		default:
			a.logger.Warn("archive queue full, dropping event",
				"session_id", sessionID, "seq", seq)
		}
	}
}

// drain writes queued entries until Close.
func (a *SQLite) drain() {
	defer a.drainWG.Done()
	for entry := range a.queue {
		if err := a.Record(context.Background(), entry); err != nil {
			a.logger.Warn("archive write failed",
				"session_id", entry.SessionID, "seq", entry.Seq, "error", err)
		}
	}
}

// Close flushes the async queue and closes the database.
func (a *SQLite) Close() error {
	a.once.Do(func() {
		close(a.queue)
	})
	a.drainWG.Wait()
	return a.db.Close()
}
