package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const (
	sqliteBufferSize    = 4096
	sqliteFlushInterval = 100 * time.Millisecond
	sqliteFlushBatch    = 256
	sqliteWriteTimeout  = 5 * time.Second
)

// ErrSinkFull is returned when the sink buffer cannot accept an event.
var ErrSinkFull = errors.New("audit sink buffer full")

// ErrSinkClosed is returned by Write after Close.
var ErrSinkClosed = errors.New("audit sink closed")

const createEventsTable = `
CREATE TABLE IF NOT EXISTS tool_call_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp   TEXT    NOT NULL,
	request_id  TEXT    NOT NULL,
	tool_name   TEXT    NOT NULL,
	backend     TEXT    NOT NULL,
	headers     TEXT,
	arguments   TEXT,
	outcome     TEXT    NOT NULL,
	status      INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	success     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_call_events_request_id ON tool_call_events(request_id);
`

const insertEvent = `
INSERT INTO tool_call_events (
	timestamp, request_id, tool_name, backend, headers, arguments,
	outcome, status, duration_ms, success
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteSink appends audit events to a local SQLite table. Writes are
// buffered and batch-inserted by a background goroutine.
type SQLiteSink struct {
	db      *sql.DB
	buffer  chan Event
	done    chan struct{}
	flushed chan struct{}
	logger  *slog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// OpenSQLiteSink opens (or creates) the database at path and starts the
// flush loop.
func OpenSQLiteSink(ctx context.Context, path string, logger *slog.Logger) (*SQLiteSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createEventsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	s := &SQLiteSink{
		db:      db,
		buffer:  make(chan Event, sqliteBufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go s.flushLoop()
	return s, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure audit database: %w", err)
		}
	}
	return db, nil
}

// Write queues an event. It never blocks; a full buffer drops the event.
func (s *SQLiteSink) Write(_ context.Context, event Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.buffer <- event:
		return nil
	default:
		return ErrSinkFull
	}
}

// Close drains buffered events and closes the database.
func (s *SQLiteSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.done)
		<-s.flushed
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteSink) flushLoop() {
	defer close(s.flushed)

	ticker := time.NewTicker(sqliteFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, sqliteFlushBatch)
	for {
		select {
		case event := <-s.buffer:
			batch = append(batch, event)
			if len(batch) >= sqliteFlushBatch {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.done:
		drain:
			for {
				select {
				case event := <-s.buffer:
					batch = append(batch, event)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *SQLiteSink) flush(events []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteWriteTimeout)
	defer cancel()

	if err := s.insert(ctx, events); err != nil {
		s.logger.Error("audit sqlite flush failed",
			"batch_size", len(events),
			"error", err)
	}
}

func (s *SQLiteSink) insert(ctx context.Context, events []Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range events {
		headers, err := encodeHeaders(e.Headers)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.RequestID,
			e.ToolName,
			e.Backend,
			headers,
			string(e.Arguments),
			e.Outcome,
			e.Status,
			e.DurationMS,
			boolToInt(e.Success),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert audit event %s: %w", e.RequestID, err)
		}
	}
	return tx.Commit()
}

// ReadEvents returns the stored events at path in insertion order, newest
// last. A limit of zero or less returns every row.
func ReadEvents(ctx context.Context, path string, limit int) ([]Event, error) {
	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	query := `SELECT timestamp, request_id, tool_name, backend, headers, arguments,
		outcome, status, duration_ms, success FROM tool_call_events ORDER BY id`
	args := []any{}
	if limit > 0 {
		query = `SELECT * FROM (SELECT id, timestamp, request_id, tool_name, backend, headers, arguments,
			outcome, status, duration_ms, success FROM tool_call_events ORDER BY id DESC LIMIT ?) ORDER BY id`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var (
			e         Event
			id        int64
			ts        string
			headers   sql.NullString
			arguments sql.NullString
			success   int
		)
		dest := []any{&ts, &e.RequestID, &e.ToolName, &e.Backend, &headers, &arguments,
			&e.Outcome, &e.Status, &e.DurationMS, &success}
		if limit > 0 {
			dest = append([]any{&id}, dest...)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.Success = success != 0
		if headers.Valid && headers.String != "" {
			if e.Headers, err = decodeHeaders(headers.String); err != nil {
				return nil, err
			}
		}
		if arguments.Valid && arguments.String != "" {
			e.Arguments = []byte(arguments.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
