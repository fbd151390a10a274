// Package sqlite implements journal.Sink backed by a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/nevindra/conduit"
	"github.com/nevindra/conduit/journal"
)

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithLogger enables debug logging of every recorded event.
func WithLogger(l *slog.Logger) SinkOption {
	return func(s *Sink) { s.logger = l }
}

// Sink records loop events to a local SQLite file.
type Sink struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ journal.Sink = (*Sink)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Sink using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...SinkOption) *Sink {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above this cannot happen at runtime.
		panic(fmt.Sprintf("sqlite journal: open %s: %v", dbPath, err))
	}
	db.SetMaxOpenConns(1)
	s := &Sink{db: db, logger: nopLogger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the events table if needed. Call once before recording.
func (s *Sink) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id TEXT,
		run_id TEXT,
		generation_id TEXT,
		order_idx INTEGER,
		kind TEXT NOT NULL,
		role TEXT,
		from_agent TEXT,
		tool_call_id TEXT,
		function_name TEXT,
		function_args TEXT,
		content TEXT,
		recorded_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id)`)
	if err != nil {
		return fmt.Errorf("create events index: %w", err)
	}
	return nil
}

// Record appends one event row.
func (s *Sink) Record(ctx context.Context, m conduit.Message) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO events
		(thread_id, run_id, generation_id, order_idx, kind, role, from_agent,
		 tool_call_id, function_name, function_args, content, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ThreadID, m.RunID, m.GenerationID, m.OrderIdx, string(m.Kind), m.Role,
		m.FromAgent, m.ToolCallID, m.FunctionName, m.FunctionArgs, m.Content,
		conduit.NowUnix())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	s.logger.Debug("event recorded", "kind", m.Kind, "run", m.RunID)
	return nil
}

// CountByRun returns how many events were recorded for a run.
func (s *Sink) CountByRun(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *Sink) Close() error {
	return s.db.Close()
}
