// Package postgres implements journal.Sink backed by PostgreSQL.
//
// The Sink accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates the pool; Close releases only the Sink's
// claim on it (a no-op, so a shared pool stays usable).
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/conduit"
	"github.com/nevindra/conduit/journal"
)

// Sink records loop events to a PostgreSQL table.
type Sink struct {
	pool *pgxpool.Pool
}

var _ journal.Sink = (*Sink)(nil)

// New creates a Sink using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Sink {
	return &Sink{pool: pool}
}

// Init creates the events table if needed. Call once before recording.
func (s *Sink) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS loop_events (
		id BIGSERIAL PRIMARY KEY,
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
		recorded_at BIGINT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create loop_events table: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_loop_events_run ON loop_events(run_id)`)
	if err != nil {
		return fmt.Errorf("create loop_events index: %w", err)
	}
	return nil
}

// Record appends one event row.
func (s *Sink) Record(ctx context.Context, m conduit.Message) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO loop_events
		(thread_id, run_id, generation_id, order_idx, kind, role, from_agent,
		 tool_call_id, function_name, function_args, content, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ThreadID, m.RunID, m.GenerationID, m.OrderIdx, string(m.Kind), m.Role,
		m.FromAgent, m.ToolCallID, m.FunctionName, m.FunctionArgs, m.Content,
		conduit.NowUnix())
	if err != nil {
		return fmt.Errorf("insert loop event: %w", err)
	}
	return nil
}

// Close is a no-op: the pool is externally owned.
func (s *Sink) Close() error { return nil }
