// Package pgsink is a non-authoritative dflow.AuditSink backed by
// PostgreSQL. It accepts an externally-owned *pgxpool.Pool via
// constructor injection — the caller creates and closes the pool, this
// package only runs queries against it.
package pgsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arclight/dflow"
)

// Sink implements dflow.AuditSink backed by PostgreSQL.
type Sink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ dflow.AuditSink = (*Sink)(nil)

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets a structured logger for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) { s.logger = l }
}

// New wraps an already-connected pool. Call Init once per fresh database
// to create the schema.
func New(pool *pgxpool.Pool, opts ...Option) *Sink {
	s := &Sink{pool: pool, logger: slog.New(discardHandler{})}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the effects/attempts tables if they don't already exist.
func (s *Sink) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS dflow_effects (
			workflow_id TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			position INT NOT NULL,
			success BOOLEAN NOT NULL,
			message JSONB NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (execution_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS dflow_attempts (
			workflow_id TEXT NOT NULL,
			execution_id TEXT NOT NULL PRIMARY KEY,
			outcome TEXT NOT NULL,
			error TEXT,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgsink: init schema: %w", err)
		}
	}
	return nil
}

// RecordEffect mirrors one log entry, upserting on (execution_id, position).
func (s *Sink) RecordEffect(ctx context.Context, state *dflow.State, exec *dflow.Execution, position int, entry dflow.LogMessage) {
	data, err := json.Marshal(entry.Message)
	if err != nil {
		s.logger.Warn("pgsink: marshal effect", "error", err)
		return
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO dflow_effects (workflow_id, execution_id, position, success, message)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (execution_id, position) DO UPDATE
		 SET success = excluded.success, message = excluded.message, recorded_at = now()`,
		state.ID, exec.ID, position, entry.Success, data)
	if err != nil {
		s.logger.Warn("pgsink: write effect", "error", err)
	}
}

// RecordAttempt mirrors one attempt's terminal outcome.
func (s *Sink) RecordAttempt(ctx context.Context, state *dflow.State, exec *dflow.Execution, result dflow.AttemptResult) {
	var errStr *string
	if result.Err != nil {
		msg := result.Err.Error()
		errStr = &msg
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dflow_attempts (workflow_id, execution_id, outcome, error)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (execution_id) DO UPDATE
		 SET outcome = excluded.outcome, error = excluded.error, recorded_at = now()`,
		state.ID, exec.ID, string(result.Outcome), errStr)
	if err != nil {
		s.logger.Warn("pgsink: write attempt", "error", err)
	}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
