// Package sqlitesink is a non-authoritative dflow.AuditSink backed by
// pure-Go SQLite (modernc.org/sqlite, zero CGO). It exists purely to give
// an operator a queryable history of effect and attempt outcomes; Runner
// never reads it back to decide replay vs. perform.
package sqlitesink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arclight/dflow"
)

// Sink implements dflow.AuditSink over a local SQLite file.
type Sink struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ dflow.AuditSink = (*Sink)(nil)

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets a structured logger; write failures are logged to it at
// warn level. Without it, failures are silent.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) { s.logger = l }
}

// Open creates a Sink backed by the SQLite file at dbPath, creating its
// schema if necessary. A single-connection pool serializes all writers
// through one connection and avoids SQLITE_BUSY entirely rather than
// tuning around it.
func Open(ctx context.Context, dbPath string, opts ...Option) (*Sink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlitesink: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Sink{db: db, logger: slog.New(discardHandler{})}
	for _, o := range opts {
		o(s)
	}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS effects (
			workflow_id TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			success INTEGER NOT NULL,
			message TEXT NOT NULL,
			recorded_at INTEGER NOT NULL,
			PRIMARY KEY (execution_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			workflow_id TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT,
			recorded_at INTEGER NOT NULL,
			PRIMARY KEY (execution_id)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitesink: init schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Sink) Close() error { return s.db.Close() }

// RecordEffect mirrors one log entry. Failures to write are logged and
// swallowed — a degraded audit trail must never fail a workflow attempt.
func (s *Sink) RecordEffect(ctx context.Context, state *dflow.State, exec *dflow.Execution, position int, entry dflow.LogMessage) {
	data, err := json.Marshal(entry.Message)
	if err != nil {
		s.logger.Warn("sqlitesink: marshal effect", "error", err)
		return
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO effects (workflow_id, execution_id, position, success, message, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(execution_id, position) DO UPDATE SET success=excluded.success, message=excluded.message, recorded_at=excluded.recorded_at`,
		state.ID, exec.ID, position, boolToInt(entry.Success), string(data), time.Now().Unix())
	if err != nil {
		s.logger.Warn("sqlitesink: write effect", "error", err)
	}
}

// RecordAttempt mirrors one attempt's terminal outcome.
func (s *Sink) RecordAttempt(ctx context.Context, state *dflow.State, exec *dflow.Execution, result dflow.AttemptResult) {
	var errStr string
	if result.Err != nil {
		errStr = result.Err.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (workflow_id, execution_id, outcome, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(execution_id) DO UPDATE SET outcome=excluded.outcome, error=excluded.error, recorded_at=excluded.recorded_at`,
		state.ID, exec.ID, string(result.Outcome), nullableString(errStr), time.Now().Unix())
	if err != nil {
		s.logger.Warn("sqlitesink: write attempt", "error", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
