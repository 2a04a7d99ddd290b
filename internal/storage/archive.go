// Package storage persists finished sessions to Postgres so past runs can be
// inspected after the process exits. Archiving is optional; an empty DSN
// disables it entirely.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reasongraph/reasongraph/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS reasoning_sessions (
	session_id              TEXT PRIMARY KEY,
	query                   TEXT NOT NULL,
	final_answer            TEXT NOT NULL DEFAULT '',
	final_confidence_vector TEXT NOT NULL DEFAULT '',
	accumulated_context     JSONB NOT NULL DEFAULT '{}'::jsonb,
	stage_trace             JSONB NOT NULL DEFAULT '[]'::jsonb,
	archived_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_reasoning_sessions_archived_at
	ON reasoning_sessions (archived_at DESC);
`

// SessionArchive stores finished sessions in Postgres.
type SessionArchive struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSessionArchive connects to Postgres and ensures the schema. An empty DSN
// returns (nil, nil): archiving disabled.
func NewSessionArchive(ctx context.Context, dsn string) (*SessionArchive, error) {
	if dsn == "" {
		return nil, nil
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid archive dsn: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive connection failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive schema setup failed: %w", err)
	}

	return &SessionArchive{
		pool:   pool,
		logger: slog.Default().With("component", "session_archive"),
	}, nil
}

// SaveSession upserts a finished session keyed by its id.
func (a *SessionArchive) SaveSession(ctx context.Context, sess *session.Session) error {
	contextJSON, err := json.Marshal(sess.AccumulatedContext)
	if err != nil {
		return fmt.Errorf("failed to encode accumulated context: %w", err)
	}
	traceJSON, err := json.Marshal(sess.Trace)
	if err != nil {
		return fmt.Errorf("failed to encode stage trace: %w", err)
	}

	_, err = a.pool.Exec(ctx, `
		INSERT INTO reasoning_sessions
			(session_id, query, final_answer, final_confidence_vector, accumulated_context, stage_trace, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (session_id) DO UPDATE SET
			final_answer = EXCLUDED.final_answer,
			final_confidence_vector = EXCLUDED.final_confidence_vector,
			accumulated_context = EXCLUDED.accumulated_context,
			stage_trace = EXCLUDED.stage_trace,
			archived_at = now()
	`, sess.ID, sess.Query, sess.FinalAnswer, sess.FinalConfidenceVector, contextJSON, traceJSON)
	if err != nil {
		return fmt.Errorf("session upsert failed: %w", err)
	}
	a.logger.Debug("session archived", "session_id", sess.ID)
	return nil
}

// LoadSession reads an archived session by id, or nil when absent.
func (a *SessionArchive) LoadSession(ctx context.Context, sessionID string) (*session.Session, error) {
	row := a.pool.QueryRow(ctx, `
		SELECT session_id, query, final_answer, final_confidence_vector, accumulated_context, stage_trace
		FROM reasoning_sessions
		WHERE session_id = $1
	`, sessionID)

	var sess session.Session
	var contextJSON, traceJSON []byte
	err := row.Scan(&sess.ID, &sess.Query, &sess.FinalAnswer, &sess.FinalConfidenceVector,
		&contextJSON, &traceJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}
	if err := json.Unmarshal(contextJSON, &sess.AccumulatedContext); err != nil {
		return nil, fmt.Errorf("failed to decode accumulated context: %w", err)
	}
	if err := json.Unmarshal(traceJSON, &sess.Trace); err != nil {
		return nil, fmt.Errorf("failed to decode stage trace: %w", err)
	}
	return &sess, nil
}

// SessionSummary is one row of the archive listing.
type SessionSummary struct {
	SessionID  string    `json:"session_id"`
	Query      string    `json:"query"`
	ArchivedAt time.Time `json:"archived_at"`
}

// ListSessions returns the most recently archived sessions.
func (a *SessionArchive) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.pool.Query(ctx, `
		SELECT session_id, query, archived_at
		FROM reasoning_sessions
		ORDER BY archived_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("session listing failed: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.SessionID, &s.Query, &s.ArchivedAt); err != nil {
			return nil, fmt.Errorf("session row scan failed: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// HealthCheck probes archive connectivity.
func (a *SessionArchive) HealthCheck(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// Close releases the connection pool.
func (a *SessionArchive) Close() {
	a.pool.Close()
}
