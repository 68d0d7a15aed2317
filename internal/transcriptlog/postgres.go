package transcriptlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscriptEntries = `
CREATE TABLE IF NOT EXISTS transcript_entries (
    id         BIGSERIAL    PRIMARY KEY,
    session_id TEXT         NOT NULL,
    tenant_id  TEXT         NOT NULL DEFAULT '',
    agent_id   TEXT         NOT NULL DEFAULT '',
    role       TEXT         NOT NULL,
    text       TEXT         NOT NULL,
    tool_name  TEXT         NOT NULL DEFAULT '',
    at         TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_session
    ON transcript_entries (session_id, at);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_tenant
    ON transcript_entries (tenant_id, at);
`

// PostgresStore is a transcript store backed by a pgx connection pool.
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at dsn, ensures the transcript
// table exists, and returns the store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("transcriptlog: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("transcriptlog: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcriptlog: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlTranscriptEntries); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcriptlog: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO transcript_entries
		    (session_id, tenant_id, agent_id, role, text, tool_name, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		e.SessionID, e.TenantID, e.AgentID, string(e.Role), e.Text, e.ToolName, at,
	)
	if err != nil {
		return fmt.Errorf("transcriptlog: append: %w", err)
	}
	return nil
}

// Recent returns the entries of one session in chronological order, capped at
// limit rows (0 means no cap).
func (s *PostgresStore) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	q := `
		SELECT session_id, tenant_id, agent_id, role, text, tool_name, at
		FROM   transcript_entries
		WHERE  session_id = $1
		ORDER  BY at`
	args := []any{sessionID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("transcriptlog: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var role string
		if err := rows.Scan(&e.SessionID, &e.TenantID, &e.AgentID, &role, &e.Text, &e.ToolName, &e.At); err != nil {
			return nil, fmt.Errorf("transcriptlog: scan: %w", err)
		}
		e.Role = Role(role)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcriptlog: rows: %w", err)
	}
	return out, nil
}

// Ping probes the database connection, used by the readiness check.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("transcriptlog: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

var _ Store = (*PostgresStore)(nil)
