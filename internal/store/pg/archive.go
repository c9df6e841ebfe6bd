// Package pg mirrors each saved session into Postgres alongside the
// authoritative per-key JSON file store, for operators who want their
// session history queryable outside the workspace filesystem. It is
// strictly a read-side archive: the file store in internal/sessions never
// reads from it, and its absence or failure never blocks a chat turn.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/coreclaw/agentcore/internal/sessions"
)

// Archive writes Mirror(session) calls to a "sessions_archive" table. Open
// a single Archive per process and share it across the session Manager's
// archive hook.
type Archive struct {
	db *sql.DB
}

// Open connects to Postgres using dsn (a "postgres://" URL) via pgx's
// database/sql driver and verifies connectivity with a short-lived ping.
func Open(ctx context.Context, dsn string) (*Archive, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg: empty dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: open: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Mirror upserts a session snapshot into sessions_archive. It logs and
// swallows errors rather than returning them, since the caller (the
// session Manager's Save path) must not be blocked by archive
// unavailability.
func (a *Archive) Mirror(s *sessions.Session) {
	if s == nil {
		return
	}
	msgsJSON, err := json.Marshal(s.Messages)
	if err != nil {
		slog.Warn("pg archive: marshal messages failed", "session", s.Key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO sessions_archive (session_key, messages, message_count, last_consolidated_index, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_key) DO UPDATE SET
			messages = EXCLUDED.messages,
			message_count = EXCLUDED.message_count,
			last_consolidated_index = EXCLUDED.last_consolidated_index,
			updated_at = EXCLUDED.updated_at
	`, s.Key, msgsJSON, len(s.Messages), s.LastConsolidatedIndex, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		slog.Warn("pg archive: mirror failed", "session", s.Key, "error", err)
	}
}
