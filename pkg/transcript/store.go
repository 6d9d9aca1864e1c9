// Package transcript archives chat sessions in a local SQLite database.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/minhyannv/io-chat-go/pkg/conversation"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a session id is not in the archive.
var ErrNotFound = errors.New("session not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		system_prompt TEXT NOT NULL,
		token_count   INTEGER NOT NULL DEFAULT 0,
		started_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`,
}

// Summary describes one archived session.
type Summary struct {
	ID           string
	SystemPrompt string
	Messages     int
	TokenCount   int64
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// Store is a SQLite-backed session archive.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the archive at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// One writer is all a single console session needs.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// tx executes fn within a database transaction. The transaction is
// committed if fn returns nil, rolled back otherwise.
func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// SaveSession upserts the session row and appends messages not yet stored.
// Histories only grow, so rows already present are left as they are.
func (s *Store) SaveSession(ctx context.Context, sess conversation.Session) error {
	if sess.ID == "" {
		return errors.New("session id is required")
	}
	updated := s.now().UTC().Format(timeLayout)
	started := sess.StartedAt.UTC().Format(timeLayout)

	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, system_prompt, token_count, started_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				token_count = excluded.token_count,
				updated_at  = excluded.updated_at`,
			sess.ID, sess.History.SystemPrompt(), sess.TokenCount, started, updated)
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}

		var stored int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sess.ID).Scan(&stored); err != nil {
			return fmt.Errorf("count messages: %w", err)
		}

		for i := stored; i < len(sess.History); i++ {
			m := sess.History[i]
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO messages (session_id, seq, role, content) VALUES (?, ?, ?, ?)`,
				sess.ID, i, string(m.Role), m.Content); err != nil {
				return fmt.Errorf("insert message %d: %w", i, err)
			}
		}
		return nil
	})
}

// LoadSession returns the archived session with the given id.
func (s *Store) LoadSession(ctx context.Context, id string) (conversation.Session, error) {
	var (
		sess    conversation.Session
		started string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, token_count, started_at FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.TokenCount, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Session{}, ErrNotFound
	}
	if err != nil {
		return conversation.Session{}, fmt.Errorf("load session %s: %w", id, err)
	}
	sess.StartedAt, _ = time.Parse(timeLayout, started)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return conversation.Session{}, fmt.Errorf("load messages %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return conversation.Session{}, fmt.Errorf("scan message: %w", err)
		}
		sess.History = append(sess.History, conversation.Message{Role: conversation.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return conversation.Session{}, fmt.Errorf("iterate messages: %w", err)
	}
	return sess, nil
}

// ListSessions returns up to limit sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.system_prompt, s.token_count, s.started_at, s.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum              Summary
			started, updated string
		)
		if err := rows.Scan(&sum.ID, &sum.SystemPrompt, &sum.TokenCount, &started, &updated, &sum.Messages); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.StartedAt, _ = time.Parse(timeLayout, started)
		sum.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}
