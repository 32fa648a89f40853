package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MikeSquared-Agency/caption/internal/session"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                          TEXT PRIMARY KEY,
	owner_id                    TEXT NOT NULL,
	label                       TEXT NOT NULL,
	message_count               INTEGER NOT NULL DEFAULT 0,
	label_generation_attempted  INTEGER NOT NULL DEFAULT 0,
	label_manual                INTEGER NOT NULL DEFAULT 0,
	created_at                  INTEGER NOT NULL,
	updated_at                  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_owner_updated_idx ON sessions (owner_id, updated_at DESC);
CREATE TABLE IF NOT EXISTS session_messages (
	session_id  TEXT NOT NULL,
	position    INTEGER NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (session_id, position)
);`

// SQLite is a SessionStore on a single-file (or in-memory) SQLite database.
// Timestamps are stored as unix milliseconds.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens path, which may be ":memory:". All access goes through one
// connection so an in-memory database is shared and writes are serialized.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func (s *SQLite) CreateSession(ctx context.Context, ownerID, label string) (*session.Session, error) {
	now := nowMillis()
	sess := &session.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Label:     label,
		CreatedAt: time.UnixMilli(now).UTC(),
		UpdatedAt: time.UnixMilli(now).UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, owner_id, label, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		sess.ID, ownerID, label, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *SQLite) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var (
		sess              session.Session
		created, updated  int64
		attempted, manual bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, label, message_count, label_generation_attempted, label_manual, created_at, updated_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.OwnerID, &sess.Label, &sess.MessageCount, &attempted, &manual, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	sess.LabelGenerationAttempted = attempted
	sess.LabelManual = manual
	sess.CreatedAt = time.UnixMilli(created).UTC()
	sess.UpdatedAt = time.UnixMilli(updated).UTC()
	return &sess, nil
}

func (s *SQLite) DeleteSession(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) ListSessions(ctx context.Context, ownerID string) ([]session.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, label, message_count, updated_at
		FROM sessions WHERE owner_id = ?
		ORDER BY updated_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []session.Summary{}
	for rows.Next() {
		var (
			sum     session.Summary
			updated int64
		)
		if err := rows.Scan(&sum.ID, &sum.OwnerID, &sum.Label, &sum.MessageCount, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendMessage(ctx context.Context, id, role, content string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := nowMillis()
	res, err := tx.ExecContext(ctx, `
		UPDATE sessions SET message_count = message_count + 1, updated_at = ?
		WHERE id = ?`, now, id)
	if err != nil {
		return 0, fmt.Errorf("increment message count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT message_count FROM sessions WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("read message count: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_messages (session_id, position, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, count-1, role, content, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return count, nil
}

func (s *SQLite) GetFirstMessages(ctx context.Context, id string, n int) ([]session.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, role, content, position
		FROM session_messages WHERE session_id = ?
		ORDER BY position
		LIMIT ?`, id, n)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var out []session.Message
	for rows.Next() {
		var m session.Message
		if err := rows.Scan(&m.SessionID, &m.Role, &m.Content, &m.Position); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) ClaimGeneration(ctx context.Context, id string, threshold int, placeholder string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET label_generation_attempted = 1, updated_at = ?
		WHERE id = ?
		  AND label_generation_attempted = 0
		  AND label_manual = 0
		  AND label = ?
		  AND message_count >= ?`,
		nowMillis(), id, placeholder, threshold,
	)
	if err != nil {
		return false, fmt.Errorf("claim generation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLite) WriteLabel(ctx context.Context, id, label string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET label = CASE WHEN label_manual = 1 THEN label ELSE ? END,
		    label_generation_attempted = 1,
		    updated_at = ?
		WHERE id = ?`,
		label, nowMillis(), id,
	)
	if err != nil {
		return false, fmt.Errorf("write label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) ReadLabel(ctx context.Context, id string) (string, error) {
	var label string
	err := s.db.QueryRowContext(ctx, `SELECT label FROM sessions WHERE id = ?`, id).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read label: %w", err)
	}
	return label, nil
}

func (s *SQLite) RenameSession(ctx context.Context, id, label string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET label = ?, label_manual = 1, label_generation_attempted = 1, updated_at = ?
		WHERE id = ?`,
		label, nowMillis(), id,
	)
	if err != nil {
		return false, fmt.Errorf("rename session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) ListPendingSessions(ctx context.Context, threshold int, placeholder string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM sessions
		WHERE label_generation_attempted = 0
		  AND label_manual = 0
		  AND label = ?
		  AND message_count >= ?
		ORDER BY updated_at, id
		LIMIT ?`,
		placeholder, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
