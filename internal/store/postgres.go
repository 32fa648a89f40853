package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/caption/internal/session"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                          TEXT PRIMARY KEY,
	owner_id                    TEXT NOT NULL,
	label                       TEXT NOT NULL,
	message_count               INTEGER NOT NULL DEFAULT 0,
	label_generation_attempted  BOOLEAN NOT NULL DEFAULT FALSE,
	label_manual                BOOLEAN NOT NULL DEFAULT FALSE,
	created_at                  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sessions_owner_updated_idx ON sessions (owner_id, updated_at DESC);
CREATE TABLE IF NOT EXISTS session_messages (
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (session_id, position)
);`

// Postgres is a SessionStore backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) CreateSession(ctx context.Context, ownerID, label string) (*session.Session, error) {
	var sess session.Session
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, owner_id, label)
		VALUES ($1, $2, $3)
		RETURNING id, owner_id, label, message_count, label_generation_attempted, label_manual, created_at, updated_at`,
		uuid.NewString(), ownerID, label,
	).Scan(&sess.ID, &sess.OwnerID, &sess.Label, &sess.MessageCount,
		&sess.LabelGenerationAttempted, &sess.LabelManual, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &sess, nil
}

func (s *Postgres) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var sess session.Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, label, message_count, label_generation_attempted, label_manual, created_at, updated_at
		FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.OwnerID, &sess.Label, &sess.MessageCount,
		&sess.LabelGenerationAttempted, &sess.LabelManual, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return &sess, nil
}

func (s *Postgres) DeleteSession(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) ListSessions(ctx context.Context, ownerID string) ([]session.Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, label, message_count, updated_at
		FROM sessions WHERE owner_id = $1
		ORDER BY updated_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []session.Summary{}
	for rows.Next() {
		var sum session.Summary
		if err := rows.Scan(&sum.ID, &sum.OwnerID, &sum.Label, &sum.MessageCount, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Postgres) AppendMessage(ctx context.Context, id, role, content string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	err = tx.QueryRow(ctx, `
		UPDATE sessions SET message_count = message_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING message_count`, id,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment message count: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO session_messages (session_id, position, role, content)
		VALUES ($1, $2, $3, $4)`,
		id, count-1, role, content,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return count, nil
}

func (s *Postgres) GetFirstMessages(ctx context.Context, id string, n int) ([]session.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, role, content, position
		FROM session_messages WHERE session_id = $1
		ORDER BY position
		LIMIT $2`, id, n)
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

func (s *Postgres) ClaimGeneration(ctx context.Context, id string, threshold int, placeholder string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET label_generation_attempted = TRUE, updated_at = now()
		WHERE id = $1
		  AND NOT label_generation_attempted
		  AND NOT label_manual
		  AND label = $2
		  AND message_count >= $3`,
		id, placeholder, threshold,
	)
	if err != nil {
		return false, fmt.Errorf("claim generation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) WriteLabel(ctx context.Context, id, label string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET label = CASE WHEN label_manual THEN label ELSE $2 END,
		    label_generation_attempted = TRUE,
		    updated_at = now()
		WHERE id = $1`,
		id, label,
	)
	if err != nil {
		return false, fmt.Errorf("write label: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) ReadLabel(ctx context.Context, id string) (string, error) {
	var label string
	err := s.pool.QueryRow(ctx, `SELECT label FROM sessions WHERE id = $1`, id).Scan(&label)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read label: %w", err)
	}
	return label, nil
}

func (s *Postgres) RenameSession(ctx context.Context, id, label string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET label = $2, label_manual = TRUE, label_generation_attempted = TRUE, updated_at = now()
		WHERE id = $1`,
		id, label,
	)
	if err != nil {
		return false, fmt.Errorf("rename session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) ListPendingSessions(ctx context.Context, threshold int, placeholder string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM sessions
		WHERE NOT label_generation_attempted
		  AND NOT label_manual
		  AND label = $1
		  AND message_count >= $2
		ORDER BY updated_at
		LIMIT $3`,
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
