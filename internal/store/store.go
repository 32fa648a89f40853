package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/caption/internal/session"
)

// ErrNotFound is returned by reads of a session that does not exist.
var ErrNotFound = errors.New("session not found")

// SessionStore is the durable record of sessions, their messages and labels.
//
// Implementations guarantee read-after-write consistency for a single session id:
// a ReadLabel following a WriteLabel on the same store observes that write.
type SessionStore interface {
	CreateSession(ctx context.Context, ownerID, label string) (*session.Session, error)
	GetSession(ctx context.Context, id string) (*session.Session, error)
	DeleteSession(ctx context.Context, id string) (found bool, err error)
	ListSessions(ctx context.Context, ownerID string) ([]session.Summary, error)

	// AppendMessage stores a message at the next position and returns the new message count.
	AppendMessage(ctx context.Context, id, role, content string) (int, error)
	GetFirstMessages(ctx context.Context, id string, n int) ([]session.Message, error)

	// ClaimGeneration atomically sets label_generation_attempted when the session has at least
	// threshold messages, has not been attempted, was not renamed and still carries placeholder.
	// It reports whether this caller made the claim.
	ClaimGeneration(ctx context.Context, id string, threshold int, placeholder string) (bool, error)
	// WriteLabel sets the generated label and label_generation_attempted in one write.
	// A manually renamed session keeps its label. Unknown ids return found=false and no error.
	WriteLabel(ctx context.Context, id, label string) (found bool, err error)
	ReadLabel(ctx context.Context, id string) (string, error)
	// RenameSession is the manual write path. It also suppresses automatic generation.
	RenameSession(ctx context.Context, id, label string) (found bool, err error)

	// ListPendingSessions returns ids of sessions eligible for a claim, oldest first.
	ListPendingSessions(ctx context.Context, threshold int, placeholder string, limit int) ([]string, error)

	Close() error
}

// Open connects to the store named by url: postgres://… or postgresql://… for PostgreSQL,
// sqlite://path (or sqlite://:memory:) for SQLite.
func Open(ctx context.Context, url string) (SessionStore, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgres(ctx, url)
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLite(ctx, strings.TrimPrefix(url, "sqlite://"))
	case url == "":
		return nil, fmt.Errorf("database url is empty")
	default:
		return nil, fmt.Errorf("unsupported database url scheme: %q", url)
	}
}
