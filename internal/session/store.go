package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Message roles. The model role covers assistant replies.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one stored conversation turn half.
type Message struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// Querier is the subset of pgx operations the store needs.
// *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store persists conversation history in the messages table, keyed by the
// opaque session key. Safe for concurrent use.
type Store struct {
	q      Querier
	logger *slog.Logger
}

// NewStore creates a Store over q.
func NewStore(q Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{q: q, logger: logger}
}

// Append stores msgs for sessionKey in the given order.
func (s *Store) Append(ctx context.Context, sessionKey string, msgs ...Message) error {
	for _, m := range msgs {
		_, err := s.q.Exec(ctx, `
			INSERT INTO messages (session_key, role, content)
			VALUES ($1, $2, $3)`,
			sessionKey, m.Role, m.Content,
		)
		if err != nil {
			return fmt.Errorf("inserting message for session %s: %w", sessionKey, err)
		}
	}
	return nil
}

// History returns up to limit of the most recent messages for sessionKey, in
// chronological order. An unknown session key yields an empty history, not an
// error: a fresh conversation has no prior turns.
func (s *Store) History(ctx context.Context, sessionKey string, limit int) ([]Message, error) {
	rows, err := s.q.Query(ctx, `
		SELECT role, content, created_at FROM (
			SELECT id, role, content, created_at
			FROM messages
			WHERE session_key = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY recent.id ASC`,
		sessionKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history for session %s: %w", sessionKey, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history for session %s: %w", sessionKey, err)
	}
	return msgs, nil
}
