package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/modbot/internal/store"
)

// SetupStore implements store.SetupStore on SQLite.
type SetupStore struct {
	db *sql.DB
}

func NewSetupStore(db *sql.DB) *SetupStore {
	return &SetupStore{db: db}
}

func (s *SetupStore) CreateSetupSession(ctx context.Context, sess *store.SetupSession) error {
	if sess.ID == "" {
		sess.ID = uuid.Must(uuid.NewV7()).String()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO setup_sessions (id, token, telegram_user_id, group_chat_id, expires_at, is_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Token, sess.TelegramUserID, sess.GroupChatID, millis(sess.ExpiresAt), sess.IsUsed, millis(sess.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert setup session: %w", err)
	}
	return nil
}

func (s *SetupStore) GetActiveSetupSession(ctx context.Context, token string, now time.Time) (*store.SetupSession, error) {
	var sess store.SetupSession
	var expires, created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, token, telegram_user_id, group_chat_id, expires_at, is_used, created_at
		 FROM setup_sessions WHERE token = ? AND is_used = 0 AND expires_at > ?`,
		token, millis(now),
	).Scan(&sess.ID, &sess.Token, &sess.TelegramUserID, &sess.GroupChatID, &expires, &sess.IsUsed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setup session: %w", err)
	}
	sess.ExpiresAt, sess.CreatedAt = fromMillis(expires), fromMillis(created)
	return &sess, nil
}

func (s *SetupStore) PurgeExpiredSetupSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM setup_sessions WHERE expires_at <= ?`, millis(now))
	if err != nil {
		return 0, fmt.Errorf("purge setup sessions: %w", err)
	}
	return res.RowsAffected()
}
