package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/modbot/internal/store"
)

// PGSetupStore implements store.SetupStore backed by Postgres.
type PGSetupStore struct {
	db *sql.DB
}

func NewPGSetupStore(db *sql.DB) *PGSetupStore {
	return &PGSetupStore{db: db}
}

func (s *PGSetupStore) CreateSetupSession(ctx context.Context, sess *store.SetupSession) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	id := uuid.Must(uuid.NewV7())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO setup_sessions (id, token, telegram_user_id, group_chat_id, expires_at, is_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, sess.Token, sess.TelegramUserID, sess.GroupChatID, sess.ExpiresAt, sess.IsUsed, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert setup session: %w", err)
	}
	sess.ID = id.String()
	return nil
}

func (s *PGSetupStore) GetActiveSetupSession(ctx context.Context, token string, now time.Time) (*store.SetupSession, error) {
	var sess store.SetupSession
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id, token, telegram_user_id, group_chat_id, expires_at, is_used, created_at
		 FROM setup_sessions WHERE token = $1 AND is_used = false AND expires_at > $2`,
		token, now,
	).Scan(&id, &sess.Token, &sess.TelegramUserID, &sess.GroupChatID, &sess.ExpiresAt, &sess.IsUsed, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setup session: %w", err)
	}
	sess.ID = id.String()
	return &sess, nil
}

func (s *PGSetupStore) PurgeExpiredSetupSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM setup_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge setup sessions: %w", err)
	}
	return res.RowsAffected()
}
