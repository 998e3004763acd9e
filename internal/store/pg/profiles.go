package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/modbot/internal/store"
)

// PGProfileStore implements store.ProfileStore backed by Postgres.
type PGProfileStore struct {
	db *sql.DB
}

func NewPGProfileStore(db *sql.DB) *PGProfileStore {
	return &PGProfileStore{db: db}
}

func (s *PGProfileStore) UpsertProfile(ctx context.Context, p *store.Profile) (*store.Profile, error) {
	var out store.Profile
	var id uuid.UUID
	var username, first, last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO user_profiles (id, telegram_user_id, username, first_name, last_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (telegram_user_id) DO UPDATE SET
		   username = EXCLUDED.username,
		   first_name = EXCLUDED.first_name,
		   last_name = EXCLUDED.last_name,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, telegram_user_id, username, first_name, last_name, created_at, updated_at`,
		uuid.Must(uuid.NewV7()), p.TelegramUserID, nilStr(p.Username), nilStr(p.FirstName), nilStr(p.LastName), time.Now(),
	).Scan(&id, &out.TelegramUserID, &username, &first, &last, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert profile %d: %w", p.TelegramUserID, err)
	}
	out.ID = id.String()
	out.Username, out.FirstName, out.LastName = username.String, first.String, last.String
	return &out, nil
}

// PGMessageStore implements store.MessageStore backed by Postgres.
type PGMessageStore struct {
	db *sql.DB
}

func NewPGMessageStore(db *sql.DB) *PGMessageStore {
	return &PGMessageStore{db: db}
}

func (s *PGMessageStore) InsertMessage(ctx context.Context, m *store.ConversationMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	id := uuid.Must(uuid.NewV7())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_messages
		   (id, group_id, telegram_message_id, telegram_user_id, username, message_text, bot_response, processed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, m.GroupID, m.TelegramMessageID, m.TelegramUserID, nilStr(m.Username),
		m.MessageText, m.BotResponse, m.ProcessedAt, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	m.ID = id.String()
	return nil
}

// nilStr maps "" to SQL NULL.
func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
