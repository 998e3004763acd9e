package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/modbot/internal/store"
)

// ProfileStore implements store.ProfileStore on SQLite.
type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) UpsertProfile(ctx context.Context, p *store.Profile) (*store.Profile, error) {
	now := millis(time.Now())
	var out store.Profile
	var username, first, last sql.NullString
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO user_profiles (id, telegram_user_id, username, first_name, last_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(telegram_user_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   updated_at = excluded.updated_at
		 RETURNING id, telegram_user_id, username, first_name, last_name, created_at, updated_at`,
		uuid.Must(uuid.NewV7()).String(), p.TelegramUserID,
		nullString(p.Username), nullString(p.FirstName), nullString(p.LastName), now, now,
	).Scan(&out.ID, &out.TelegramUserID, &username, &first, &last, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("upsert profile %d: %w", p.TelegramUserID, err)
	}
	out.Username, out.FirstName, out.LastName = username.String, first.String, last.String
	out.CreatedAt, out.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &out, nil
}

// MessageStore implements store.MessageStore on SQLite.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) InsertMessage(ctx context.Context, m *store.ConversationMessage) error {
	if m.ID == "" {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	var response sql.NullString
	if m.BotResponse != nil {
		response = sql.NullString{String: *m.BotResponse, Valid: true}
	}
	var processed sql.NullInt64
	if m.ProcessedAt != nil {
		processed = sql.NullInt64{Int64: millis(*m.ProcessedAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_messages
		   (id, group_id, telegram_message_id, telegram_user_id, username, message_text, bot_response, processed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.GroupID, m.TelegramMessageID, m.TelegramUserID, nullString(m.Username),
		m.MessageText, response, processed, millis(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}
