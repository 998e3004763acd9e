package store

import (
	"context"
	"time"
)

// Profile is a Telegram user known to the bot.
type Profile struct {
	ID             string    `json:"id"`
	TelegramUserID int64     `json:"telegram_user_id"`
	Username       string    `json:"username,omitempty"`
	FirstName      string    `json:"first_name,omitempty"`
	LastName       string    `json:"last_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProfileStore manages user profiles.
type ProfileStore interface {
	// UpsertProfile creates or refreshes the profile keyed by TelegramUserID.
	UpsertProfile(ctx context.Context, p *Profile) (*Profile, error)
}

// ConversationMessage is one observed group message, with the bot's
// answer when it replied.
type ConversationMessage struct {
	ID                string     `json:"id"`
	GroupID           string     `json:"group_id"`
	TelegramMessageID int        `json:"telegram_message_id"`
	TelegramUserID    int64      `json:"telegram_user_id"`
	Username          string     `json:"username,omitempty"`
	MessageText       string     `json:"message_text"`
	BotResponse       *string    `json:"bot_response,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// MessageStore records conversation history.
type MessageStore interface {
	InsertMessage(ctx context.Context, m *ConversationMessage) error
}
