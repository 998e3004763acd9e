package store

import (
	"context"
	"time"
)

// SetupSession is a one-time token linking a group admin to the web setup page.
type SetupSession struct {
	ID             string    `json:"id"`
	Token          string    `json:"token"`
	TelegramUserID int64     `json:"telegram_user_id"`
	GroupChatID    int64     `json:"group_chat_id"`
	ExpiresAt      time.Time `json:"expires_at"`
	IsUsed         bool      `json:"is_used"`
	CreatedAt      time.Time `json:"created_at"`
}

// SetupStore manages setup sessions.
type SetupStore interface {
	CreateSetupSession(ctx context.Context, s *SetupSession) error

	// GetActiveSetupSession returns the unused, unexpired session for token,
	// or ErrNotFound.
	GetActiveSetupSession(ctx context.Context, token string, now time.Time) (*SetupSession, error)

	// PurgeExpiredSetupSessions deletes sessions expired before now and
	// returns how many were removed.
	PurgeExpiredSetupSessions(ctx context.Context, now time.Time) (int64, error)
}
