package store

import (
	"context"
	"time"
)

// Group is a Telegram chat the bot has seen.
type Group struct {
	ID              string    `json:"id"`
	ChatID          int64     `json:"chat_id"`
	Title           string    `json:"group_title"`
	Type            string    `json:"group_type"` // "group", "supergroup", "private", "channel"
	IsActive        bool      `json:"is_active"`
	ContextsVersion int64     `json:"contexts_version"` // bumped on every group_contexts change
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// GroupContext is one curated knowledge entry for a group.
type GroupContext struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"group_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContextType string    `json:"context_type"`
	IsActive    bool      `json:"is_active"`
	Priority    int       `json:"priority"` // higher first
	CreatedAt   time.Time `json:"created_at"`
}

// RecentMessage is one line of chat history fed to the prompt.
type RecentMessage struct {
	Username    string    `json:"username"`
	MessageText string    `json:"message_text"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReplyData is everything a reply needs from storage, fetched in one call.
// Messages are ordered newest first.
type ReplyData struct {
	Contexts []GroupContext  `json:"contexts"`
	Version  int64           `json:"version"`
	Messages []RecentMessage `json:"messages"`
}

// GroupStore manages groups and their knowledge contexts.
type GroupStore interface {
	// UpsertGroup creates or refreshes the group for chatID and returns it.
	UpsertGroup(ctx context.Context, chatID int64, title, groupType string) (*Group, error)
	GetGroupByChatID(ctx context.Context, chatID int64) (*Group, error)

	// FetchReplyData returns active contexts ordered by priority, the current
	// context version, and up to messageLimit recent messages.
	FetchReplyData(ctx context.Context, groupID string, messageLimit int) (*ReplyData, error)

	AddContext(ctx context.Context, c *GroupContext) error
	ListContexts(ctx context.Context, groupID string) ([]GroupContext, error)
	SetContextActive(ctx context.Context, contextID string, active bool) error
}
