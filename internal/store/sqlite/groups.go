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

// GroupStore implements store.GroupStore on SQLite.
type GroupStore struct {
	db *sql.DB
}

func NewGroupStore(db *sql.DB) *GroupStore {
	return &GroupStore{db: db}
}

const groupSelectCols = `id, chat_id, group_title, group_type, is_active, contexts_version, created_at, updated_at`

func (s *GroupStore) UpsertGroup(ctx context.Context, chatID int64, title, groupType string) (*store.Group, error) {
	now := millis(time.Now())
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO telegram_groups (id, chat_id, group_title, group_type, is_active, contexts_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, 0, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   group_title = excluded.group_title,
		   group_type = excluded.group_type,
		   updated_at = excluded.updated_at
		 RETURNING `+groupSelectCols,
		uuid.Must(uuid.NewV7()).String(), chatID, title, groupType, now, now)
	g, err := scanGroup(row)
	if err != nil {
		return nil, fmt.Errorf("upsert group %d: %w", chatID, err)
	}
	return g, nil
}

func (s *GroupStore) GetGroupByChatID(ctx context.Context, chatID int64) (*store.Group, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+groupSelectCols+` FROM telegram_groups WHERE chat_id = ?`, chatID)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return g, err
}

func scanGroup(row *sql.Row) (*store.Group, error) {
	var g store.Group
	var created, updated int64
	if err := row.Scan(&g.ID, &g.ChatID, &g.Title, &g.Type, &g.IsActive, &g.ContextsVersion, &created, &updated); err != nil {
		return nil, err
	}
	g.CreatedAt = fromMillis(created)
	g.UpdatedAt = fromMillis(updated)
	return &g, nil
}

func (s *GroupStore) FetchReplyData(ctx context.Context, groupID string, messageLimit int) (*store.ReplyData, error) {
	var data store.ReplyData
	err := s.db.QueryRowContext(ctx,
		`SELECT contexts_version FROM telegram_groups WHERE id = ?`, groupID).Scan(&data.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch context version: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, title, content, context_type, is_active, priority, created_at
		 FROM group_contexts WHERE group_id = ? AND is_active = 1
		 ORDER BY priority DESC, created_at ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("fetch contexts: %w", err)
	}
	data.Contexts, err = scanContexts(rows)
	if err != nil {
		return nil, fmt.Errorf("fetch contexts: %w", err)
	}

	if messageLimit <= 0 {
		return &data, nil
	}
	mrows, err := s.db.QueryContext(ctx,
		`SELECT username, message_text, created_at FROM conversation_messages
		 WHERE group_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, groupID, messageLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch recent messages: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var m store.RecentMessage
		var username sql.NullString
		var created int64
		if err := mrows.Scan(&username, &m.MessageText, &created); err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		m.Username = username.String
		m.CreatedAt = fromMillis(created)
		data.Messages = append(data.Messages, m)
	}
	if err := mrows.Err(); err != nil {
		return nil, fmt.Errorf("fetch recent messages: %w", err)
	}
	return &data, nil
}

func (s *GroupStore) AddContext(ctx context.Context, c *store.GroupContext) error {
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	if c.ContextType == "" {
		c.ContextType = "general"
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_contexts (id, group_id, title, content, context_type, is_active, priority, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.GroupID, c.Title, c.Content, c.ContextType, c.IsActive, c.Priority, millis(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert context: %w", err)
	}
	return nil
}

func (s *GroupStore) ListContexts(ctx context.Context, groupID string) ([]store.GroupContext, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, title, content, context_type, is_active, priority, created_at
		 FROM group_contexts WHERE group_id = ? ORDER BY priority DESC, created_at ASC`, groupID)
	if err != nil {
		return nil, err
	}
	return scanContexts(rows)
}

func (s *GroupStore) SetContextActive(ctx context.Context, contextID string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE group_contexts SET is_active = ? WHERE id = ?`, active, contextID)
	if err != nil {
		return fmt.Errorf("update context: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanContexts(rows *sql.Rows) ([]store.GroupContext, error) {
	defer rows.Close()
	var out []store.GroupContext
	for rows.Next() {
		var c store.GroupContext
		var created int64
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Title, &c.Content, &c.ContextType, &c.IsActive, &c.Priority, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = fromMillis(created)
		out = append(out, c)
	}
	return out, rows.Err()
}
