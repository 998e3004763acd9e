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

// PGGroupStore implements store.GroupStore backed by Postgres.
type PGGroupStore struct {
	db *sql.DB
}

func NewPGGroupStore(db *sql.DB) *PGGroupStore {
	return &PGGroupStore{db: db}
}

const groupSelectCols = `id, chat_id, group_title, group_type, is_active, contexts_version, created_at, updated_at`

const contextSelectCols = `id, group_id, title, content, context_type, is_active, priority, created_at`

func (s *PGGroupStore) UpsertGroup(ctx context.Context, chatID int64, title, groupType string) (*store.Group, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO telegram_groups (id, chat_id, group_title, group_type, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, true, $5, $5)
		 ON CONFLICT (chat_id) DO UPDATE SET
		   group_title = EXCLUDED.group_title,
		   group_type = EXCLUDED.group_type,
		   updated_at = EXCLUDED.updated_at
		 RETURNING `+groupSelectCols,
		uuid.Must(uuid.NewV7()), chatID, title, groupType, time.Now())
	g, err := scanGroup(row)
	if err != nil {
		return nil, fmt.Errorf("upsert group %d: %w", chatID, err)
	}
	return g, nil
}

func (s *PGGroupStore) GetGroupByChatID(ctx context.Context, chatID int64) (*store.Group, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+groupSelectCols+` FROM telegram_groups WHERE chat_id = $1`, chatID)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return g, err
}

func scanGroup(row *sql.Row) (*store.Group, error) {
	var g store.Group
	var id uuid.UUID
	if err := row.Scan(&id, &g.ChatID, &g.Title, &g.Type, &g.IsActive, &g.ContextsVersion, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.ID = id.String()
	return &g, nil
}

// FetchReplyData reads version, contexts and history in one read-only
// transaction so the version matches the contexts returned with it.
func (s *PGGroupStore) FetchReplyData(ctx context.Context, groupID string, messageLimit int) (*store.ReplyData, error) {
	gid, err := uuid.Parse(groupID)
	if err != nil {
		return nil, store.ErrNotFound
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var data store.ReplyData
	err = tx.QueryRowContext(ctx,
		`SELECT contexts_version FROM telegram_groups WHERE id = $1`, gid).Scan(&data.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch context version: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+contextSelectCols+` FROM group_contexts
		 WHERE group_id = $1 AND is_active = true
		 ORDER BY priority DESC, created_at ASC`, gid)
	if err != nil {
		return nil, fmt.Errorf("fetch contexts: %w", err)
	}
	if data.Contexts, err = scanContexts(rows); err != nil {
		return nil, fmt.Errorf("fetch contexts: %w", err)
	}

	if messageLimit > 0 {
		mrows, err := tx.QueryContext(ctx,
			`SELECT username, message_text, created_at FROM conversation_messages
			 WHERE group_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, gid, messageLimit)
		if err != nil {
			return nil, fmt.Errorf("fetch recent messages: %w", err)
		}
		defer mrows.Close()
		for mrows.Next() {
			var m store.RecentMessage
			var username sql.NullString
			if err := mrows.Scan(&username, &m.MessageText, &m.CreatedAt); err != nil {
				return nil, fmt.Errorf("scan recent message: %w", err)
			}
			m.Username = username.String
			data.Messages = append(data.Messages, m)
		}
		if err := mrows.Err(); err != nil {
			return nil, fmt.Errorf("fetch recent messages: %w", err)
		}
	}
	return &data, tx.Commit()
}

func (s *PGGroupStore) AddContext(ctx context.Context, c *store.GroupContext) error {
	id := uuid.Must(uuid.NewV7())
	if c.ID != "" {
		parsed, err := uuid.Parse(c.ID)
		if err != nil {
			return fmt.Errorf("invalid context id %q: %w", c.ID, err)
		}
		id = parsed
	}
	if c.ContextType == "" {
		c.ContextType = "general"
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_contexts (id, group_id, title, content, context_type, is_active, priority, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		id, c.GroupID, c.Title, c.Content, c.ContextType, c.IsActive, c.Priority, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert context: %w", err)
	}
	c.ID = id.String()
	return nil
}

func (s *PGGroupStore) ListContexts(ctx context.Context, groupID string) ([]store.GroupContext, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contextSelectCols+` FROM group_contexts WHERE group_id = $1
		 ORDER BY priority DESC, created_at ASC`, groupID)
	if err != nil {
		return nil, err
	}
	return scanContexts(rows)
}

func (s *PGGroupStore) SetContextActive(ctx context.Context, contextID string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE group_contexts SET is_active = $1, updated_at = $2 WHERE id = $3`, active, time.Now(), contextID)
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
		var id, gid uuid.UUID
		if err := rows.Scan(&id, &gid, &c.Title, &c.Content, &c.ContextType, &c.IsActive, &c.Priority, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.ID, c.GroupID = id.String(), gid.String()
		out = append(out, c)
	}
	return out, rows.Err()
}
