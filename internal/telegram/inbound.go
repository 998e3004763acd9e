package telegram

import (
	"strings"

	"github.com/mymmrac/telego"
)

// InboundMessage is the part of a webhook update the pipeline reads.
type InboundMessage struct {
	ChatID    int64
	ChatType  string // "private", "group", "supergroup", "channel"
	ChatTitle string
	MessageID int
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
	Text      string
}

// IsPrivate reports whether the message came from a one-to-one chat.
func (m *InboundMessage) IsPrivate() bool { return m.ChatType == telego.ChatTypePrivate }

// DisplayName is the @username when set, else the first name.
func (m *InboundMessage) DisplayName() string {
	if m.Username != "" {
		return m.Username
	}
	return strings.TrimSpace(m.FirstName)
}

// FromUpdate extracts a text message from update. It reports false for
// updates without a message or without text.
func FromUpdate(update telego.Update) (*InboundMessage, bool) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return nil, false
	}
	in := &InboundMessage{
		ChatID:    msg.Chat.ID,
		ChatType:  msg.Chat.Type,
		ChatTitle: msg.Chat.Title,
		MessageID: msg.MessageID,
		Text:      msg.Text,
	}
	if msg.From != nil {
		in.UserID = msg.From.ID
		in.Username = msg.From.Username
		in.FirstName = msg.From.FirstName
		in.LastName = msg.From.LastName
		in.IsBot = msg.From.IsBot
	}
	return in, true
}
