package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// MaxMessageLength is Telegram's sendMessage text limit.
const MaxMessageLength = 4096

// Reply is a finished answer ready for delivery.
type Reply struct {
	ChatID        int64
	ReplyTo       int
	PlaceholderID int    // message to edit in place, 0 to send fresh
	Markdown      string // model output, converted to HTML before sending
}

// Deliver sends r, editing the placeholder with the first chunk when one
// exists. If the edit fails the chunk is sent as a new message instead.
func Deliver(ctx context.Context, m Messenger, r Reply) error {
	chunks := splitLargeMessage(markdownToTelegramHTML(r.Markdown), MaxMessageLength)
	if len(chunks) == 0 {
		return nil
	}

	start := 0
	if r.PlaceholderID != 0 {
		if err := m.EditMessageText(ctx, r.ChatID, r.PlaceholderID, chunks[0]); err != nil {
			slog.Warn("telegram: edit placeholder failed, sending new message",
				"chat_id", r.ChatID, "message_id", r.PlaceholderID, "error", err)
		} else {
			start = 1
		}
	}

	var firstErr error
	for i := start; i < len(chunks); i++ {
		msg := OutgoingMessage{ChatID: r.ChatID, Text: chunks[i]}
		if i == 0 {
			msg.ReplyTo = r.ReplyTo
		}
		_, err := m.SendMessage(ctx, msg)
		if err != nil && isParseError(err) {
			slog.Warn("telegram: html rejected, resending as plain text", "chat_id", r.ChatID, "chunk", i+1, "error", err)
			msg.Text, msg.Plain = plainText(msg.Text), true
			_, err = m.SendMessage(ctx, msg)
		}
		if err != nil {
			slog.Error("telegram: send chunk failed", "chat_id", r.ChatID, "chunk", i+1, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
			}
		}
	}
	return firstErr
}

// isParseError reports whether the Bot API refused the HTML markup.
func isParseError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "can't parse entities") || strings.Contains(msg, "can't find end tag")
}
