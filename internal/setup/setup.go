// Package setup links a group admin to the web setup page: /settings in a
// group issues a one-time token, /start setup_<token> in private chat
// redeems it for the setup URL.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/modbot/internal/store"
	"github.com/nextlevelbuilder/modbot/internal/telegram"
)

// TokenTTL is how long a setup link stays valid.
const TokenTTL = 24 * time.Hour

var startSetupPattern = regexp.MustCompile(`/start setup_(.+)`)

// Flow handles the /start and /settings commands.
type Flow struct {
	groups   store.GroupStore
	profiles store.ProfileStore
	sessions store.SetupStore
	msg      telegram.Messenger

	botUsername  string
	setupBaseURL string
	now          func() time.Time
}

// NewFlow creates a setup Flow.
func NewFlow(stores *store.Stores, msg telegram.Messenger, botUsername, setupBaseURL string) *Flow {
	return &Flow{
		groups:       stores.Groups,
		profiles:     stores.Profiles,
		sessions:     stores.Setup,
		msg:          msg,
		botUsername:  botUsername,
		setupBaseURL: setupBaseURL,
		now:          time.Now,
	}
}

func (f *Flow) send(ctx context.Context, chatID int64, text string, buttons ...telegram.Button) error {
	_, err := f.msg.SendMessage(ctx, telegram.OutgoingMessage{ChatID: chatID, Text: text, Buttons: buttons})
	return err
}

func (f *Flow) setupURL(token string) string {
	return f.setupBaseURL + "?token=" + url.QueryEscape(token)
}

// HandleStart answers /start. With a setup_<token> payload it redeems the
// token, otherwise it sends the welcome message.
func (f *Flow) HandleStart(ctx context.Context, m *telegram.InboundMessage) error {
	match := startSetupPattern.FindStringSubmatch(m.Text)
	if match == nil {
		return f.send(ctx, m.ChatID, welcomeText(f.botUsername), telegram.Button{
			Text: "➕ Add to Group",
			URL:  fmt.Sprintf("https://t.me/%s?startgroup=true", f.botUsername),
		})
	}

	token := match[1]
	sess, err := f.sessions.GetActiveSetupSession(ctx, token, f.now())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("setup: lookup session failed", "error", err)
	}
	var group *store.Group
	if sess != nil {
		group, err = f.groups.GetGroupByChatID(ctx, sess.GroupChatID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Warn("setup: lookup group failed", "chat_id", sess.GroupChatID, "error", err)
		}
	}

	if sess == nil || group == nil {
		return f.send(ctx, m.ChatID, expiredText(f.botUsername))
	}
	return f.send(ctx, m.ChatID, setupLinkText(group.Title, f.setupURL(token)))
}

// HandleSettings answers /settings@bot in a group: only creators and
// administrators receive a setup token.
func (f *Flow) HandleSettings(ctx context.Context, m *telegram.InboundMessage) error {
	if m.IsPrivate() {
		return f.send(ctx, m.ChatID, settingsInPrivateText(f.botUsername))
	}

	status, err := f.msg.GetChatMemberStatus(ctx, m.ChatID, m.UserID)
	if err != nil {
		slog.Warn("setup: get chat member failed", "chat_id", m.ChatID, "user_id", m.UserID, "error", err)
	}
	if status != "creator" && status != "administrator" {
		return f.send(ctx, m.ChatID, notAdminText)
	}

	token, err := f.issueToken(ctx, m)
	if err != nil {
		slog.Error("setup: issue token failed", "chat_id", m.ChatID, "error", err)
		return f.send(ctx, m.ChatID, setupErrorText)
	}

	return f.send(ctx, m.ChatID, groupSetupText(m.DisplayName()), telegram.Button{
		Text: "💬 Continue in Private Chat",
		URL:  fmt.Sprintf("https://t.me/%s?start=setup_%s", f.botUsername, token),
	})
}

func (f *Flow) issueToken(ctx context.Context, m *telegram.InboundMessage) (string, error) {
	if _, err := f.groups.UpsertGroup(ctx, m.ChatID, m.ChatTitle, m.ChatType); err != nil {
		return "", err
	}
	if _, err := f.profiles.UpsertProfile(ctx, &store.Profile{
		TelegramUserID: m.UserID,
		Username:       m.Username,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
	}); err != nil {
		return "", err
	}

	sess := &store.SetupSession{
		Token:          uuid.NewString(),
		TelegramUserID: m.UserID,
		GroupChatID:    m.ChatID,
		ExpiresAt:      f.now().Add(TokenTTL),
	}
	if err := f.sessions.CreateSetupSession(ctx, sess); err != nil {
		return "", err
	}
	return sess.Token, nil
}
