// Package telegram wraps the Telegram Bot API calls the reply pipeline makes.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/modbot/internal/config"
)

// Button is an inline keyboard button opening a URL.
type Button struct {
	Text string
	URL  string
}

// OutgoingMessage is one sendMessage call. Text is Telegram HTML.
type OutgoingMessage struct {
	ChatID  int64
	Text    string
	ReplyTo int      // message id to reply to, 0 for none
	Buttons []Button // rendered one per row
	Plain   bool     // send Text without a parse mode
}

// Messenger is the subset of the Bot API used by the pipeline.
type Messenger interface {
	SendMessage(ctx context.Context, msg OutgoingMessage) (int, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	SendTyping(ctx context.Context, chatID int64) error
	GetChatMemberStatus(ctx context.Context, chatID, userID int64) (string, error)
}

// Client implements Messenger over telego. Outbound calls are paced by a
// token bucket shared across chats.
type Client struct {
	bot     *telego.Bot
	limiter *rate.Limiter
}

// NewClient creates a Bot API client from config.
func NewClient(cfg config.TelegramConfig) (*Client, error) {
	var opts []telego.BotOption

	if cfg.APIServer != "" {
		opts = append(opts, telego.WithAPIServer(cfg.APIServer))
	}
	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}
	burst := cfg.SendBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{bot: bot, limiter: rate.NewLimiter(limit, burst)}, nil
}

// Bot exposes the underlying telego bot.
func (c *Client) Bot() *telego.Bot { return c.bot }

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}
	return nil
}

// SendMessage sends an HTML message and returns its message id.
func (c *Client) SendMessage(ctx context.Context, msg OutgoingMessage) (int, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}

	params := tu.Message(tu.ID(msg.ChatID), msg.Text)
	if !msg.Plain {
		params.ParseMode = telego.ModeHTML
	}
	if msg.ReplyTo != 0 {
		params = params.WithReplyParameters(&telego.ReplyParameters{
			MessageID:                msg.ReplyTo,
			AllowSendingWithoutReply: true,
		})
	}
	if len(msg.Buttons) > 0 {
		rows := make([][]telego.InlineKeyboardButton, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton(b.Text).WithURL(b.URL)))
		}
		params = params.WithReplyMarkup(tu.InlineKeyboard(rows...))
	}

	sent, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

// EditMessageText replaces the text of a previously sent message.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	params := tu.EditMessageText(tu.ID(chatID), messageID, text)
	params.ParseMode = telego.ModeHTML
	if _, err := c.bot.EditMessageText(ctx, params); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// SendTyping shows the "typing…" chat action.
func (c *Client) SendTyping(ctx context.Context, chatID int64) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if err := c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil {
		return fmt.Errorf("send chat action: %w", err)
	}
	return nil
}

// GetChatMemberStatus returns the member status ("creator", "administrator",
// "member", …) of userID in chatID.
func (c *Client) GetChatMemberStatus(ctx context.Context, chatID, userID int64) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	member, err := c.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(chatID),
		UserID: userID,
	})
	if err != nil {
		return "", fmt.Errorf("get chat member: %w", err)
	}
	return member.MemberStatus(), nil
}

// SetWebhook registers url as the bot's webhook. A non-empty secret is
// echoed back by Telegram in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	params := &telego.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: []string{"message"},
	}
	if err := c.bot.SetWebhook(ctx, params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}
