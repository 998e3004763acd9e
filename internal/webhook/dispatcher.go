// Package webhook receives Telegram updates and runs the reply pipeline:
// classify, gate, generate, deliver, persist.
package webhook

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/modbot/internal/classify"
	"github.com/nextlevelbuilder/modbot/internal/etiquette"
	"github.com/nextlevelbuilder/modbot/internal/reply"
	"github.com/nextlevelbuilder/modbot/internal/store"
	"github.com/nextlevelbuilder/modbot/internal/telegram"
)

// PlaceholderText is sent ahead of replies expected to be slow.
const PlaceholderText = "🤔 Analyzing your question..."

// Replier produces the answer for a qualifying message.
type Replier interface {
	Generate(ctx context.Context, req reply.Request) string
}

// CommandHandler handles the account-linking commands.
type CommandHandler interface {
	HandleStart(ctx context.Context, m *telegram.InboundMessage) error
	HandleSettings(ctx context.Context, m *telegram.InboundMessage) error
}

// Indicator is a per-request typing heartbeat.
type Indicator interface {
	Start(ctx context.Context, chatID int64)
	Stop()
}

// Options tunes a Dispatcher.
type Options struct {
	ComplexityThreshold int
	DebugMetrics        bool
	ReplyToMessage      bool // thread answers under the triggering message
}

// Deps are the Dispatcher's collaborators.
type Deps struct {
	Classifier *classify.Classifier
	Etiquette  *etiquette.Controller
	Replier    Replier
	Commands   CommandHandler
	Messenger  telegram.Messenger
	Stores     *store.Stores
	Recorder   *Recorder
	NewTyping  func() Indicator
}

// Dispatcher runs one inbound message through the pipeline. Safe for
// concurrent use; per-chat state lives in the etiquette controller.
type Dispatcher struct {
	Deps
	opts   Options
	tracer trace.Tracer
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps Deps, opts Options) *Dispatcher {
	if opts.ComplexityThreshold <= 0 {
		opts.ComplexityThreshold = 1500
	}
	return &Dispatcher{
		Deps:   deps,
		opts:   opts,
		tracer: otel.Tracer("github.com/nextlevelbuilder/modbot/internal/webhook"),
	}
}

// Dispatch handles m. Errors are logged, never returned: the caller always
// acknowledges the update.
func (d *Dispatcher) Dispatch(ctx context.Context, m *telegram.InboundMessage) {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "webhook.dispatch",
		trace.WithAttributes(attribute.Int64("chat_id", m.ChatID), attribute.Int("message_id", m.MessageID)))
	defer span.End()

	if classify.IsStartCommand(m.Text) {
		if err := d.Commands.HandleStart(ctx, m); err != nil {
			slog.Error("start command failed", "chat_id", m.ChatID, "error", err)
		}
		return
	}

	result := d.Classifier.Classify(m.Text)
	span.SetAttributes(attribute.String("reason", string(result.Reason)), attribute.Bool("priority", result.IsPriority))

	// Reserve holds the chat until this reply is recorded, so concurrent
	// mentions cannot both pass the gate.
	allowed := result.ShouldRespond && d.Etiquette.Reserve(m.ChatID, result.IsPriority)
	if !m.IsBot {
		d.Etiquette.RecordHumanResponse(m.ChatID)
	}

	if !result.ShouldRespond {
		d.Recorder.Record(m, nil)
		return
	}
	if !allowed {
		if d.opts.DebugMetrics {
			slog.Info("rate limited, skipping reply", "chat_id", m.ChatID, "priority", result.IsPriority)
		}
		d.Recorder.Record(m, nil)
		return
	}
	defer d.Etiquette.Release(m.ChatID)

	typing := d.NewTyping()
	typing.Start(ctx, m.ChatID)
	defer typing.Stop()

	if d.opts.DebugMetrics {
		slog.Info("reply triggered", "chat_id", m.ChatID, "reason", result.Reason, "elapsed_ms", time.Since(start).Milliseconds())
	}

	if d.Classifier.IsSettingsCommand(m.Text) {
		typing.Stop()
		d.Etiquette.RecordResponse(m.ChatID)
		if err := d.Commands.HandleSettings(ctx, m); err != nil {
			slog.Error("settings command failed", "chat_id", m.ChatID, "error", err)
		}
		return
	}

	group, err := d.ensureParticipants(ctx, m)
	if err != nil {
		typing.Stop()
		slog.Error("processing message failed", "chat_id", m.ChatID, "error", err)
		d.send(ctx, m, reply.FallbackReply)
		return
	}

	clean := d.Classifier.StripMentions(m.Text)
	if clean == "" && result.IsPriority {
		typing.Stop()
		d.Etiquette.RecordResponse(m.ChatID)
		help := helpText(d.Classifier.Username())
		d.send(ctx, m, help)
		d.Recorder.Record(m, &help)
		return
	}

	placeholderID := 0
	if classify.ComplexityScore(clean) > d.opts.ComplexityThreshold {
		id, err := d.Messenger.SendMessage(ctx, telegram.OutgoingMessage{ChatID: m.ChatID, Text: PlaceholderText})
		if err != nil {
			slog.Warn("send placeholder failed", "chat_id", m.ChatID, "error", err)
		} else {
			placeholderID = id
		}
	}

	aiStart := time.Now()
	answer := d.generate(ctx, typing, reply.Request{GroupID: group.ID, Text: clean, ChatID: m.ChatID, Typing: typing})
	aiDur := time.Since(aiStart)

	d.Etiquette.RecordResponse(m.ChatID)

	out := telegram.Reply{ChatID: m.ChatID, PlaceholderID: placeholderID, Markdown: answer}
	if d.opts.ReplyToMessage {
		out.ReplyTo = m.MessageID
	}
	if err := telegram.Deliver(ctx, d.Messenger, out); err != nil {
		slog.Error("deliver reply failed", "chat_id", m.ChatID, "error", err)
	}
	d.Recorder.Record(m, &answer)

	if d.opts.DebugMetrics {
		slog.Info("request completed",
			"chat_id", m.ChatID,
			"total_ms", time.Since(start).Milliseconds(),
			"ai_ms", aiDur.Milliseconds(),
			"placeholder", placeholderID != 0,
		)
	}
}

// generate runs the replier and stops typing on every exit, panics included.
func (d *Dispatcher) generate(ctx context.Context, typing Indicator, req reply.Request) (answer string) {
	defer typing.Stop()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("reply generation panicked", "chat_id", req.ChatID, "panic", r)
			answer = reply.FallbackReply
		}
	}()
	return d.Replier.Generate(ctx, req)
}

// ensureParticipants upserts the group and the sender concurrently.
func (d *Dispatcher) ensureParticipants(ctx context.Context, m *telegram.InboundMessage) (*store.Group, error) {
	var group *store.Group
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g, err := d.Stores.Groups.UpsertGroup(egCtx, m.ChatID, m.ChatTitle, m.ChatType)
		group = g
		return err
	})
	eg.Go(func() error {
		_, err := d.Stores.Profiles.UpsertProfile(egCtx, &store.Profile{
			TelegramUserID: m.UserID,
			Username:       m.Username,
			FirstName:      m.FirstName,
			LastName:       m.LastName,
		})
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return group, nil
}

// send delivers a fixed HTML message, logging failures.
func (d *Dispatcher) send(ctx context.Context, m *telegram.InboundMessage, html string) {
	if _, err := d.Messenger.SendMessage(ctx, telegram.OutgoingMessage{ChatID: m.ChatID, Text: html}); err != nil {
		slog.Error("send message failed", "chat_id", m.ChatID, "error", err)
	}
}

func helpText(bot string) string {
	return "🤖 <b>How can I help?</b>\n\n" +
		"I can now answer questions automatically! Ask me anything about our project, " +
		"or I'll jump in when I see questions or mentions of admin/dev/mod topics.\n\n" +
		"Use /settings@" + bot + " to configure my knowledge base."
}
