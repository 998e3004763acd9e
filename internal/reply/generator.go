// Package reply turns a qualifying group message into the bot's answer.
package reply

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/modbot/internal/classify"
	"github.com/nextlevelbuilder/modbot/internal/contextcache"
	"github.com/nextlevelbuilder/modbot/internal/providers"
	"github.com/nextlevelbuilder/modbot/internal/routing"
	"github.com/nextlevelbuilder/modbot/internal/store"
)

// Canned answers.
const (
	GreetingReply = "Hello! How can I help you with our project today?"
	FallbackReply = "Sorry, I encountered an error. Please try again later."
)

// DataSource is the persistence call a reply needs.
type DataSource interface {
	FetchReplyData(ctx context.Context, groupID string, messageLimit int) (*store.ReplyData, error)
}

// TypingIndicator is the composing heartbeat driven during streaming.
type TypingIndicator interface {
	Start(ctx context.Context, chatID int64)
	Stop()
}

// Options tunes a Generator.
type Options struct {
	BotUsername  string
	Temperature  float64
	HistoryLimit int
	Streaming    bool
	DebugMetrics bool
}

// Request is one reply to generate.
type Request struct {
	GroupID string
	Text    string // mention-stripped user text
	ChatID  int64
	Typing  TypingIndicator // optional; enables the streaming path
}

// Generator assembles the prompt from cached or fetched group context and
// calls the completion backend. Safe for concurrent use.
type Generator struct {
	data     DataSource
	cache    *contextcache.Cache
	router   *routing.Router
	provider providers.Provider
	opts     Options
	fetches  singleflight.Group
	tracer   trace.Tracer
}

// NewGenerator wires a Generator.
func NewGenerator(data DataSource, cache *contextcache.Cache, router *routing.Router, provider providers.Provider, opts Options) *Generator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	return &Generator{
		data:     data,
		cache:    cache,
		router:   router,
		provider: provider,
		opts:     opts,
		tracer:   otel.Tracer("github.com/nextlevelbuilder/modbot/internal/reply"),
	}
}

// Generate returns the reply text. It never fails: backend errors and empty
// completions yield FallbackReply.
func (g *Generator) Generate(ctx context.Context, req Request) string {
	if classify.IsGreeting(req.Text) {
		return GreetingReply
	}

	ctx, span := g.tracer.Start(ctx, "reply.generate",
		trace.WithAttributes(attribute.String("group_id", req.GroupID), attribute.Int64("chat_id", req.ChatID)))
	defer span.End()

	start := time.Now()
	contexts, history, hit := g.replyContext(ctx, req.GroupID)
	fetchDur := time.Since(start)

	model := g.router.SelectModel(req.Text, len(contexts))
	span.SetAttributes(attribute.String("model", model), attribute.Bool("cache_hit", hit))

	chatReq := providers.ChatRequest{
		Model: model,
		Messages: []providers.Message{
			{Role: "system", Content: buildSystemPrompt(g.opts.BotUsername, contexts, history)},
			{Role: "user", Content: req.Text},
		},
		Temperature: g.opts.Temperature,
	}

	aiStart := time.Now()
	resp, err := g.complete(ctx, req, chatReq)
	aiDur := time.Since(aiStart)

	if g.opts.DebugMetrics {
		slog.Info("reply metrics",
			"group_id", req.GroupID,
			"model", model,
			"cache_hit", hit,
			"cache", g.cache.Stats(),
			"fetch_ms", fetchDur.Milliseconds(),
			"ai_ms", aiDur.Milliseconds(),
			"total_ms", time.Since(start).Milliseconds(),
		)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("reply: completion failed", "group_id", req.GroupID, "model", model, "error", err)
		return FallbackReply
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		slog.Warn("reply: empty completion", "group_id", req.GroupID, "model", model)
		return FallbackReply
	}
	return text
}

// complete picks the streaming path when enabled and a typing indicator is
// available, keeping the indicator alive until the stream is drained.
func (g *Generator) complete(ctx context.Context, req Request, chatReq providers.ChatRequest) (*providers.ChatResponse, error) {
	if g.opts.Streaming && req.Typing != nil {
		req.Typing.Start(ctx, req.ChatID)
		defer req.Typing.Stop()
		return g.provider.ChatStream(ctx, chatReq, nil)
	}
	return g.provider.Chat(ctx, chatReq)
}

// replyContext returns the rendered group context and chat history.
// A failed fetch degrades to an empty context rather than failing the reply.
func (g *Generator) replyContext(ctx context.Context, groupID string) (contexts, history string, cacheHit bool) {
	v, err, _ := g.fetches.Do(groupID, func() (any, error) {
		return g.data.FetchReplyData(ctx, groupID, g.opts.HistoryLimit)
	})
	if err != nil {
		slog.Warn("reply: fetch group data failed", "group_id", groupID, "error", err)
		return "", "", false
	}
	data, _ := v.(*store.ReplyData)
	if data == nil {
		return "", "", false
	}

	history = formatHistory(data.Messages)
	if cached, ok := g.cache.Get(groupID, data.Version); ok {
		return cached, history, true
	}
	contexts = formatContexts(data.Contexts)
	if contexts != "" {
		g.cache.Set(groupID, contexts, data.Version)
	}
	return contexts, history, false
}
