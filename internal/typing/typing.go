// Package typing keeps a "typing…" chat action alive while a reply is generated.
package typing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Defaults for the keepalive loop. Telegram clears the typing action after
// about five seconds, so the keepalive fires a little sooner.
const (
	DefaultInterval    = 4 * time.Second
	DefaultMaxDuration = 2 * time.Minute
)

// Sender signals the composing state to a chat.
type Sender interface {
	SendTyping(ctx context.Context, chatID int64) error
}

// Options tunes an Indicator. Zero fields take the defaults.
type Options struct {
	Interval    time.Duration
	MaxDuration time.Duration // safety net: the loop stops itself after this long
}

// Indicator drives one typing keepalive for one in-flight generation.
// Stop is idempotent and safe to call without a prior Start.
type Indicator struct {
	sender Sender
	opts   Options

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates an idle Indicator.
func New(sender Sender, opts Options) *Indicator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	return &Indicator{sender: sender, opts: opts}
}

// Start sends the typing action immediately, then repeats it every interval
// until Stop is called, ctx is cancelled, or MaxDuration elapses.
// Calling Start on a running Indicator is a no-op.
func (i *Indicator) Start(ctx context.Context, chatID int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return
	}
	i.started = true

	loopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.opts.MaxDuration)
	i.cancel = cancel
	i.done = make(chan struct{})

	i.send(loopCtx, chatID)
	go i.loop(loopCtx, ctx.Done(), chatID)
}

func (i *Indicator) loop(ctx context.Context, parentDone <-chan struct{}, chatID int64) {
	defer close(i.done)
	ticker := time.NewTicker(i.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-parentDone:
			return
		case <-ticker.C:
			i.send(ctx, chatID)
		}
	}
}

func (i *Indicator) send(ctx context.Context, chatID int64) {
	if err := i.sender.SendTyping(ctx, chatID); err != nil && ctx.Err() == nil {
		slog.Debug("typing action failed", "chat_id", chatID, "error", err)
	}
}

// Stop halts the keepalive and waits for the loop to exit, so no typing
// action is sent after Stop returns.
func (i *Indicator) Stop() {
	i.mu.Lock()
	cancel, done := i.cancel, i.done
	i.cancel = nil
	i.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
