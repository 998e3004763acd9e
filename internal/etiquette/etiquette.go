// Package etiquette gates how often the bot may speak in a chat.
package etiquette

import (
	"time"

	"github.com/nextlevelbuilder/modbot/internal/cache"
)

// Defaults for the per-chat pacing rules.
const (
	DefaultMinInterval     = 3000 * time.Millisecond
	DefaultHumanDefer      = 5000 * time.Millisecond
	DefaultWindow          = 60 * time.Second
	DefaultMaxPerWindow    = 8
	DefaultMaxTrackedChats = 4096
	DefaultReserveTimeout  = 2 * time.Minute
)

// Options tunes a Controller. Zero fields take the defaults.
type Options struct {
	MinInterval     time.Duration // priority messages use half of this
	HumanDefer      time.Duration
	Window          time.Duration
	MaxPerWindow    int
	MaxTrackedChats int
	ReserveTimeout  time.Duration // how long an unreleased Reserve blocks the chat
}

type chatState struct {
	lastResponse time.Time
	windowStart  time.Time
	count        int
	lastHuman    time.Time
	reservedAt   time.Time
}

// Controller tracks per-chat reply history. Safe for concurrent use;
// each read-modify-write on a chat happens under the state store's lock.
type Controller struct {
	opts  Options
	state *cache.LRU[int64, chatState]
	now   func() time.Time
}

// New creates a Controller. Idle chat state is dropped after the longest
// rule horizon has passed, and at most MaxTrackedChats chats are tracked.
func New(opts Options) *Controller {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.HumanDefer <= 0 {
		opts.HumanDefer = DefaultHumanDefer
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MaxPerWindow <= 0 {
		opts.MaxPerWindow = DefaultMaxPerWindow
	}
	if opts.MaxTrackedChats <= 0 {
		opts.MaxTrackedChats = DefaultMaxTrackedChats
	}
	if opts.ReserveTimeout <= 0 {
		opts.ReserveTimeout = DefaultReserveTimeout
	}
	idle := max(opts.Window, opts.HumanDefer, opts.MinInterval, opts.ReserveTimeout)
	return &Controller{
		opts:  opts,
		state: cache.New[int64, chatState](opts.MaxTrackedChats, idle),
		now:   time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	c.state.WithClock(now)
	return c
}

// CanRespond reports whether a reply may be sent to chatID now.
func (c *Controller) CanRespond(chatID int64, priority bool) bool {
	st, ok := c.state.Get(chatID)
	if !ok {
		return true
	}
	return c.allows(st, c.now(), priority)
}

// Reserve is CanRespond plus a claim on the chat, taken atomically: while
// the claim is held no other Reserve for chatID succeeds. The claim ends
// with RecordResponse, Release, or after ReserveTimeout.
func (c *Controller) Reserve(chatID int64, priority bool) bool {
	granted := false
	c.state.Update(chatID, func(st chatState, _ bool) chatState {
		now := c.now()
		if !st.reservedAt.IsZero() && now.Sub(st.reservedAt) < c.opts.ReserveTimeout {
			return st
		}
		if !c.allows(st, now, priority) {
			return st
		}
		granted = true
		st.reservedAt = now
		return st
	})
	return granted
}

// Release drops a claim taken by Reserve without counting a reply.
func (c *Controller) Release(chatID int64) {
	c.state.Update(chatID, func(st chatState, _ bool) chatState {
		st.reservedAt = time.Time{}
		return st
	})
}

func (c *Controller) allows(st chatState, now time.Time, priority bool) bool {
	interval := c.opts.MinInterval
	if priority {
		interval /= 2
	}
	if !st.lastResponse.IsZero() && now.Sub(st.lastResponse) < interval {
		return false
	}

	if !priority && !st.lastHuman.IsZero() && now.Sub(st.lastHuman) < c.opts.HumanDefer {
		return false
	}

	if !st.windowStart.IsZero() && now.Sub(st.windowStart) < c.opts.Window && st.count >= c.opts.MaxPerWindow {
		return false
	}
	return true
}

// RecordResponse notes a sent reply. Call exactly once per delivered reply.
func (c *Controller) RecordResponse(chatID int64) {
	c.state.Update(chatID, func(st chatState, _ bool) chatState {
		now := monotonic(c.now(), st.lastResponse)
		if st.windowStart.IsZero() || now.Sub(st.windowStart) >= c.opts.Window {
			st.windowStart = now
			st.count = 0
		}
		st.count++
		st.lastResponse = now
		st.reservedAt = time.Time{}
		return st
	})
}

// RecordHumanResponse notes a message from a human participant.
func (c *Controller) RecordHumanResponse(chatID int64) {
	c.state.Update(chatID, func(st chatState, _ bool) chatState {
		st.lastHuman = monotonic(c.now(), st.lastHuman)
		return st
	})
}

// monotonic never lets a recorded timestamp move backwards.
func monotonic(now, prev time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}
