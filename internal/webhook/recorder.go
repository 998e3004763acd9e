package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/modbot/internal/store"
	"github.com/nextlevelbuilder/modbot/internal/telegram"
)

// Recorder persists observed messages off the reply path. Failures go to an
// error channel that only feeds logging.
type Recorder struct {
	stores  *store.Stores
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	errs   chan error
	done   chan struct{}

	// onError receives every persistence failure on the logging goroutine.
	onError func(error)
}

// NewRecorder starts the error-logging loop. Call Close to drain.
func NewRecorder(stores *store.Stores, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &Recorder{
		stores:  stores,
		timeout: timeout,
		errs:    make(chan error, 64),
		done:    make(chan struct{}),
		onError: func(err error) { slog.Error("background storage error", "error", err) },
	}
	go r.logErrors()
	return r
}

func (r *Recorder) logErrors() {
	defer close(r.done)
	for err := range r.errs {
		r.onError(err)
	}
}

// Record stores m (and the bot's answer, when it replied) in the background.
// It never blocks on storage.
func (r *Recorder) Record(m *telegram.InboundMessage, botResponse *string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		slog.Warn("recorder closed, dropping message", "chat_id", m.ChatID, "message_id", m.MessageID)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.persist(ctx, m, botResponse); err != nil {
			select {
			case r.errs <- err:
			default:
				slog.Error("background storage error (log queue full)", "error", err)
			}
		}
	}()
}

func (r *Recorder) persist(ctx context.Context, m *telegram.InboundMessage, botResponse *string) error {
	group, err := r.stores.Groups.UpsertGroup(ctx, m.ChatID, m.ChatTitle, m.ChatType)
	if err != nil {
		return fmt.Errorf("chat %d: %w", m.ChatID, err)
	}
	if m.UserID != 0 {
		if _, err := r.stores.Profiles.UpsertProfile(ctx, &store.Profile{
			TelegramUserID: m.UserID,
			Username:       m.Username,
			FirstName:      m.FirstName,
			LastName:       m.LastName,
		}); err != nil {
			return fmt.Errorf("user %d: %w", m.UserID, err)
		}
	}

	rec := &store.ConversationMessage{
		GroupID:           group.ID,
		TelegramMessageID: m.MessageID,
		TelegramUserID:    m.UserID,
		Username:          m.Username,
		MessageText:       m.Text,
		BotResponse:       botResponse,
	}
	if botResponse != nil {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	if err := r.stores.Messages.InsertMessage(ctx, rec); err != nil {
		return fmt.Errorf("chat %d message %d: %w", m.ChatID, m.MessageID, err)
	}
	return nil
}

// Close stops accepting work and waits for in-flight writes, up to ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		close(r.errs)
		<-r.done
		return nil
	case <-ctx.Done():
		return fmt.Errorf("recorder drain: %w", ctx.Err())
	}
}
