package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/modbot/internal/telegram"
)

const (
	maxBodyBytes = 1 << 20

	secretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// Handler is the HTTP endpoint Telegram posts updates to. Every update is
// acknowledged with 200 OK so Telegram never redelivers it.
type Handler struct {
	dispatcher *Dispatcher
	secret     string
	timeout    time.Duration
}

// NewHandler creates a Handler. An empty secret disables the header check.
func NewHandler(d *Dispatcher, secret string, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Handler{dispatcher: d, secret: secret, timeout: timeout}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer ack(w)

	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(h.secret)) != 1 {
		slog.Warn("webhook: secret token mismatch", "remote", r.RemoteAddr)
		return
	}

	var update telego.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&update); err != nil {
		slog.Warn("webhook: invalid payload", "error", err)
		return
	}

	m, ok := telegram.FromUpdate(update)
	if !ok {
		return
	}

	// Telegram may drop the connection before the reply is out; finish anyway.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()
	h.dispatcher.Dispatch(ctx, m)
}

func ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
