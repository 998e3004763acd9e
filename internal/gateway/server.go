// Package gateway serves the bot's HTTP surface: the Telegram webhook and
// a health probe.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/modbot/internal/config"
)

// Server is the HTTP listener in front of the webhook handler.
type Server struct {
	cfg     config.GatewayConfig
	webhook http.Handler
	version string

	httpServer *http.Server
}

// NewServer creates a server routing cfg.WebhookPath to webhook.
func NewServer(cfg config.GatewayConfig, webhook http.Handler, version string) *Server {
	return &Server{cfg: cfg, webhook: webhook, version: version}
}

// BuildMux registers all routes.
func (s *Server) BuildMux() *http.ServeMux {
	mux := http.NewServeMux()
	path := s.cfg.WebhookPath
	if path == "" {
		path = "/telegram/webhook"
	}
	mux.Handle(path, s.webhook)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gateway starting", "addr", s.Addr(), "webhook_path", s.cfg.WebhookPath)

	go func() {
		<-ctx.Done()
		// In-flight dispatches may still be talking to the backend.
		grace := time.Duration(s.cfg.DispatchTimeout) * time.Second
		if grace <= 0 {
			grace = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("gateway shutdown", "error", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": s.version})
}
