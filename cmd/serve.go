package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/modbot/internal/classify"
	"github.com/nextlevelbuilder/modbot/internal/config"
	"github.com/nextlevelbuilder/modbot/internal/contextcache"
	"github.com/nextlevelbuilder/modbot/internal/etiquette"
	"github.com/nextlevelbuilder/modbot/internal/gateway"
	"github.com/nextlevelbuilder/modbot/internal/providers"
	"github.com/nextlevelbuilder/modbot/internal/reply"
	"github.com/nextlevelbuilder/modbot/internal/routing"
	"github.com/nextlevelbuilder/modbot/internal/setup"
	"github.com/nextlevelbuilder/modbot/internal/store"
	"github.com/nextlevelbuilder/modbot/internal/store/pg"
	"github.com/nextlevelbuilder/modbot/internal/store/sqlite"
	"github.com/nextlevelbuilder/modbot/internal/telegram"
	"github.com/nextlevelbuilder/modbot/internal/tracing"
	"github.com/nextlevelbuilder/modbot/internal/typing"
	"github.com/nextlevelbuilder/modbot/internal/upgrade"
	"github.com/nextlevelbuilder/modbot/internal/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the Telegram webhook (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	tg, err := telegram.NewClient(cfg.Telegram)
	if err != nil {
		slog.Error("failed to create telegram client", "error", err)
		os.Exit(1)
	}

	provider := providers.NewOpenAIProvider(cfg.Provider.Name, cfg.Provider.APIKey, cfg.Provider.APIBase,
		cfg.Provider.DefaultModel, time.Duration(cfg.Provider.TimeoutSeconds)*time.Second)

	router := routing.New(cfg.Features.Router, cfg.Provider.DefaultModel, routing.Fixed(cfg.Provider.FastModel))
	cache := contextcache.New(cfg.Features.Cache, cfg.Cache.TTL(), cfg.Cache.MaxEntries)
	generator := reply.NewGenerator(stores.Groups, cache, router, provider, reply.Options{
		BotUsername:  cfg.Telegram.BotUsername,
		Temperature:  cfg.Provider.Temperature,
		HistoryLimit: cfg.Provider.HistoryLimit,
		Streaming:    cfg.Features.Streaming,
		DebugMetrics: cfg.Features.DebugMetrics,
	})

	pacing := etiquette.New(etiquette.Options{
		MinInterval:     ms(cfg.Etiquette.MinIntervalMS),
		HumanDefer:      ms(cfg.Etiquette.HumanDeferMS),
		Window:          time.Duration(cfg.Etiquette.WindowSeconds) * time.Second,
		MaxPerWindow:    cfg.Etiquette.MaxPerWindow,
		MaxTrackedChats: cfg.Etiquette.MaxTrackedChats,
	})

	dispatchTimeout := time.Duration(cfg.Gateway.DispatchTimeout) * time.Second
	recorder := webhook.NewRecorder(stores, 10*time.Second)
	typingOpts := typing.Options{Interval: ms(cfg.Typing.IntervalMS), MaxDuration: dispatchTimeout}

	dispatcher := webhook.NewDispatcher(webhook.Deps{
		Classifier: classify.New(cfg.Telegram.BotUsername),
		Etiquette:  pacing,
		Replier:    generator,
		Commands:   setup.NewFlow(stores, tg, cfg.Telegram.BotUsername, cfg.Telegram.SetupBaseURL),
		Messenger:  tg,
		Stores:     stores,
		Recorder:   recorder,
		NewTyping:  func() webhook.Indicator { return typing.New(tg, typingOpts) },
	}, webhook.Options{
		ComplexityThreshold: cfg.Features.ComplexityThreshold,
		DebugMetrics:        cfg.Features.DebugMetrics,
		ReplyToMessage:      cfg.Telegram.ReplyToMessage,
	})

	if cfg.Maintenance.PurgeSchedule != "" {
		janitor, err := setup.NewJanitor(stores.Setup, cfg.Maintenance.PurgeSchedule)
		if err != nil {
			slog.Warn("setup janitor disabled", "error", err)
		} else {
			go janitor.Run(ctx)
		}
	}

	server := gateway.NewServer(cfg.Gateway, webhook.NewHandler(dispatcher, cfg.Telegram.WebhookSecret, dispatchTimeout), Version)

	slog.Info("modbot starting",
		"version", Version,
		"config", cfgPath,
		"config_hash", cfg.Hash(),
		"db", dbMode(cfg),
		"bot", cfg.Telegram.BotUsername,
		"model", cfg.Provider.DefaultModel,
		"streaming", cfg.Features.Streaming,
		"cache", cfg.Features.Cache,
		"router", cfg.Features.Router,
	)

	if err := server.Start(ctx); err != nil {
		slog.Error("gateway error", "error", err)
	}
	slog.Info("graceful shutdown initiated")

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := recorder.Close(drainCtx); err != nil {
		slog.Warn("pending message writes dropped", "error", err)
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func dbMode(cfg *config.Config) string {
	if cfg.Database.IsPostgres() {
		return "postgres"
	}
	return "sqlite"
}

// openStores picks the backend from config. Postgres must be migrated to
// the version this binary expects.
func openStores(cfg *config.Config) (*store.Stores, error) {
	if !cfg.Database.IsPostgres() {
		path := config.ExpandHome(cfg.Database.SQLitePath)
		slog.Debug("opening sqlite store", "path", path)
		return sqlite.NewStores(path)
	}
	if err := checkSchemaOrAutoUpgrade(cfg.Database.PostgresDSN); err != nil {
		return nil, err
	}
	return pg.NewPGStores(store.StoreConfig{PostgresDSN: cfg.Database.PostgresDSN})
}

func checkSchemaOrAutoUpgrade(dsn string) error {
	db, err := pg.OpenDB(dsn)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(context.Background(), db)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}
	if s.Compatible {
		slog.Info("schema check passed", "current", s.CurrentVersion, "required", s.RequiredVersion)
		return nil
	}
	if !s.NeedsMigration || os.Getenv("MODBOT_AUTO_UPGRADE") != "true" {
		return errors.New(upgrade.FormatError(s))
	}

	slog.Info("auto-upgrade: applying migrations", "from", s.CurrentVersion, "to", s.RequiredVersion)
	m, err := newMigrator(dsn)
	if err != nil {
		return fmt.Errorf("auto-upgrade: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("auto-upgrade: migrate up: %w", err)
	}
	v, _, _ := m.Version()
	slog.Info("auto-upgrade complete", "version", v)
	return nil
}
