package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/modbot/internal/config"
	"github.com/nextlevelbuilder/modbot/internal/store/pg"
	"github.com/nextlevelbuilder/modbot/internal/store/sqlite"
	"github.com/nextlevelbuilder/modbot/internal/telegram"
	"github.com/nextlevelbuilder/modbot/internal/upgrade"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, database and Bot API connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("modbot doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config:   INVALID (%s)\n", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Println()
	fmt.Println("  Database:")
	checkDatabase(ctx, cfg)

	fmt.Println()
	fmt.Println("  Provider:")
	fmt.Printf("    %-12s %s (%s)\n", "Name:", cfg.Provider.Name, cfg.Provider.APIBase)
	fmt.Printf("    %-12s %s\n", "API key:", maskKey(cfg.Provider.APIKey))
	fmt.Printf("    %-12s %s\n", "Model:", cfg.Provider.DefaultModel)
	if cfg.Features.Router {
		fmt.Printf("    %-12s %s\n", "Routed to:", cfg.Provider.FastModel)
	}

	fmt.Println()
	fmt.Println("  Telegram:")
	fmt.Printf("    %-12s @%s\n", "Bot:", cfg.Telegram.BotUsername)
	fmt.Printf("    %-12s %s\n", "Token:", maskKey(cfg.Telegram.Token))
	if cfg.Telegram.WebhookSecret == "" {
		fmt.Printf("    %-12s (not set, webhook accepts unsigned updates)\n", "Secret:")
	} else {
		fmt.Printf("    %-12s set\n", "Secret:")
	}
	if cfg.Telegram.Token != "" {
		checkBotAPI(ctx, cfg)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkDatabase(ctx context.Context, cfg *config.Config) {
	if !cfg.Database.IsPostgres() {
		path := config.ExpandHome(cfg.Database.SQLitePath)
		fmt.Printf("    %-12s sqlite (%s)\n", "Mode:", path)
		db, err := sqlite.Open(path)
		if err != nil {
			fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Status:", err)
			return
		}
		defer db.Close()
		v, err := sqlite.GetUserVersion(db)
		if err != nil {
			fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
			return
		}
		fmt.Printf("    %-12s v%d\n", "Schema:", v)
		return
	}

	fmt.Printf("    %-12s postgres\n", "Mode:")
	db, err := pg.OpenDB(cfg.Database.PostgresDSN)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(ctx, db)
	switch {
	case err != nil:
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
	case s.Dirty:
		fmt.Printf("    %-12s v%d (DIRTY, run: modbot migrate force %d)\n", "Schema:", s.CurrentVersion, s.CurrentVersion-1)
	case s.Compatible:
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Printf("    %-12s v%d (binary too old, requires v%d)\n", "Schema:", s.CurrentVersion, s.RequiredVersion)
	default:
		fmt.Printf("    %-12s v%d (migration needed, run: modbot migrate up)\n", "Schema:", s.CurrentVersion)
	}
}

func checkBotAPI(ctx context.Context, cfg *config.Config) {
	client, err := telegram.NewClient(cfg.Telegram)
	if err != nil {
		fmt.Printf("    %-12s INVALID (%s)\n", "Bot API:", err)
		return
	}
	me, err := client.Bot().GetMe(ctx)
	if err != nil {
		fmt.Printf("    %-12s UNREACHABLE (%s)\n", "Bot API:", err)
		return
	}
	fmt.Printf("    %-12s OK (@%s)\n", "Bot API:", me.Username)
	if !strings.EqualFold(me.Username, cfg.Telegram.BotUsername) {
		fmt.Printf("    %-12s bot_username %q does not match the token's bot @%s\n", "WARNING:", cfg.Telegram.BotUsername, me.Username)
	}

	info, err := client.Bot().GetWebhookInfo(ctx)
	if err != nil {
		return
	}
	if info.URL == "" {
		fmt.Printf("    %-12s (not registered, run: modbot webhook set <url>)\n", "Webhook:")
	} else {
		fmt.Printf("    %-12s %s (%d pending)\n", "Webhook:", info.URL, info.PendingUpdateCount)
	}
}

// maskKey shows only the edges of a secret.
func maskKey(key string) string {
	switch {
	case key == "":
		return "(not configured)"
	case len(key) <= 8:
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
