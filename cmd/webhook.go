package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/modbot/internal/config"
	"github.com/nextlevelbuilder/modbot/internal/telegram"
)

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}
	cmd.AddCommand(webhookSetCmd())
	cmd.AddCommand(webhookInfoCmd())
	cmd.AddCommand(webhookDeleteCmd())
	return cmd
}

func loadBotClient() (*config.Config, *telegram.Client, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Telegram.Token == "" {
		return nil, nil, fmt.Errorf("MODBOT_TELEGRAM_TOKEN environment variable is not set")
	}
	client, err := telegram.NewClient(cfg.Telegram)
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}

func webhookSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <public-base-url>",
		Short: "Point Telegram at <public-base-url><webhook_path>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := loadBotClient()
			if err != nil {
				return err
			}
			url := strings.TrimRight(args[0], "/") + cfg.Gateway.WebhookPath

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := client.SetWebhook(ctx, url, cfg.Telegram.WebhookSecret); err != nil {
				return err
			}
			fmt.Printf("webhook set: %s (secret: %v)\n", url, cfg.Telegram.WebhookSecret != "")
			return nil
		},
	}
}

func webhookInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the current webhook registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := loadBotClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			info, err := client.Bot().GetWebhookInfo(ctx)
			if err != nil {
				return fmt.Errorf("get webhook info: %w", err)
			}
			fmt.Printf("url:      %s\n", info.URL)
			fmt.Printf("pending:  %d\n", info.PendingUpdateCount)
			if info.LastErrorMessage != "" {
				fmt.Printf("error:    %s (at %s)\n", info.LastErrorMessage, time.Unix(info.LastErrorDate, 0).Format(time.RFC3339))
			}
			return nil
		},
	}
}

func webhookDeleteCmd() *cobra.Command {
	var dropPending bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := loadBotClient()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := client.Bot().DeleteWebhook(ctx, &telego.DeleteWebhookParams{DropPendingUpdates: dropPending}); err != nil {
				return fmt.Errorf("delete webhook: %w", err)
			}
			fmt.Println("webhook deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dropPending, "drop-pending", false, "discard updates queued while no webhook was set")
	return cmd
}
