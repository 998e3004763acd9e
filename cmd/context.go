package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/modbot/internal/config"
	"github.com/nextlevelbuilder/modbot/internal/store"
)

// contextCmd manages a group's knowledge entries from the command line.
// The web setup page is the primary editor; this is for operators.
func contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage group knowledge contexts",
	}
	cmd.AddCommand(contextAddCmd())
	cmd.AddCommand(contextListCmd())
	cmd.AddCommand(contextToggleCmd("enable", true))
	cmd.AddCommand(contextToggleCmd("disable", false))
	return cmd
}

func withStores(fn func(ctx context.Context, stores *store.Stores) error) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()
	return fn(context.Background(), stores)
}

func findGroup(ctx context.Context, stores *store.Stores, chatID int64) (*store.Group, error) {
	g, err := stores.Groups.GetGroupByChatID(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("chat %d has not been seen by the bot yet", chatID)
	}
	return g, err
}

func contextAddCmd() *cobra.Command {
	var (
		chatID      int64
		title       string
		file        string
		contextType string
		priority    int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a knowledge entry to a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read content: %w", err)
			}
			return withStores(func(ctx context.Context, stores *store.Stores) error {
				g, err := findGroup(ctx, stores, chatID)
				if err != nil {
					return err
				}
				c := &store.GroupContext{
					GroupID:     g.ID,
					Title:       title,
					Content:     strings.TrimSpace(string(content)),
					ContextType: contextType,
					IsActive:    true,
					Priority:    priority,
				}
				if err := stores.Groups.AddContext(ctx, c); err != nil {
					return err
				}
				fmt.Printf("added context %s to %q\n", c.ID, g.Title)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "Telegram chat ID of the group")
	cmd.Flags().StringVar(&title, "title", "", "entry title")
	cmd.Flags().StringVar(&file, "file", "", "file holding the entry content")
	cmd.Flags().StringVar(&contextType, "type", "general", "entry type (general, faq, rules, ...)")
	cmd.Flags().IntVar(&priority, "priority", 0, "higher entries come first in the prompt")
	_ = cmd.MarkFlagRequired("chat-id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func contextListCmd() *cobra.Command {
	var chatID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a group's knowledge entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(func(ctx context.Context, stores *store.Stores) error {
				g, err := findGroup(ctx, stores, chatID)
				if err != nil {
					return err
				}
				contexts, err := stores.Groups.ListContexts(ctx, g.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%s (v%d)\n", g.Title, g.ContextsVersion)
				for _, c := range contexts {
					state := "active"
					if !c.IsActive {
						state = "inactive"
					}
					fmt.Printf("  %-36s  %-8s  %3d  %-10s  %s\n", c.ID, state, c.Priority, c.ContextType, c.Title)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "Telegram chat ID of the group")
	_ = cmd.MarkFlagRequired("chat-id")
	return cmd
}

func contextToggleCmd(name string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <context-id>",
		Short: strings.ToUpper(name[:1]) + name[1:] + " a knowledge entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(func(ctx context.Context, stores *store.Stores) error {
				if err := stores.Groups.SetContextActive(ctx, args[0], active); err != nil {
					return fmt.Errorf("%s %s: %w", name, args[0], err)
				}
				fmt.Printf("context %s %sd\n", args[0], name)
				return nil
			})
		},
	}
}
