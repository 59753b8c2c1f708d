package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tether/internal/client"
	"tether/internal/logging"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, c *client.Client) error {
			list, err := c.Sessions().Refresh(ctx)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			active := c.Sessions().ActiveID()
			for _, s := range list {
				marker := " "
				if s.ID == active {
					marker = "*"
				}
				title := s.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%s %-36s  %-40s  %d msgs  %d tokens\n",
					marker, s.ID, title, s.MessageCount, s.TotalTokens)
			}
			return nil
		})
	},
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Create a session and make it active",
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args, " ")
		return withSession(func(ctx context.Context, c *client.Client) error {
			created, err := c.Sessions().Create(ctx, title)
			if err != nil {
				return err
			}
			fmt.Printf("created %s\n", created.ID)
			return nil
		})
	},
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		title := strings.Join(args[1:], " ")
		return withSession(func(ctx context.Context, c *client.Client) error {
			renamed, err := c.Sessions().Rename(ctx, id, title)
			if err != nil {
				return err
			}
			fmt.Printf("renamed %s to %q\n", renamed.ID, renamed.Title)
			return nil
		})
	},
}

var sessionsRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, c *client.Client) error {
			if err := c.Sessions().Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			if active := c.Sessions().ActiveID(); active != "" {
				fmt.Printf("active session is now %s\n", active)
			} else {
				fmt.Println("no active session")
			}
			return nil
		})
	},
}

var sessionsHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Print a session's message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, c *client.Client) error {
			history, err := c.Sessions().History(ctx, args[0])
			if err != nil {
				return err
			}
			for _, msg := range history {
				fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
			}
			return nil
		})
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsRenameCmd)
	sessionsCmd.AddCommand(sessionsRemoveCmd)
	sessionsCmd.AddCommand(sessionsHistoryCmd)
}

// withSession connects, waits for the handshake, runs fn, and tears down.
func withSession(fn func(ctx context.Context, c *client.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := startClient(ctx, cfg, log, store)
	if err := waitOpen(c, 10*time.Second); err != nil {
		return err
	}
	return fn(ctx, c)
}
