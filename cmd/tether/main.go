package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tether/internal/client"
	"tether/internal/config"
	"tether/internal/datadir"
	"tether/internal/link"
	"tether/internal/logging"
	"tether/internal/maintenance"
	"tether/internal/sessions"
	"tether/internal/tui"
	"tether/internal/version"
)

var (
	cfgFile    string
	runtimeURL string
	model      string
)

// rootCmd starts the chat shell when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "Tether - chat shell for the local agent runtime",
	Long: `Tether is the desktop companion for an agent runtime that assists with
game projects. It keeps a persistent connection to the runtime, streams
assistant turns into a terminal chat view, and manages conversation sessions.`,
	Version: version.Full(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the chat shell",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the runtime and report editor readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("tether %s\n", version.Full())
		info := version.GetBuildInfo()
		if info.GitCommit != "unknown" {
			fmt.Printf("Git commit: %s\n", info.GitCommit)
		}
		if info.BuildDate != "unknown" {
			fmt.Printf("Build date: %s\n", info.BuildDate)
		}
		fmt.Printf("Go version: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: <data dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&runtimeURL, "url", "", "override the runtime websocket URL")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "override the runtime's default model")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the config file path and loads it.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		var err error
		path, err = datadir.FilePath("", "config.yaml")
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if runtimeURL != "" {
		cfg.RuntimeURL = runtimeURL
	}
	return cfg, nil
}

// startClient builds the client and drives it until ctx is done, blocking
// until the first handshake completes or the wait times out. A timeout is
// not fatal; the client keeps reconnecting in the background.
func startClient(ctx context.Context, cfg *config.Config, log *zap.Logger, store *sessions.Store) *client.Client {
	c := client.New(client.Options{
		URL:              cfg.RuntimeURL,
		ReconnectDelay:   cfg.Client.ReconnectDelay.Std(),
		CallTimeout:      cfg.Client.CallTimeout.Std(),
		HandshakeTimeout: cfg.Client.HandshakeTimeout.Std(),
		EventBuffer:      cfg.Client.EventBuffer,
		AppVersion:       version.Info(),
		Store:            store,
		Logger:           log,
	})
	go c.Run(ctx)
	return c
}

// waitOpen blocks until the link is open or the deadline passes.
func waitOpen(c *client.Client, d time.Duration) error {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if c.State() == link.StateOpen {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("runtime not reachable: still %s after %s", c.State(), d)
}

// openStore opens the durable client state database inside the data dir.
func openStore(cfg *config.Config) (*sessions.Store, error) {
	path, err := datadir.FilePath(cfg.DataDir, "state.db")
	if err != nil {
		return nil, err
	}
	return sessions.OpenStore(path)
}

func runChat() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file.
	logPath, err := datadir.FilePath(cfg.DataDir, "tether.log")
	if err != nil {
		return err
	}
	log, err := logging.NewFile(cfg.Logging, logPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if cfg.Maintenance.PruneSchedule != "" {
		pruner := maintenance.NewScheduler(store, cfg.Maintenance.SnapshotMaxAge.Std(), log)
		if err := pruner.Start(cfg.Maintenance.PruneSchedule); err != nil {
			log.Warn("failed to start snapshot pruner", zap.Error(err))
		} else {
			defer pruner.Stop()
		}
	}

	c := startClient(ctx, cfg, log, store)
	return tui.Run(c, model)
}

func runStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	c := startClient(ctx, cfg, log, nil)
	if err := waitOpen(c, 10*time.Second); err != nil {
		return err
	}

	status, err := c.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("runtime:  connected (%s)\n", cfg.RuntimeURL)
	if status.EditorConnected {
		if status.Project != nil {
			fmt.Printf("editor:   attached to %s (engine %s)\n", status.Project.Name, status.Project.EngineVersion)
		} else {
			fmt.Println("editor:   attached")
		}
	} else {
		fmt.Println("editor:   detached")
	}
	if status.TotalTokens > 0 {
		fmt.Printf("tokens:   %d\n", status.TotalTokens)
	}
	return nil
}
