package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"xrepost/internal/config"
	"xrepost/internal/logging"
	"xrepost/pkg/pipeline"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "xrepost",
	Short:        "Monitor X accounts and keywords and repost translated tweets",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.Load(config.ResolvePath(configPath))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger = logging.New(level, cfg.Logging.Format)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("xrepost", version)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("database is up to date")
		return nil
	},
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a single collection pass over all accounts and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		sig := pipeline.NewSignal()
		go func() {
			<-ctx.Done()
			sig.Set()
		}()

		fleet := pipeline.NewFleet(context.WithoutCancel(ctx), a.deps, a.opts)
		res, err := fleet.Tick(context.WithoutCancel(ctx), sig)
		fmt.Printf("Run %s over %d accounts\n", res.RunID, res.Accounts)
		fmt.Printf("  Fetched: %d\n", res.Fetched)
		fmt.Printf("  Duplicates: %d\n", res.Duplicates)
		fmt.Printf("  Untranslated: %d\n", res.Untranslated)
		fmt.Printf("  Staged: %d\n", res.Staged)
		fmt.Printf("  Published: %d\n", res.Published)
		fmt.Printf("  Failed: %d\n", res.Failed)
		fmt.Printf("  Expired: %d\n", res.Expired)
		return err
	},
}
