package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/dlps55195/x-bot-worker/internal/config"
	"github.com/dlps55195/x-bot-worker/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	envFile    string
	verbose    bool

	// cfg is built once in PersistentPreRunE and passed down from there.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "xbot",
	Short: "List-reply worker for X",
	Long: `xbot visits the target lists of every active profile, finds top-level
posts it has not replied to in the last 24 hours, generates a short reply
and submits it through a real browser session.

Run "xbot run" for one pass.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile); err != nil {
			return err
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if err := logging.Initialize(logging.Options{Level: loaded.Logging.Level, Format: loaded.Logging.Format}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		logging.Get(logging.CategoryBoot).Debug("configuration loaded",
			zap.String("config", configPath),
			zap.String("profiles", cfg.Profiles.Source),
			zap.String("seen", cfg.Seen.Backend))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// loadEnvFile reads KEY=VALUE pairs into the environment. A missing file is
// not an error; variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "xbot.yaml", "Config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	profilesCmd.AddCommand(profilesImportCmd)
	seenCmd.AddCommand(seenListCmd)
	seenCmd.AddCommand(seenPruneCmd)
	seenCmd.AddCommand(seenImportCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(seenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
