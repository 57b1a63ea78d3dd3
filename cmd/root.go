// Package cmd holds the swapcard command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/swapcard/marketplace/internal/gateways/database"
	"github.com/swapcard/marketplace/swapcard"
	"github.com/swapcard/marketplace/swapcard/logger"
)

var (
	configPath string
	cfg        *swapcard.Config
)

var rootCmd = &cobra.Command{
	Use:           "swapcard",
	Short:         "Trading card swap marketplace",
	Version:       swapcard.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := swapcard.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Setup(os.Stdout, cfg.Log.Level, cfg.Log.Format, cfg.Log.AddSource)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to config")
}

// Execute runs the command line until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.LogError("Command failed", err)
		stop()
		os.Exit(1)
	}
}

func openDB(ctx context.Context) (*database.DB, error) {
	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
