// Package main is the entry point of the chatrelay delivery engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chatrelay",
		Short:         "Outbound message queue, dispatcher and webhook ingestion for a chat gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the configuration file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(configPath, func(cfg *config.Config, logger *zap.Logger) error {
				return run(cmd.Context(), cfg, logger)
			})
		},
	}

	root.AddCommand(serve)
	root.RunE = serve.RunE
	return root
}

// withRuntime builds the logger and loads the configuration for a command.
func withRuntime(configPath string, fn func(cfg *config.Config, logger *zap.Logger) error) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return err
	}

	return fn(cfg, logger)
}
