package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"UCGInformation/internal/app"
	"UCGInformation/internal/config"
	"UCGInformation/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ucginformation",
		Short:         "Relay UCG news and timeline posts to chat channels",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return start(cmd.Context(), false)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the polling loop and command listener until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return start(cmd.Context(), false)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Run a single relay cycle and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return start(cmd.Context(), true)
		},
	})

	return root
}

func start(parent context.Context, once bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal in container deployments.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	if once {
		err = application.RunOnce(ctx)
	} else {
		err = application.Run(ctx)
	}
	if err != nil {
		logger.Error("application stopped", "error", err)
	}
	return err
}
