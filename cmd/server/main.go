package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atmx/fund-ledger/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cfg := new(config.Config)

	root := &cobra.Command{
		Use:           "fund-ledger",
		Short:         "Ledger for pooled funds, share trades and outcome markets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			*cfg = *loaded
			setupLogger(cfg.LogLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("FUNDLEDGER_CONFIG"),
		"path to a TOML config file (defaults plus environment when empty)")

	root.AddCommand(
		newServeCmd(cfg),
		newMigrateCmd(cfg),
		newAuditCmd(cfg),
		newSnapshotCmd(cfg),
	)
	return root
}

func setupLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}
