package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"voiceguard/internal/daemon"
	"voiceguard/internal/logging"
	"voiceguard/internal/settings"
)

func newConsoleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run the service in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(ctx, false)
		},
	}
}

func newDebugCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Run the service in the foreground with debug logging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(ctx, true)
		},
	}
}

func runService(cmdCtx *commandContext, debug bool) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if debug || (cmdCtx.debugFlag != nil && *cmdCtx.debugFlag) {
		level = "debug"
	}
	logger, err := logging.NewForProcess(cfg.Paths.LogDir, "voiceguardd", level, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := settings.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}

	sigCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.SeedDefaults(sigCtx); err != nil {
		_ = store.Close()
		return fmt.Errorf("seed settings defaults: %w", err)
	}

	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer d.Close()

	if err := d.Start(sigCtx); err != nil {
		return err
	}
	<-sigCtx.Done()
	d.Stop()
	return nil
}
