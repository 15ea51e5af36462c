package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"voiceguard/internal/config"
	"voiceguard/internal/helper"
	"voiceguard/internal/ipc"
	"voiceguard/internal/logging"
	"voiceguard/internal/settings"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "voiceguard-helper",
		Short:         "VoiceGuard user-session listener",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(ctx, false))
	rootCmd.AddCommand(newDebugCommand(ctx))
	rootCmd.AddCommand(newTestCommand(ctx))
	rootCmd.AddCommand(newCancelCommand(ctx))

	return rootCmd
}

func newRunCommand(ctx *commandContext, debug bool) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Listen for shutdown commands and forward them to the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHelper(ctx, debug)
		},
	}
}

func newDebugCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Run the listener with debug logging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHelper(ctx, true)
		},
	}
}

func runHelper(cmdCtx *commandContext, debug bool) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	logger, err := logging.NewForProcess(cfg.Paths.LogDir, "voiceguard-helper", level, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := settings.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer store.Close()

	sigCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	session, err := helper.New(sigCtx, cfg, cmdCtx.configPath, store, logger)
	if err != nil {
		return err
	}
	return session.Run(sigCtx)
}

func newTestCommand(ctx *commandContext) *cobra.Command {
	var seconds int
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check microphone levels without arming anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			duration := time.Duration(seconds) * time.Second
			fmt.Fprintf(cmd.OutOrStdout(), "Capturing %s of audio...\n", duration)

			report, err := helper.CheckMicrophone(cmd.Context(), cfg, duration)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Frames: %d\nAverage level: %.1f dBFS\nPeak level: %.1f dBFS\nVoiced ratio: %.0f%%\n",
				report.Frames, report.AvgLevelDB, report.PeakLevelDB, report.VoicedRatio*100)
			if !report.Healthy() {
				return fmt.Errorf("microphone check failed: no usable signal")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Microphone OK")
			return nil
		},
	}
	cmd.Flags().IntVar(&seconds, "seconds", 5, "Capture duration in seconds")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Abort a pending shutdown countdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := logging.NewNop()
			client := ipc.NewClient(ipc.ClientConfig{
				SocketPath:     cfg.SocketPath(),
				ConnectTimeout: 5 * time.Second,
				RetryInterval:  200 * time.Millisecond,
				AckTimeout:     time.Duration(cfg.IPC.AckTimeoutSeconds) * time.Second,
			}, logger)
			if err := client.Connect(cmd.Context()); err != nil {
				return fmt.Errorf("service unreachable: %w", err)
			}
			defer client.Close()

			msg, err := ipc.NewMessage(ipc.TypeCancelShutdown, ipc.CancelShutdownPayload{Reason: reason})
			if err != nil {
				return err
			}
			if err := client.Send(cmd.Context(), msg); err != nil {
				return fmt.Errorf("cancel not acknowledged: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cancel delivered")
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "operator request", "Reason recorded in the audit trail")
	return cmd
}
