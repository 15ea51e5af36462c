package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"voiceguard/internal/config"
)

const unitPath = "/etc/systemd/system/voiceguardd.service"

// unitTemplate encodes the recovery policy: on failure restart twice, and if
// the service keeps dying within a 15 minute window, reboot the host. A
// machine that cannot run its safety net must not keep operating.
const unitTemplate = `[Unit]
Description=VoiceGuard emergency shutdown service
After=network.target sound.target

[Service]
Type=simple
ExecStart=%s console --config %s
Restart=on-failure
RestartSec=5
StartLimitIntervalSec=900
StartLimitBurst=3
StartLimitAction=reboot

[Install]
WantedBy=multi-user.target
`

func newInstallCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the service as a systemd unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}

			if err := ensureSampleConfig(ctx.configPath, cmd); err != nil {
				return err
			}

			executable, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			unit := fmt.Sprintf(unitTemplate, executable, ctx.configPath)
			if err := os.WriteFile(unitPath, []byte(unit), 0o644); err != nil {
				return fmt.Errorf("write unit file (run as root?): %w", err)
			}

			for _, sysArgs := range [][]string{
				{"daemon-reload"},
				{"enable", "voiceguardd.service"},
			} {
				if output, runErr := exec.Command("systemctl", sysArgs...).CombinedOutput(); runErr != nil {
					return fmt.Errorf("systemctl %s: %w (%s)",
						strings.Join(sysArgs, " "), runErr, strings.TrimSpace(string(output)))
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s and enabled voiceguardd.service\n", unitPath)
			return nil
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Disable and remove the systemd unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output, err := exec.Command("systemctl", "disable", "--now", "voiceguardd.service").CombinedOutput(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "systemctl disable: %v (%s)\n", err, strings.TrimSpace(string(output)))
			}
			if err := os.Remove(unitPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove unit file: %w", err)
			}
			if output, err := exec.Command("systemctl", "daemon-reload").CombinedOutput(); err != nil {
				return fmt.Errorf("systemctl daemon-reload: %w (%s)", err, strings.TrimSpace(string(output)))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed voiceguardd.service")
			return nil
		},
	}
}

func ensureSampleConfig(path string, cmd *cobra.Command) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if err := config.WriteSample(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", path)
	return nil
}
