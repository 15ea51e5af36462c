package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"voiceguard/internal/daemonctl"
	"voiceguard/internal/deps"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service status and dependency health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			plain := !isatty.IsTerminal(os.Stdout.Fd())
			out := cmd.OutOrStdout()

			running := daemonctl.SocketReachable(cfg.SocketPath())
			pid, _ := daemonctl.ReadPID(cfg)

			rows := [][]string{
				{"Service", statusWord(running)},
				{"PID", pidText(pid)},
				{"Socket", cfg.SocketPath()},
				{"Database", cfg.DatabasePath()},
				{"Config", ctx.configPath},
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, plain))

			depRows := make([][]string, 0, 4)
			for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
				detail := status.Detail
				if status.Available {
					detail = "available"
				}
				kind := "required"
				if status.Optional {
					kind = "optional"
				}
				depRows = append(depRows, []string{status.Name, status.Command, kind, detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Dependency", "Command", "Kind", "Status"}, depRows, plain))
			return nil
		},
	}
}

func statusWord(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

func pidText(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return strconv.Itoa(pid)
}
