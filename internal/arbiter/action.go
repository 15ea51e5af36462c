package arbiter

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// SystemAction shuts the machine down by running the configured command
// (shutdown -h now by default).
type SystemAction struct {
	Command string
	Args    []string
}

// NewSystemAction builds the production shutdown action.
func NewSystemAction(command string, args []string) *SystemAction {
	return &SystemAction{Command: command, Args: args}
}

// Execute implements Action.
func (a *SystemAction) Execute(ctx context.Context) error {
	execCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(execCtx, a.Command, a.Args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("shutdown command %s: %w (%s)", a.Command, err, string(output))
	}
	return nil
}
