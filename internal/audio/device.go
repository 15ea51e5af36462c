package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Device is a source of raw S16LE mono PCM.
type Device interface {
	// Open starts the stream and returns a reader of raw PCM bytes. The
	// stream ends when ctx is cancelled or the device fails.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// ExecDevice captures audio by running an external capture command (arecord
// by default) and reading PCM from its stdout. Keeping ALSA behind a child
// process means a wedged driver kills the child, not us.
type ExecDevice struct {
	Command string
	Args    []string
}

// NewExecDevice builds a device around the given capture command.
func NewExecDevice(command string, args []string) *ExecDevice {
	return &ExecDevice{Command: command, Args: args}
}

type execStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *execStream) Close() error {
	_ = s.ReadCloser.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return s.cmd.Wait()
}

// Open implements Device.
func (d *ExecDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, d.Command, d.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture command %s: %w", d.Command, err)
	}
	return &execStream{ReadCloser: stdout, cmd: cmd}, nil
}
