package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ruteri/wp-provisioner/interfaces"
)

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	log    *slog.Logger
}

// NewExecRunner creates a runner streaming command output to the process' stdout and stderr.
func NewExecRunner(log *slog.Logger) *ExecRunner {
	return &ExecRunner{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		log:    log,
	}
}

// Run executes the command and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return r.run(cmd, name, args)
}

// Output executes the command and returns its standard output.
// Standard error is still streamed to the runner's Stderr.
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = r.Stderr
	if err := r.run(cmd, name, args); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

func (r *ExecRunner) run(cmd *exec.Cmd, name string, args []string) error {
	// Arguments may carry credentials, only the command itself is logged.
	command := describeCommand(name, args)
	start := time.Now()
	r.log.Debug("running command", "command", command)

	err := cmd.Run()
	if err != nil {
		r.log.Debug("command failed", "command", command, "err", err, "duration", time.Since(start))
		return fmt.Errorf("%w: %s: %w", interfaces.ErrExternalCommand, command, err)
	}

	r.log.Debug("command finished", "command", command, "duration", time.Since(start))
	return nil
}

// describeCommand returns the command name followed by its leading
// positional arguments, i.e. "wp plugin install".
func describeCommand(name string, args []string) string {
	parts := []string{name}
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") || len(parts) == 3 {
			break
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// IsExitError reports whether err was caused by a command exiting with a
// non-zero status, as opposed to failing to start.
func IsExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
