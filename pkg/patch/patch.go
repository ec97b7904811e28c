package patch

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Flag asks the installed server to apply its pending patch immediately
const Flag = "--patch-now"

// Runner runs an external program and waits for it to finish
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs programs with os/exec
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner returns an ExecRunner attached to the process's stdout and stderr
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run implements Runner
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	log.WithField("cmd", strings.Join(append([]string{name}, args...), " ")).Debug("running")
	return cmd.Run()
}

// Invoke runs executable with Flag
func Invoke(ctx context.Context, runner Runner, executable string) error {
	if err := runner.Run(ctx, executable, Flag); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return errors.Wrapf(err, "%s %s exited with code %d", executable, Flag, exitErr.ExitCode())
		}
		return errors.Wrapf(err, "failed to run %s %s", executable, Flag)
	}
	return nil
}
