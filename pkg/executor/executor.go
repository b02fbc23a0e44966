// Package executor runs external collaborator tools (test runners, linters,
// publish commands) as opaque blocking subprocesses with a bounded timeout.
// A timed-out run is reported distinctly from a run that failed on its own.
package executor

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout bounds a run when the caller does not supply one.
const DefaultTimeout = 5 * time.Minute

// Command describes one external invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string // appended to the parent environment
	Timeout time.Duration
}

// Result holds the outcome of one external invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Runner executes external commands. The single production implementation is
// CommandRunner; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// CommandRunner runs commands via os/exec.
type CommandRunner struct{}

// NewRunner returns a CommandRunner.
func NewRunner() *CommandRunner {
	return &CommandRunner{}
}

// Run executes the command, blocking until it exits or the timeout elapses.
// A non-zero exit is not an error: the caller reads Result.ExitCode. An error
// is returned only when the command could not be started at all.
func (r *CommandRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		execCmd.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		execCmd.Env = append(execCmd.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	runErr := execCmd.Run()

	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, errors.Wrapf(runErr, "failed to run %s", cmd.Name)
	}

	return result, nil
}

// LookPath reports whether the named binary is resolvable on PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
