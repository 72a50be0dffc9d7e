// Package claudecli invokes the external Claude CLI. Everything above this
// package depends on the Runner interface so tests can substitute a double.
package claudecli

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Result holds the captured outcome of one subprocess invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Runner runs the external tool in a working directory with a deadline.
type Runner interface {
	Run(ctx context.Context, dir string, timeout time.Duration, args ...string) (Result, error)
}

// ErrNotFound is returned when the external binary is not on PATH.
var ErrNotFound = errors.New("claude binary not found")

// CLI is the real Runner backed by os/exec.
type CLI struct {
	Binary string
}

// New returns a CLI runner for the given binary name.
func New(binary string) *CLI {
	if binary == "" {
		binary = "claude"
	}
	return &CLI{Binary: binary}
}

// Run executes the binary and waits for it to exit or for the timeout.
// A non-zero exit or a timeout is reported in the Result, not as an error;
// the error return is reserved for failures to launch at all.
func (c *CLI) Run(ctx context.Context, dir string, timeout time.Duration, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			res.TimedOut = true
			res.ExitCode = -1
			return res, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return res, ErrNotFound
		}
		return res, err
	}

	return res, nil
}
