package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Terminal runs the configured test command in the repository root.
type Terminal struct {
	WorkingDir string
	// Timeout bounds one run; zero means the command may run indefinitely.
	Timeout time.Duration
}

// ExecResult carries output and status code.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// OK reports a zero exit code.
func (r ExecResult) OK() bool {
	return r.ExitCode == 0
}

// Output returns stderr when present, otherwise stdout, trimmed.
func (r ExecResult) Output() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Run executes argv and never returns an error: launch failures become a
// synthetic exit code 1 with a SHELL_ERROR line on stderr.
func (t *Terminal) Run(ctx context.Context, argv []string) ExecResult {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return shellError(errors.New("command is required"))
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	res, err := runCommand(ctx, t.WorkingDir, nil, argv[0], argv[1:]...)
	if err == nil {
		return res
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.ExitCode = 1
		res.Stderr += fmt.Sprintf("SHELL_ERROR: command timed out after %s", t.Timeout)
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res
	}
	return shellError(err)
}

func shellError(err error) ExecResult {
	return ExecResult{ExitCode: 1, Stderr: fmt.Sprintf("SHELL_ERROR: %v", err)}
}

// waitDelay bounds how long Wait keeps draining pipes after cancellation.
const waitDelay = 500 * time.Millisecond

// runCommand starts name with args and collects its output. A non-nil error is
// either an *exec.ExitError (res.ExitCode set) or a launch failure.
func runCommand(ctx context.Context, dir string, stdin io.Reader, name string, args ...string) (ExecResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}

	err := cmd.Run()

	res := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		ExitCode: func() int {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				if code := exitErr.ExitCode(); code >= 0 {
					return code
				}
				return 1
			}
			if err != nil {
				return -1
			}
			return 0
		}(),
	}
	return res, err
}
