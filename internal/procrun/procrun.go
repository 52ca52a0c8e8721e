// Package procrun is the process runner: it spawns child commands, captures
// or streams their stdio, enforces timeouts, and surfaces exit codes. It
// never interprets command output — that is the caller's job.
//
// Grounded on the teacher's executor.CommandRunner abstraction
// (internal/executor/git_checkpointer.go) and claude.Invoker's use of
// exec.CommandContext (internal/claude/invoker.go), generalized into the
// two primitives spec.md §4.1 names: RunCapture and RunStreamToLog.
package procrun

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/harrison/auto-codex/internal/watch"
)

// ExecError is the uniform representation of a failed child process
// (design note §9: "external-process error plumbing").
type ExecError struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
	// TimedOut is true when the process was killed for exceeding its timeout.
	TimedOut bool
}

func (e *ExecError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("command %v timed out (exit %d)", e.Argv, e.ExitCode)
	}
	return fmt.Sprintf("command %v exited %d", e.Argv, e.ExitCode)
}

// FailurePolicy controls whether a non-zero exit is returned as an error or
// surfaced only through the returned exit code.
type FailurePolicy int

const (
	// ReturnNonZero reports a non-zero exit via the returned int only.
	ReturnNonZero FailurePolicy = iota
	// RaiseOnFailure wraps a non-zero exit (or timeout) in an *ExecError.
	RaiseOnFailure
)

// Options configures one process-runner invocation.
type Options struct {
	Dir     string
	Env     []string // nil inherits the current process environment
	Timeout time.Duration
	Policy  FailurePolicy
}

// RunCapture runs argv to completion, capturing stdout/stderr, and returns
// the exit code. Under RaiseOnFailure, a non-zero exit or timeout is
// returned as an *ExecError; under ReturnNonZero the caller must inspect
// the exit code itself.
func RunCapture(ctx context.Context, argv []string, opts Options) (stdout, stderr string, exitCode int, err error) {
	runCtx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout, stderr = outBuf.String(), errBuf.String()
	exitCode = exitCodeOf(runErr)
	timedOut := runCtx.Err() == context.DeadlineExceeded

	if (runErr != nil || timedOut) && opts.Policy == RaiseOnFailure {
		return stdout, stderr, exitCode, &ExecError{
			Argv: argv, ExitCode: exitCode, Stdout: stdout, Stderr: stderr, TimedOut: timedOut,
		}
	}
	return stdout, stderr, exitCode, nil
}

// RunStreamToLog runs argv to completion with stdout/stderr mirrored to w as
// they are produced. If watcher is non-nil, it is started over opts.Dir for
// the duration of the call and its events are interleaved into w — a purely
// observational record, never consulted for control flow (grounded on
// internal/behavioral/filewatcher.go).
func RunStreamToLog(ctx context.Context, argv []string, opts Options, w io.Writer, watcher *watch.ActivityWatcher) (exitCode int, err error) {
	runCtx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if watcher != nil {
		stop, startErr := watcher.Start(opts.Dir, w)
		if startErr == nil {
			defer stop()
		}
	}

	runErr := cmd.Run()
	exitCode = exitCodeOf(runErr)
	timedOut := runCtx.Err() == context.DeadlineExceeded

	if (runErr != nil || timedOut) && opts.Policy == RaiseOnFailure {
		return exitCode, &ExecError{Argv: argv, ExitCode: exitCode, TimedOut: timedOut}
	}
	return exitCode, nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if asExitError(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	// Context deadline / start failure: report a distinct non-zero code.
	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
