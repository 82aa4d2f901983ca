package tts

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ProcessExecutionResult captures the outcome of one capability process run,
// whether it exited on its own or was killed at the deadline.
type ProcessExecutionResult struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
	Elapsed  time.Duration
}

// commandRunner isolates subprocess execution so bridge behavior can be
// exercised in tests without spawning real interpreters.
type commandRunner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) ProcessExecutionResult
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) ProcessExecutionResult {
	start := time.Now()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	// Close the pipes shortly after the kill so a stuck grandchild cannot
	// hold Wait open forever.
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	res := ProcessExecutionResult{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: time.Since(start),
	}
	if err == nil {
		res.Success = true
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	} else {
		res.ExitCode = -1
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && res.Stderr == "" {
		res.Stderr = "process deadline exceeded"
	}
	return res
}
