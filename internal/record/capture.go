package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// Capturer records microphone audio into a WAV file until stopped.
type Capturer interface {
	Start(ctx context.Context, path string) error
	Stop() error
}

type execCapturer struct {
	cmd []string
	log *slog.Logger

	mu      sync.Mutex
	proc    *exec.Cmd
	waitErr chan error
}

// NewExecCapturer runs an external recorder such as ffmpeg. The output path
// is appended as the final argument.
func NewExecCapturer(command string, log *slog.Logger) (Capturer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse record command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("record command empty")
	}
	return &execCapturer{cmd: args, log: log.With(slog.String("component", "capture"))}, nil
}

func (e *execCapturer) Start(ctx context.Context, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc != nil {
		return errors.New("record: capture already running")
	}
	args := append(append([]string{}, e.cmd[1:]...), path)
	cmd := exec.Command(e.cmd[0], args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}
	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()
	e.proc = cmd
	e.waitErr = waitErr
	e.log.Debug("recorder started", slog.String("path", path), slog.Int("pid", cmd.Process.Pid))
	return nil
}

// Stop interrupts the recorder so it can finalize the WAV header, then kills
// it if it does not exit promptly. Recorders exit non-zero on interrupt, so
// the exit status is ignored and the output size check decides instead.
func (e *execCapturer) Stop() error {
	e.mu.Lock()
	proc, waitErr := e.proc, e.waitErr
	e.proc, e.waitErr = nil, nil
	e.mu.Unlock()
	if proc == nil {
		return nil
	}
	if err := proc.Process.Signal(os.Interrupt); err != nil {
		_ = proc.Process.Kill()
	}
	select {
	case <-waitErr:
	case <-time.After(3 * time.Second):
		_ = proc.Process.Kill()
		<-waitErr
	}
	return nil
}
