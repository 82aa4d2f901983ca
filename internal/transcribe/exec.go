package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
)

type execTranscriber struct {
	cmd []string
	cfg config.TranscribeConfig
	mu  sync.Mutex
}

// NewExecTranscriber shells out to a configured recognizer command. The
// audio path is appended as `--audio <path>`, the language as `--language`
// when it is not auto, and the command must print a JSON transcript on
// stdout.
func NewExecTranscriber(cfg config.TranscribeConfig) (Transcriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse transcribe command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcribe command is empty")
	}
	return &execTranscriber{cmd: args, cfg: cfg}, nil
}

func (t *execTranscriber) Transcribe(ctx context.Context, audioPath string) (TranscriptionResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	args := append([]string{}, t.cmd...)
	base := args[0]
	cmdArgs := args[1:]
	cmdArgs = append(cmdArgs, "--audio", audioPath)
	if lang := strings.TrimSpace(t.cfg.Language); lang != "" && lang != "auto" {
		cmdArgs = append(cmdArgs, "--language", lang)
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return TranscriptionResult{}, fmt.Errorf("transcribe command failed: %w: %s", err, stderr.String())
	}

	var result TranscriptionResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return TranscriptionResult{}, fmt.Errorf("decode transcript: %w", err)
	}
	result.FullText = strings.TrimSpace(result.FullText)
	return result, nil
}
