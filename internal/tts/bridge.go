package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
)

// Bridge drives the kitten_tts_bridge.py helper over argv and JSON stdout.
// Every invocation runs under its own deadline and is killed at expiry, so a
// wedged interpreter never outlives its budget.
type Bridge struct {
	cfg     config.TTSConfig
	locator *Locator
	runner  commandRunner
	log     *slog.Logger

	mu          sync.Mutex // serializes invocations and path resolution
	interpreter string
	script      string
	voices      []Voice
}

func NewBridge(cfg config.TTSConfig, log *slog.Logger) *Bridge {
	return &Bridge{
		cfg:     cfg,
		locator: NewLocator(),
		runner:  execRunner{},
		log:     log.With(slog.String("component", "tts-bridge")),
	}
}

type bridgeResponse struct {
	Success  bool    `json:"success"`
	Error    string  `json:"error"`
	Voices   []Voice `json:"voices"`
	FileSize int64   `json:"file_size"`
}

// Verify reports whether the bridge is usable end to end: interpreter found,
// probe answered, script present, voice listing non-empty. It never returns
// an error; failures are logged and reported as false.
func (b *Bridge) Verify(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	voices, err := b.listVoicesLocked(ctx)
	if err != nil {
		b.log.Warn("kitten bridge unavailable", slog.String("error", err.Error()))
		return false
	}
	return len(voices) > 0
}

// ListVoices asks the bridge for its supported voices.
func (b *Bridge) ListVoices(ctx context.Context) ([]Voice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listVoicesLocked(ctx)
}

// Synthesize renders text into outputPath. Success requires both a zero exit
// and a non-empty output file; the bridge's own success JSON is advisory.
func (b *Bridge) Synthesize(ctx context.Context, text, voice string, speed float64, outputPath string) ProcessExecutionResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.resolveLocked(ctx); err != nil {
		return ProcessExecutionResult{Stderr: err.Error(), ExitCode: -1}
	}
	res := b.runner.Run(ctx, b.synthTimeout(), b.interpreter, b.script,
		"--text", text,
		"--voice", voice,
		"--speed", strconv.FormatFloat(speed, 'f', -1, 64),
		"--output", outputPath,
	)
	if res.Success && !fileNonEmpty(outputPath) {
		res.Success = false
		if res.Stderr == "" {
			res.Stderr = "bridge exited cleanly but produced no audio file"
		}
	}
	return res
}

func (b *Bridge) listVoicesLocked(ctx context.Context) ([]Voice, error) {
	if err := b.resolveLocked(ctx); err != nil {
		return nil, err
	}
	res := b.runner.Run(ctx, b.verifyTimeout(), b.interpreter, b.script, "--list-voices")
	if !res.Success {
		return nil, fmt.Errorf("tts: list voices: %s", processFailure(res))
	}
	resp, err := parseBridgeOutput(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("tts: list voices: %w", err)
	}
	b.voices = resp.Voices
	return resp.Voices, nil
}

// SupportsVoice reports whether the bridge has listed id as a voice. Before
// any successful listing the answer is optimistic, so callers that never
// probed are not second-guessed.
func (b *Bridge) SupportsVoice(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.voices) == 0 {
		return true
	}
	for _, v := range b.voices {
		if v.ID == id {
			return true
		}
	}
	return false
}

// resolveLocked locates the interpreter and bridge script once per instance
// and checks the interpreter answers --version.
func (b *Bridge) resolveLocked(ctx context.Context) error {
	if b.interpreter != "" && b.script != "" {
		return nil
	}
	interpreter, err := b.locator.Interpreter(b.cfg.Interpreter)
	if err != nil {
		return err
	}
	if res := b.runner.Run(ctx, b.probeTimeout(), interpreter, "--version"); !res.Success {
		return fmt.Errorf("tts: interpreter probe failed: %s", processFailure(res))
	}
	script, err := b.locator.Script(b.cfg.BridgePath)
	if err != nil {
		return err
	}
	b.interpreter = interpreter
	b.script = script
	b.log.Debug("kitten bridge resolved",
		slog.String("interpreter", interpreter),
		slog.String("script", script))
	return nil
}

func (b *Bridge) probeTimeout() time.Duration {
	return time.Duration(b.cfg.ProbeTimeoutMS) * time.Millisecond
}

func (b *Bridge) verifyTimeout() time.Duration {
	return time.Duration(b.cfg.VerifyTimeoutMS) * time.Millisecond
}

func (b *Bridge) synthTimeout() time.Duration {
	return time.Duration(b.cfg.SynthTimeoutMS) * time.Millisecond
}

// parseBridgeOutput finds the JSON payload on stdout. Model downloads may
// print progress lines first, so every line is tried.
func parseBridgeOutput(stdout string) (bridgeResponse, error) {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var resp bridgeResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			continue
		}
		if !resp.Success {
			return resp, fmt.Errorf("bridge reported failure: %s", resp.Error)
		}
		return resp, nil
	}
	return bridgeResponse{}, errors.New("no JSON payload on stdout")
}

// processFailure condenses a failed result into one line for errors and logs.
func processFailure(res ProcessExecutionResult) string {
	if msg := bridgeErrorMessage(res.Stderr); msg != "" {
		return msg
	}
	for _, line := range strings.Split(res.Stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return fmt.Sprintf("exit code %d", res.ExitCode)
}

// bridgeErrorMessage extracts the bridge's {"success": false, "error": ...}
// payload from stderr when present.
func bridgeErrorMessage(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var resp bridgeResponse
		if err := json.Unmarshal([]byte(line), &resp); err == nil && resp.Error != "" {
			return resp.Error
		}
	}
	return ""
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
