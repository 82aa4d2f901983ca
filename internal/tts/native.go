package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
)

// NativeEngine produces speech with whatever voice the operating system
// ships: System.Speech over PowerShell on Windows, say on macOS, espeak on
// Linux. It needs no bundled runtime, which makes it the fallback of last
// resort.
type NativeEngine struct {
	goos     string
	runner   commandRunner
	lookPath func(string) (string, error)
	timeout  time.Duration
	log      *slog.Logger
}

func NewNativeEngine(cfg config.TTSConfig, log *slog.Logger) *NativeEngine {
	return &NativeEngine{
		goos:     runtime.GOOS,
		runner:   execRunner{},
		lookPath: exec.LookPath,
		timeout:  time.Duration(cfg.SynthTimeoutMS) * time.Millisecond,
		log:      log.With(slog.String("component", "tts-native")),
	}
}

func (e *NativeEngine) Name() string { return "native" }

func (e *NativeEngine) Available(ctx context.Context) bool {
	_, err := e.binary()
	return err == nil
}

func (e *NativeEngine) Synthesize(ctx context.Context, req TtsRequest) (TtsResult, error) {
	bin, err := e.binary()
	if err != nil {
		return TtsResult{}, fmt.Errorf("native tts: no speech backend: %w", err)
	}
	outputPath := filepath.Join(os.TempDir(), "cw-tts-"+uuid.NewString()+".wav")
	defer os.Remove(outputPath)

	args := e.arguments(req.Text, clampSpeed(req.Speed, 1.0), outputPath)
	res := e.runner.Run(ctx, e.timeout, bin, args...)
	if !res.Success {
		return TtsResult{}, fmt.Errorf("native tts: %s", processFailure(res))
	}
	audio, err := os.ReadFile(outputPath)
	if err != nil {
		return TtsResult{}, fmt.Errorf("native tts: read output: %w", err)
	}
	return TtsResult{Success: true, AudioBytes: audio, Elapsed: res.Elapsed}, nil
}

func (e *NativeEngine) binary() (string, error) {
	switch e.goos {
	case "windows":
		return e.lookPath("powershell")
	case "darwin":
		return e.lookPath("say")
	default:
		if path, err := e.lookPath("espeak-ng"); err == nil {
			return path, nil
		}
		return e.lookPath("espeak")
	}
}

// arguments builds the per-platform invocation. Output is always a WAV file
// so playback does not care which engine produced it.
func (e *NativeEngine) arguments(text string, speed float64, outputPath string) []string {
	switch e.goos {
	case "windows":
		return []string{"-NoProfile", "-NonInteractive", "-Command", sapiScript(text, speed, outputPath)}
	case "darwin":
		rate := strconv.Itoa(int(175 * speed))
		return []string{"-o", outputPath, "--data-format=LEI16@22050", "-r", rate, text}
	default:
		rate := strconv.Itoa(int(175 * speed))
		return []string{"-w", outputPath, "-s", rate, text}
	}
}

// sapiScript wraps text in a System.Speech one-liner. Single quotes are
// doubled, the only escaping PowerShell single-quoted strings need. SAPI
// rates run -10..10, so a 0.5..2.0 speed maps across that span.
func sapiScript(text string, speed float64, outputPath string) string {
	rate := int((speed - 1.0) * 10)
	if rate < -10 {
		rate = -10
	}
	if rate > 10 {
		rate = 10
	}
	quote := func(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }
	return fmt.Sprintf(
		"Add-Type -AssemblyName System.Speech; "+
			"$s = New-Object System.Speech.Synthesis.SpeechSynthesizer; "+
			"$s.Rate = %d; $s.SetOutputToWaveFile(%s); $s.Speak(%s); $s.Dispose()",
		rate, quote(outputPath), quote(text))
}
