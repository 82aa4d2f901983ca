package tts

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func newTestNative(goos string, runner commandRunner) *NativeEngine {
	return &NativeEngine{
		goos:     goos,
		runner:   runner,
		lookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil },
		timeout:  30 * time.Second,
		log:      newLogger(),
	}
}

func TestNativeUnavailableWithoutBackend(t *testing.T) {
	engine := newTestNative("linux", nil)
	engine.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	if engine.Available(context.Background()) {
		t.Fatal("expected unavailable without espeak")
	}
}

func TestNativeLinuxInvocation(t *testing.T) {
	runner := &fakeRunner{run: func(name string, args ...string) ProcessExecutionResult {
		if err := os.WriteFile(argValue(args, "-w"), []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("write output: %v", err)
		}
		return ProcessExecutionResult{Success: true}
	}}
	engine := newTestNative("linux", runner)

	res, err := engine.Synthesize(context.Background(), TtsRequest{Text: "hello", Speed: 2.0})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	call := runner.calls[0]
	if call[0] != "/usr/bin/espeak-ng" {
		t.Fatalf("expected espeak-ng, got %q", call[0])
	}
	if got := argValue(call[1:], "-s"); got != "350" {
		t.Fatalf("expected 350 wpm at double speed, got %q", got)
	}
	if call[len(call)-1] != "hello" {
		t.Fatalf("expected text as final argument, got %v", call)
	}
}

func TestNativeDarwinInvocation(t *testing.T) {
	runner := &fakeRunner{run: func(name string, args ...string) ProcessExecutionResult {
		if err := os.WriteFile(argValue(args, "-o"), []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("write output: %v", err)
		}
		return ProcessExecutionResult{Success: true}
	}}
	engine := newTestNative("darwin", runner)

	if _, err := engine.Synthesize(context.Background(), TtsRequest{Text: "hi"}); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	call := runner.calls[0]
	if call[0] != "/usr/bin/say" {
		t.Fatalf("expected say, got %q", call[0])
	}
	joined := strings.Join(call, " ")
	if !strings.Contains(joined, "--data-format=LEI16@22050") {
		t.Fatalf("expected WAV data format flag in %v", call)
	}
}

func TestSapiScriptEscapesSingleQuotes(t *testing.T) {
	script := sapiScript("it's done", 1.0, `C:\tmp\out.wav`)
	if !strings.Contains(script, "'it''s done'") {
		t.Fatalf("expected doubled quotes in %q", script)
	}
	if !strings.Contains(script, "$s.Rate = 0;") {
		t.Fatalf("expected neutral rate in %q", script)
	}

	fast := sapiScript("x", 2.0, `C:\tmp\out.wav`)
	if !strings.Contains(fast, "$s.Rate = 10;") {
		t.Fatalf("expected max rate in %q", fast)
	}
}

func TestNativeWindowsInvocation(t *testing.T) {
	runner := &fakeRunner{run: func(name string, args ...string) ProcessExecutionResult {
		// The SAPI script writes the file in real life; emulate that here.
		script := args[len(args)-1]
		start := strings.Index(script, "SetOutputToWaveFile('") + len("SetOutputToWaveFile('")
		end := strings.Index(script[start:], "'")
		if err := os.WriteFile(script[start:start+end], []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("write output: %v", err)
		}
		return ProcessExecutionResult{Success: true}
	}}
	engine := newTestNative("windows", runner)

	res, err := engine.Synthesize(context.Background(), TtsRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	call := runner.calls[0]
	if call[0] != "/usr/bin/powershell" {
		t.Fatalf("expected powershell, got %q", call[0])
	}
	if call[1] != "-NoProfile" || call[2] != "-NonInteractive" || call[3] != "-Command" {
		t.Fatalf("unexpected powershell flags %v", call[1:4])
	}
}
