package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/clipboard"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/history"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/llm"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/notify"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/protocol"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/transcribe"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/tts"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/vision"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePlayer struct {
	mu    sync.Mutex
	clips [][]byte
	err   error
}

func (p *fakePlayer) Play(audio []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.clips = append(p.clips, audio)
	return nil
}

func (p *fakePlayer) played() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clips)
}

type fakeHistory struct {
	mu   sync.Mutex
	runs []history.Run
	err  error
}

func (h *fakeHistory) Append(_ context.Context, run history.Run) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.runs = append(h.runs, run)
	return nil
}

func (h *fakeHistory) all() []history.Run {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]history.Run, len(h.runs))
	copy(out, h.runs)
	return out
}

type stubSettings struct {
	settings config.Settings
	err      error
}

func (s *stubSettings) Load() (config.Settings, error) { return s.settings, s.err }
func (s *stubSettings) Save(config.Settings) error     { return nil }

// fixtures bundles every fake a pipeline run can touch.
type fixtures struct {
	transcriber *transcribe.Mock
	llm         *llm.Mock
	vision      *vision.Mock
	engine      *tts.Mock
	player      *fakePlayer
	clip        *clipboard.Memory
	hist        *fakeHistory
	notes       *notify.Memory
	settings    *stubSettings
	pastes      int
}

func newFixtures() *fixtures {
	return &fixtures{
		transcriber: transcribe.NewMock("hello world"),
		llm:         llm.NewMock("bonjour"),
		vision:      vision.NewMock(),
		engine:      tts.NewMock("kitten", []byte("RIFFdata")),
		player:      &fakePlayer{},
		clip:        clipboard.NewMemory(""),
		hist:        &fakeHistory{},
		notes:       notify.NewMemory(),
		settings:    &stubSettings{settings: config.DefaultSettings()},
	}
}

func (fx *fixtures) deps() Deps {
	return Deps{
		Transcriber: fx.transcriber,
		LLM:         fx.llm,
		Vision:      fx.vision,
		Speaker:     tts.NewChain(fx.engine, nil, newLogger()),
		Player:      fx.player,
		Clipboard:   fx.clip,
		History:     fx.hist,
		Notifier:    fx.notes,
		Settings:    fx.settings,
		Paste:       func() error { fx.pastes++; return nil },
	}
}

func testPipelinesConfig() config.PipelinesConfig {
	return config.PipelinesConfig{
		TimeoutMS:            5000,
		SystemPrompt:         "You are a helpful assistant.",
		VisionPrompt:         "Describe the contents of this image.",
		ClipboardJoin:        ", ",
		ClipboardTtsMaxChars: 5000,
	}
}

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{Model: "openai/gpt-4o-mini", VisionModel: "openai/gpt-4o"}
}

func newTestDispatcher(fx *fixtures) *Dispatcher {
	return NewDispatcher(testPipelinesConfig(), testLLMConfig(), fx.deps(), newLogger())
}

func capturedSession(t *testing.T, mode protocol.Mode) protocol.SessionCaptured {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.wav")
	if err := os.WriteFile(path, []byte("RIFF fake audio"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return protocol.SessionCaptured{
		SessionID:  "sess-1",
		Mode:       mode,
		AudioPath:  path,
		AudioBytes: 15,
		StartedAt:  time.Now().Add(-2 * time.Second),
		StoppedAt:  time.Now(),
	}
}

func lastNote(t *testing.T, notes *notify.Memory) notify.Message {
	t.Helper()
	msgs := notes.Messages()
	if len(msgs) == 0 {
		t.Fatal("expected a notification")
	}
	return msgs[len(msgs)-1]
}

func TestTranscribeDeliversToClipboard(t *testing.T) {
	fx := newFixtures()
	d := newTestDispatcher(fx)
	session := capturedSession(t, protocol.ModeTranscribe)

	result := d.Run(context.Background(), session)

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Text != "hello world" || result.Transcript != "hello world" {
		t.Fatalf("unexpected result %+v", result)
	}
	if text, _ := fx.clip.ReadAll(); text != "hello world" {
		t.Fatalf("clipboard = %q, want transcript", text)
	}
	if _, err := os.Stat(session.AudioPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("audio file should be removed, stat err = %v", err)
	}
	note := lastNote(t, fx.notes)
	if note.Level != "info" || note.Title != "Transcript ready" {
		t.Fatalf("unexpected notification %+v", note)
	}
	runs := fx.hist.all()
	if len(runs) != 1 || runs[0].Mode != "transcribe" || runs[0].Result != "hello world" || runs[0].Error != "" {
		t.Fatalf("unexpected history %+v", runs)
	}
}

func TestPromptUsesSettingsModel(t *testing.T) {
	fx := newFixtures()
	fx.settings.settings.Model = "anthropic/claude-sonnet"
	d := newTestDispatcher(fx)

	result := d.Run(context.Background(), capturedSession(t, protocol.ModePromptLLM))

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	calls := fx.llm.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one llm call, got %d", len(calls))
	}
	if calls[0].Model != "anthropic/claude-sonnet" {
		t.Fatalf("model = %q, want settings override", calls[0].Model)
	}
	if calls[0].System != "You are a helpful assistant." {
		t.Fatalf("system prompt = %q", calls[0].System)
	}
	if text, _ := fx.clip.ReadAll(); text != "bonjour" {
		t.Fatalf("clipboard = %q, want llm reply", text)
	}
}

func TestClipboardPromptBuildsExactPrompt(t *testing.T) {
	fx := newFixtures()
	fx.transcriber.Result = transcribe.TranscriptionResult{FullText: "translate to French"}
	d := newTestDispatcher(fx)

	session := capturedSession(t, protocol.ModeClipboardPromptLLM)
	session.ClipboardSnapshot = "Hello"
	result := d.Run(context.Background(), session)

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	calls := fx.llm.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one llm call, got %d", len(calls))
	}
	if calls[0].Text != "translate to French, Hello" {
		t.Fatalf("prompt = %q, want %q", calls[0].Text, "translate to French, Hello")
	}
	if text, _ := fx.clip.ReadAll(); text != "bonjour" {
		t.Fatalf("clipboard = %q, want llm reply after delivery", text)
	}
}

func TestClipboardPromptWithEmptySnapshot(t *testing.T) {
	fx := newFixtures()
	fx.transcriber.Result = transcribe.TranscriptionResult{FullText: "translate to French"}
	d := newTestDispatcher(fx)

	session := capturedSession(t, protocol.ModeClipboardPromptLLM)
	result := d.Run(context.Background(), session)

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	calls := fx.llm.Calls()
	if len(calls) != 1 || calls[0].Text != "translate to French" {
		t.Fatalf("expected bare transcript prompt, got %+v", calls)
	}
}

func TestEmptyTranscriptFailsBeforeLLM(t *testing.T) {
	fx := newFixtures()
	fx.transcriber.Result = transcribe.TranscriptionResult{FullText: "  \n"}
	d := newTestDispatcher(fx)

	result := d.Run(context.Background(), capturedSession(t, protocol.ModePromptLLM))

	if !strings.Contains(result.Error, "no speech recognized") {
		t.Fatalf("error = %q, want no-speech failure", result.Error)
	}
	if len(fx.llm.Calls()) != 0 {
		t.Fatal("llm must not be called without a transcript")
	}
	note := lastNote(t, fx.notes)
	if note.Level != "error" || note.Title != "Prompt failed" || note.Body != "no speech recognized" {
		t.Fatalf("unexpected notification %+v", note)
	}
	runs := fx.hist.all()
	if len(runs) != 1 || runs[0].Error == "" {
		t.Fatalf("expected failed run in history, got %+v", runs)
	}
}

func TestVisionCaptureUsesConfiguredPrompt(t *testing.T) {
	fx := newFixtures()
	fx.vision.Image = []byte("png-bytes")
	d := newTestDispatcher(fx)

	result := d.Run(context.Background(), capturedSession(t, protocol.ModeVisionCapture))

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if fx.vision.Calls() != 1 {
		t.Fatalf("expected one capture, got %d", fx.vision.Calls())
	}
	calls := fx.llm.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one llm call, got %d", len(calls))
	}
	if calls[0].Text != "Describe the contents of this image." {
		t.Fatalf("vision prompt = %q", calls[0].Text)
	}
	if calls[0].ImageBytes != len("png-bytes") {
		t.Fatalf("image bytes = %d", calls[0].ImageBytes)
	}
	if calls[0].Model != "openai/gpt-4o" {
		t.Fatalf("model = %q, want vision model", calls[0].Model)
	}
}

func TestSpeechVisionSendsTranscriptWithImage(t *testing.T) {
	fx := newFixtures()
	fx.transcriber.Result = transcribe.TranscriptionResult{FullText: "what is on this chart"}
	d := newTestDispatcher(fx)

	result := d.Run(context.Background(), capturedSession(t, protocol.ModeSpeechVision))

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	calls := fx.llm.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one llm call, got %d", len(calls))
	}
	if calls[0].Text != "what is on this chart" {
		t.Fatalf("prompt = %q, want transcript", calls[0].Text)
	}
	if calls[0].ImageBytes == 0 {
		t.Fatal("expected screenshot bytes on the vision call")
	}
	if result.Transcript != "what is on this chart" {
		t.Fatalf("transcript = %q", result.Transcript)
	}
}

func TestClipboardTtsSpeaksCurrentClipboard(t *testing.T) {
	fx := newFixtures()
	fx.clip.WriteAll("read me aloud")
	d := newTestDispatcher(fx)

	result := d.Run(context.Background(), capturedSession(t, protocol.ModeClipboardTts))

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	reqs := fx.engine.Requests()
	if len(reqs) != 1 || reqs[0].Text != "read me aloud" {
		t.Fatalf("unexpected synth requests %+v", reqs)
	}
	if fx.player.played() != 1 {
		t.Fatalf("expected one playback, got %d", fx.player.played())
	}
	if result.Engine != "kitten" {
		t.Fatalf("engine = %q", result.Engine)
	}
	// Speaking must not clobber what the user had copied.
	if text, _ := fx.clip.ReadAll(); text != "read me aloud" {
		t.Fatalf("clipboard = %q, want original text", text)
	}
	note := lastNote(t, fx.notes)
	if note.Title != "Speaking clipboard" {
		t.Fatalf("unexpected notification %+v", note)
	}
}

func TestClipboardTtsTruncatesLongText(t *testing.T) {
	fx := newFixtures()
	fx.clip.WriteAll(strings.Repeat("a", 6000))
	d := newTestDispatcher(fx)

	result := d.Run(context.Background(), capturedSession(t, protocol.ModeClipboardTts))

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	reqs := fx.engine.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one synth request, got %d", len(reqs))
	}
	if got := len([]rune(reqs[0].Text)); got != 5000 {
		t.Fatalf("forwarded %d chars, want exactly 5000", got)
	}
}

func TestClipboardTtsEmptyClipboardFails(t *testing.T) {
	fx := newFixtures()
	d := newTestDispatcher(fx)

	result := d.Run(context.Background(), capturedSession(t, protocol.ModeClipboardTts))

	if !strings.Contains(result.Error, "clipboard is empty") {
		t.Fatalf("error = %q, want empty-clipboard failure", result.Error)
	}
	if len(fx.engine.Requests()) != 0 {
		t.Fatal("synthesis must not run for an empty clipboard")
	}
	if fx.player.played() != 0 {
		t.Fatal("nothing should play for an empty clipboard")
	}
}

func TestClipboardTtsEngineFailureSurfaces(t *testing.T) {
	fx := newFixtures()
	fx.clip.WriteAll("read me aloud")
	fx.engine.Unavailable = true
	d := newTestDispatcher(fx)

	result := d.Run(context.Background(), capturedSession(t, protocol.ModeClipboardTts))

	if result.Error == "" {
		t.Fatal("expected a tts failure")
	}
	if fx.player.played() != 0 {
		t.Fatal("nothing should play when synthesis fails")
	}
	note := lastNote(t, fx.notes)
	if note.Level != "error" || note.Title != "Clipboard speech failed" {
		t.Fatalf("unexpected notification %+v", note)
	}
}

func TestAutoPasteRunsAfterDelivery(t *testing.T) {
	fx := newFixtures()
	fx.settings.settings.AutoPaste = true
	d := newTestDispatcher(fx)

	result := d.Run(context.Background(), capturedSession(t, protocol.ModeTranscribe))

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if fx.pastes != 1 {
		t.Fatalf("expected one paste, got %d", fx.pastes)
	}
}

func TestPasteFailureDoesNotFailRun(t *testing.T) {
	fx := newFixtures()
	fx.settings.settings.AutoPaste = true
	deps := fx.deps()
	deps.Paste = func() error { return errors.New("no input access") }
	d := NewDispatcher(testPipelinesConfig(), testLLMConfig(), deps, newLogger())

	result := d.Run(context.Background(), capturedSession(t, protocol.ModeTranscribe))

	if result.Error != "" {
		t.Fatalf("paste failure must not fail the run, got %s", result.Error)
	}
	if text, _ := fx.clip.ReadAll(); text != "hello world" {
		t.Fatalf("clipboard = %q, want delivery despite paste failure", text)
	}
}

func TestAudioRemovedOnFailure(t *testing.T) {
	fx := newFixtures()
	fx.llm.Err = errors.New("upstream unavailable")
	d := newTestDispatcher(fx)
	session := capturedSession(t, protocol.ModePromptLLM)

	result := d.Run(context.Background(), session)

	if result.Error == "" {
		t.Fatal("expected an llm failure")
	}
	if _, err := os.Stat(session.AudioPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("audio file should be removed on failure, stat err = %v", err)
	}
	runs := fx.hist.all()
	if len(runs) != 1 || !strings.Contains(runs[0].Error, "upstream unavailable") {
		t.Fatalf("expected failure in history, got %+v", runs)
	}
}

func TestPipelineErrorNamesStage(t *testing.T) {
	err := stageErr(StageLLM, protocol.ModePromptLLM, errors.New("boom"))
	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatal("expected a PipelineError")
	}
	if perr.Stage != StageLLM {
		t.Fatalf("stage = %q", perr.Stage)
	}
	if !strings.Contains(err.Error(), "prompt_llm") || !strings.Contains(err.Error(), "llm") {
		t.Fatalf("error text = %q", err.Error())
	}
	if rootMessage(err) != "boom" {
		t.Fatalf("rootMessage = %q", rootMessage(err))
	}
}
