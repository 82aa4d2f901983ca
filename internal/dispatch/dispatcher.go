package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

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

// Speaker turns text into audio through the engine chain.
type Speaker interface {
	Generate(ctx context.Context, req tts.TtsRequest) tts.TtsResult
}

// Player hands finished audio to the playback controller.
type Player interface {
	Play(audio []byte) error
}

// HistoryWriter records finished runs.
type HistoryWriter interface {
	Append(ctx context.Context, run history.Run) error
}

// Deps collects the collaborators a pipeline run touches.
type Deps struct {
	Transcriber transcribe.Transcriber
	LLM         llm.Client
	Vision      vision.Capturer
	Speaker     Speaker
	Player      Player
	Clipboard   clipboard.Clipboard
	History     HistoryWriter
	Notifier    notify.Notifier
	Settings    config.SettingsStore
	Paste       func() error
}

// Dispatcher runs one captured session through the pipeline its mode names
// and delivers the result to the user.
type Dispatcher struct {
	cfg    config.PipelinesConfig
	llmCfg config.LLMConfig
	deps   Deps
	log    *slog.Logger
	tracer trace.Tracer
	runs   metric.Int64Counter
}

type outcome struct {
	transcript string
	text       string
	engine     string
	spoken     bool
}

func NewDispatcher(cfg config.PipelinesConfig, llmCfg config.LLMConfig, deps Deps, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:    cfg,
		llmCfg: llmCfg,
		deps:   deps,
		log:    log.With(slog.String("component", "dispatch")),
		tracer: otel.Tracer("github.com/MushroomFleet/Careless-Whisper-V3-sub000/dispatch"),
	}
	if err := d.initMetrics(); err != nil {
		d.log.Warn("failed to initialize metrics", slogError(err))
	}
	return d
}

func (d *Dispatcher) initMetrics() error {
	meter := otel.Meter("github.com/MushroomFleet/Careless-Whisper-V3-sub000/dispatch")
	runs, err := meter.Int64Counter("cw.pipeline.runs", metric.WithDescription("Completed pipeline runs by mode and outcome"))
	if err != nil {
		return err
	}
	d.runs = runs
	return nil
}

// Run executes the pipeline for session and reports the outcome. The
// captured audio file is removed before Run returns, on every path.
func (d *Dispatcher) Run(ctx context.Context, session protocol.SessionCaptured) protocol.PipelineResult {
	start := time.Now()
	if session.AudioPath != "" {
		defer os.Remove(session.AudioPath)
	}

	settings, err := d.deps.Settings.Load()
	if err != nil {
		d.log.Warn("settings unavailable, using defaults", slogError(err))
		settings = config.DefaultSettings()
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.TimeoutMS)*time.Millisecond)
	defer cancel()
	runCtx, span := d.tracer.Start(runCtx, "pipeline."+string(session.Mode),
		trace.WithAttributes(attribute.String("session.id", session.SessionID)))
	defer span.End()

	out, err := d.execute(runCtx, session, settings)
	if err == nil && !out.spoken {
		err = d.deliver(session.Mode, out.text, settings)
	}

	result := protocol.PipelineResult{
		SessionID:  session.SessionID,
		Mode:       session.Mode,
		Transcript: out.transcript,
		ElapsedMS:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	if err != nil {
		result.Error = err.Error()
		span.RecordError(err)
		d.log.Warn("pipeline failed",
			slog.String("mode", string(session.Mode)),
			slogError(err))
		d.deps.Notifier.Error(failureTitle(session.Mode), rootMessage(err))
	} else {
		result.Text = out.text
		result.Engine = out.engine
		d.log.Info("pipeline completed",
			slog.String("mode", string(session.Mode)),
			slog.Int64("elapsed_ms", result.ElapsedMS))
		d.deps.Notifier.Info(successTitle(session.Mode), preview(out.text))
	}
	d.countRun(ctx, session.Mode, err == nil)
	d.appendHistory(ctx, result)
	return result
}

func (d *Dispatcher) execute(ctx context.Context, session protocol.SessionCaptured, settings config.Settings) (outcome, error) {
	switch session.Mode {
	case protocol.ModeTranscribe:
		return d.runTranscribe(ctx, session)
	case protocol.ModePromptLLM:
		return d.runPrompt(ctx, session, settings)
	case protocol.ModeClipboardPromptLLM:
		return d.runClipboardPrompt(ctx, session, settings)
	case protocol.ModeVisionCapture:
		return d.runVisionCapture(ctx, session, settings)
	case protocol.ModeSpeechVision:
		return d.runSpeechVision(ctx, session, settings)
	case protocol.ModeClipboardTts:
		return d.runClipboardTts(ctx, session, settings)
	default:
		return outcome{}, stageErr(StageDispatch, session.Mode, fmt.Errorf("unknown mode %q", session.Mode))
	}
}

func (d *Dispatcher) runTranscribe(ctx context.Context, session protocol.SessionCaptured) (outcome, error) {
	text, err := d.transcript(ctx, session)
	if err != nil {
		return outcome{}, err
	}
	return outcome{transcript: text, text: text}, nil
}

func (d *Dispatcher) runPrompt(ctx context.Context, session protocol.SessionCaptured, settings config.Settings) (outcome, error) {
	text, err := d.transcript(ctx, session)
	if err != nil {
		return outcome{}, err
	}
	reply, err := d.deps.LLM.CompletePrompt(ctx, text, d.cfg.SystemPrompt, d.chatModel(settings))
	if err != nil {
		return outcome{}, stageErr(StageLLM, session.Mode, err)
	}
	return outcome{transcript: text, text: strings.TrimSpace(reply)}, nil
}

// runClipboardPrompt joins the transcript with the clipboard text captured
// when the recording started, so the spoken instruction applies to whatever
// the user had copied at that moment.
func (d *Dispatcher) runClipboardPrompt(ctx context.Context, session protocol.SessionCaptured, settings config.Settings) (outcome, error) {
	text, err := d.transcript(ctx, session)
	if err != nil {
		return outcome{}, err
	}
	prompt := text
	if strings.TrimSpace(session.ClipboardSnapshot) != "" {
		prompt = text + d.cfg.ClipboardJoin + session.ClipboardSnapshot
	}
	reply, err := d.deps.LLM.CompletePrompt(ctx, prompt, d.cfg.SystemPrompt, d.chatModel(settings))
	if err != nil {
		return outcome{}, stageErr(StageLLM, session.Mode, err)
	}
	return outcome{transcript: text, text: strings.TrimSpace(reply)}, nil
}

func (d *Dispatcher) runVisionCapture(ctx context.Context, session protocol.SessionCaptured, settings config.Settings) (outcome, error) {
	image, err := d.deps.Vision.CaptureScreenRegion(ctx)
	if err != nil {
		return outcome{}, stageErr(StageVision, session.Mode, err)
	}
	reply, err := d.deps.LLM.CompleteVisionPrompt(ctx, d.cfg.VisionPrompt, image, d.cfg.SystemPrompt, d.visionModel(settings))
	if err != nil {
		return outcome{}, stageErr(StageLLM, session.Mode, err)
	}
	return outcome{text: strings.TrimSpace(reply)}, nil
}

func (d *Dispatcher) runSpeechVision(ctx context.Context, session protocol.SessionCaptured, settings config.Settings) (outcome, error) {
	text, err := d.transcript(ctx, session)
	if err != nil {
		return outcome{}, err
	}
	image, err := d.deps.Vision.CaptureScreenRegion(ctx)
	if err != nil {
		return outcome{}, stageErr(StageVision, session.Mode, err)
	}
	reply, err := d.deps.LLM.CompleteVisionPrompt(ctx, text, image, d.cfg.SystemPrompt, d.visionModel(settings))
	if err != nil {
		return outcome{}, stageErr(StageLLM, session.Mode, err)
	}
	return outcome{transcript: text, text: strings.TrimSpace(reply)}, nil
}

// runClipboardTts speaks the clipboard as it is at dispatch time, not the
// snapshot taken when recording started.
func (d *Dispatcher) runClipboardTts(ctx context.Context, session protocol.SessionCaptured, settings config.Settings) (outcome, error) {
	text, err := d.deps.Clipboard.ReadAll()
	if err != nil {
		return outcome{}, stageErr(StageClipboard, session.Mode, err)
	}
	if strings.TrimSpace(text) == "" {
		return outcome{}, stageErr(StageClipboard, session.Mode, errors.New("clipboard is empty"))
	}
	if runes := []rune(text); len(runes) > d.cfg.ClipboardTtsMaxChars {
		text = string(runes[:d.cfg.ClipboardTtsMaxChars])
		d.log.Info("clipboard text shortened for speech",
			slog.Int("kept", d.cfg.ClipboardTtsMaxChars))
		d.deps.Notifier.Info("Speaking clipboard", "The clipboard text was shortened before speaking.")
	}

	res := d.deps.Speaker.Generate(ctx, tts.TtsRequest{Text: text, Voice: settings.Voice, Speed: settings.Speed})
	if !res.Success {
		return outcome{}, stageErr(StageTTS, session.Mode, errors.New(res.ErrorMessage))
	}
	if err := d.deps.Player.Play(res.AudioBytes); err != nil {
		return outcome{}, stageErr(StagePlayback, session.Mode, err)
	}
	return outcome{text: text, engine: res.Engine, spoken: true}, nil
}

func (d *Dispatcher) transcript(ctx context.Context, session protocol.SessionCaptured) (string, error) {
	res, err := d.deps.Transcriber.Transcribe(ctx, session.AudioPath)
	if err != nil {
		return "", stageErr(StageTranscribe, session.Mode, err)
	}
	text := strings.TrimSpace(res.FullText)
	if text == "" {
		return "", stageErr(StageTranscribe, session.Mode, errors.New("no speech recognized"))
	}
	return text, nil
}

// deliver copies the result to the clipboard and optionally pastes it into
// the focused application. A paste failure leaves the clipboard intact, so
// it is reported but does not fail the run.
func (d *Dispatcher) deliver(mode protocol.Mode, text string, settings config.Settings) error {
	if err := d.deps.Clipboard.WriteAll(text); err != nil {
		return stageErr(StageDeliver, mode, err)
	}
	if settings.AutoPaste && d.deps.Paste != nil {
		if err := d.deps.Paste(); err != nil {
			d.log.Warn("paste after copy failed", slogError(err))
		}
	}
	return nil
}

func (d *Dispatcher) chatModel(settings config.Settings) string {
	if settings.Model != "" {
		return settings.Model
	}
	return d.llmCfg.Model
}

func (d *Dispatcher) visionModel(settings config.Settings) string {
	if d.llmCfg.VisionModel != "" {
		return d.llmCfg.VisionModel
	}
	return d.chatModel(settings)
}

func (d *Dispatcher) countRun(ctx context.Context, mode protocol.Mode, ok bool) {
	if d.runs == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	d.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("outcome", status),
	))
}

func (d *Dispatcher) appendHistory(ctx context.Context, result protocol.PipelineResult) {
	if d.deps.History == nil {
		return
	}
	run := history.Run{
		ID:         result.SessionID,
		Mode:       string(result.Mode),
		Transcript: result.Transcript,
		Result:     result.Text,
		Engine:     result.Engine,
		ElapsedMS:  result.ElapsedMS,
		Error:      result.Error,
		CreatedAt:  result.Timestamp,
	}
	if err := d.deps.History.Append(ctx, run); err != nil {
		d.log.Warn("history append failed", slogError(err))
	}
}

func successTitle(mode protocol.Mode) string {
	switch mode {
	case protocol.ModeTranscribe:
		return "Transcript ready"
	case protocol.ModePromptLLM, protocol.ModeClipboardPromptLLM:
		return "Response ready"
	case protocol.ModeVisionCapture, protocol.ModeSpeechVision:
		return "Screen response ready"
	case protocol.ModeClipboardTts:
		return "Speaking clipboard"
	}
	return "Pipeline finished"
}

func failureTitle(mode protocol.Mode) string {
	switch mode {
	case protocol.ModeTranscribe:
		return "Transcription failed"
	case protocol.ModePromptLLM, protocol.ModeClipboardPromptLLM:
		return "Prompt failed"
	case protocol.ModeVisionCapture, protocol.ModeSpeechVision:
		return "Vision failed"
	case protocol.ModeClipboardTts:
		return "Clipboard speech failed"
	}
	return "Pipeline failed"
}

// preview condenses text into a single short line for a notification body.
func preview(text string) string {
	fields := strings.Fields(text)
	joined := strings.Join(fields, " ")
	runes := []rune(joined)
	if len(runes) <= 80 {
		return joined
	}
	return string(runes[:80]) + "..."
}
