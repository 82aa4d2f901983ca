package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
)

// KittenEngine synthesizes speech through the Python kitten bridge. Its
// availability is probed lazily and cached for the lifetime of the instance,
// so a missing interpreter costs one check rather than one per request.
type KittenEngine struct {
	bridge *Bridge
	cfg    config.TTSConfig
	log    *slog.Logger

	availOnce sync.Once
	available bool
}

func NewKittenEngine(cfg config.TTSConfig, log *slog.Logger) *KittenEngine {
	return &KittenEngine{
		bridge: NewBridge(cfg, log),
		cfg:    cfg,
		log:    log.With(slog.String("component", "tts-kitten")),
	}
}

func (e *KittenEngine) Name() string { return "kitten" }

func (e *KittenEngine) Available(ctx context.Context) bool {
	e.availOnce.Do(func() {
		e.available = e.bridge.Verify(ctx)
		e.log.Info("kitten engine availability", slog.Bool("available", e.available))
	})
	return e.available
}

// Bridge exposes the underlying bridge for voice listing.
func (e *KittenEngine) Bridge() *Bridge { return e.bridge }

func (e *KittenEngine) Synthesize(ctx context.Context, req TtsRequest) (TtsResult, error) {
	voice := req.Voice
	if voice == "" {
		voice = e.cfg.Voice
	}
	if !e.bridge.SupportsVoice(voice) {
		e.log.Warn("unknown voice requested, using default",
			slog.String("voice", voice),
			slog.String("default", e.cfg.Voice))
		voice = e.cfg.Voice
	}
	speed := clampSpeed(req.Speed, e.cfg.Speed)

	outputPath := filepath.Join(os.TempDir(), "cw-tts-"+uuid.NewString()+".wav")
	defer os.Remove(outputPath)

	res := e.bridge.Synthesize(ctx, req.Text, voice, speed, outputPath)
	if !res.Success {
		return TtsResult{}, fmt.Errorf("kitten bridge: %s", processFailure(res))
	}
	audio, err := os.ReadFile(outputPath)
	if err != nil {
		return TtsResult{}, fmt.Errorf("kitten bridge: read output: %w", err)
	}
	return TtsResult{Success: true, AudioBytes: audio, Elapsed: res.Elapsed}, nil
}

// clampSpeed keeps the rate inside the range the bridge accepts. A zero
// request speed means the configured default.
func clampSpeed(requested, fallback float64) float64 {
	speed := requested
	if speed == 0 {
		speed = fallback
	}
	if speed == 0 {
		speed = 1.0
	}
	if speed < 0.5 {
		return 0.5
	}
	if speed > 2.0 {
		return 2.0
	}
	return speed
}
