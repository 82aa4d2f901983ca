package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/bus"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/capability"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/clipboard"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/dispatch"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/history"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/hotkey"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/llm"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/natsserver"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/notify"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/playback"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/record"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/transcribe"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/tts"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/vision"
)

const availabilityInterval = 30 * time.Second

// Runtime assembles every service of the daemon and runs them until the
// context is cancelled.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	mu        sync.Mutex
	checks    []func() bool
	announcer *capability.Announcer
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	srv, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	defer srv.Shutdown()

	busCfg := r.cfg.Bus
	if srv != nil {
		busCfg.Servers = []string{srv.ClientURL()}
	}
	busClient, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	defer busClient.Close()

	hist, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer hist.Close()

	settings := config.NewJSONSettingsStore(r.cfg.Settings.Path)
	notifier := notify.NewDesktop(r.logger)
	clip := clipboard.NewSystem()

	transcriber, err := r.buildTranscriber()
	if err != nil {
		return fmt.Errorf("configure transcriber: %w", err)
	}
	visionCap, err := r.buildVision()
	if err != nil {
		return fmt.Errorf("configure vision capture: %w", err)
	}
	llmClient := r.buildLLM()

	kitten := tts.NewKittenEngine(r.cfg.TTS, r.logger)
	native := tts.NewNativeEngine(r.cfg.TTS, r.logger)
	speaker := tts.NewChain(kitten, native, r.logger)
	player := playback.NewController(r.cfg.Playback, r.logger)
	defer player.Stop()

	dispatcher := dispatch.NewDispatcher(r.cfg.Pipelines, r.cfg.LLM, dispatch.Deps{
		Transcriber: transcriber,
		LLM:         llmClient,
		Vision:      visionCap,
		Speaker:     speaker,
		Player:      player,
		Clipboard:   clip,
		History:     hist,
		Notifier:    notifier,
		Settings:    settings,
		Paste:       clipboard.Paste,
	}, r.logger)

	dispatchSvc := dispatch.NewService(ctx, busClient, dispatcher, notifier, r.logger)
	if err := dispatchSvc.Start(); err != nil {
		return fmt.Errorf("start dispatch service: %w", err)
	}
	defer dispatchSvc.Close()

	capturer, err := r.buildCapturer()
	if err != nil {
		return fmt.Errorf("configure recorder: %w", err)
	}
	recordSvc := record.NewService(ctx, busClient, record.NewManager(r.cfg.Recording, capturer, clip, r.logger), notifier, r.logger)
	if err := recordSvc.Start(); err != nil {
		return fmt.Errorf("start record service: %w", err)
	}
	defer recordSvc.Close()

	hotkeySvc, err := hotkey.NewService(ctx, r.cfg.Hotkeys, busClient, hotkey.NewListener(), notifier, r.logger)
	if err != nil {
		return fmt.Errorf("configure hotkeys: %w", err)
	}
	if err := hotkeySvc.Start(); err != nil {
		return fmt.Errorf("start hotkey service: %w", err)
	}
	defer hotkeySvc.Close()

	announcer := capability.NewAnnouncer(ctx, availabilityInterval,
		r.buildProbes(busClient, kitten, native, player, hotkeySvc), busClient, r.logger)
	defer announcer.Close()

	r.mu.Lock()
	r.announcer = announcer
	r.checks = []func() bool{
		busClient.Healthy,
		dispatchSvc.Healthy,
		recordSvc.Healthy,
		hotkeySvc.Healthy,
	}
	r.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/availability", r.handleAvailability)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildTranscriber() (transcribe.Transcriber, error) {
	if r.cfg.Transcribe.Mode == "mock" {
		return transcribe.NewMock("mock transcript"), nil
	}
	return transcribe.NewExecTranscriber(r.cfg.Transcribe)
}

func (r *Runtime) buildVision() (vision.Capturer, error) {
	if r.cfg.Vision.Mode == "mock" {
		return vision.NewMock(), nil
	}
	return vision.NewExecCapturer(r.cfg.Vision)
}

func (r *Runtime) buildLLM() llm.Client {
	if r.cfg.LLM.Mode == "mock" {
		return llm.NewMock("mock response")
	}
	return llm.NewHTTPClient(r.cfg.LLM)
}

func (r *Runtime) buildCapturer() (record.Capturer, error) {
	if r.cfg.Recording.Mode == "mock" {
		// one second of silence per capture
		return record.NewMock(r.cfg.Recording.SampleRate), nil
	}
	return record.NewExecCapturer(r.cfg.Recording.Command, r.logger)
}

func (r *Runtime) buildProbes(busClient *bus.Client, kitten *tts.KittenEngine, native *tts.NativeEngine, player *playback.Controller, hotkeys *hotkey.Service) []capability.Probe {
	probes := []capability.Probe{
		{Name: "bus", Check: func(context.Context) (bool, string) { return busClient.Healthy(), "" }},
		{Name: "hotkeys", Check: func(context.Context) (bool, string) {
			if hotkeys.Healthy() {
				return true, ""
			}
			return false, "keyboard hook not running"
		}},
		{Name: "tts.kitten", Check: func(ctx context.Context) (bool, string) { return kitten.Available(ctx), "" }},
		{Name: "tts.native", Check: func(ctx context.Context) (bool, string) { return native.Available(ctx), "" }},
		{Name: "playback", Check: func(context.Context) (bool, string) { return player.Available() }},
	}
	if r.cfg.LLM.Mode == "http" {
		probes = append(probes, capability.Probe{
			Name:  "llm",
			Check: func(ctx context.Context) (bool, string) { return llm.Reachable(ctx, r.cfg.LLM) },
		})
	}
	if r.cfg.Recording.Mode == "exec" {
		probes = append(probes, commandProbe("recorder", r.cfg.Recording.Command))
	}
	if r.cfg.Transcribe.Mode == "exec" {
		probes = append(probes, commandProbe("transcribe", r.cfg.Transcribe.Command))
	}
	if r.cfg.Vision.Mode == "exec" {
		probes = append(probes, commandProbe("vision", r.cfg.Vision.Command))
	}
	return probes
}

// commandProbe reports whether the binary of a configured command line is
// on PATH.
func commandProbe(name, command string) capability.Probe {
	return capability.Probe{
		Name: name,
		Check: func(context.Context) (bool, string) {
			args, err := shellwords.Parse(command)
			if err != nil || len(args) == 0 {
				return false, "invalid command"
			}
			if _, err := exec.LookPath(args[0]); err != nil {
				return false, err.Error()
			}
			return true, ""
		},
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.servicesHealthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleAvailability(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	announcer := r.announcer
	r.mu.Unlock()
	if announcer == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(announcer.Snapshot()); err != nil {
		r.logger.Warn("encode availability", slog.String("error", err.Error()))
	}
}

func (r *Runtime) servicesHealthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, check := range r.checks {
		if !check() {
			return false
		}
	}
	return true
}
