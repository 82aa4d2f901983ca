package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/history"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/llm"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/playback"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/tts"
)

var version = "3.0.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'voices', 'models', 'history', 'check' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "voices":
		if err := runVoices(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "models":
		if err := runModels(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "history":
		if err := runHistory(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "check":
		if err := runCheck(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func loadConfig(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return cfg, logger, nil
}

func runVoices(args []string) error {
	fs := flag.NewFlagSet("voices", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(args)

	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bridge := tts.NewBridge(cfg.TTS, logger)
	voices, err := bridge.ListVoices(ctx)
	if err != nil {
		return fmt.Errorf("list voices: %w", err)
	}

	for _, v := range voices {
		marker := " "
		if v.ID == cfg.TTS.Voice {
			marker = "*"
		}
		fmt.Printf("%s %-18s %s\n", marker, v.ID, v.Description)
	}
	return nil
}

func runModels(args []string) error {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	refresh := fs.Bool("refresh", false, "Bypass the model cache")
	fs.Parse(args)

	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	catalog := llm.NewCatalog(cfg.LLM, logger)
	models := catalog.GetModels(ctx, cfg.LLM.APIKey, *refresh)
	if len(models) == 0 {
		return fmt.Errorf("no models available from %s", cfg.LLM.Endpoint)
	}

	for _, m := range models {
		marker := " "
		if m.ID == cfg.LLM.Model {
			marker = "*"
		}
		fmt.Printf("%s %-40s %8d  %s\n", marker, m.ID, m.ContextLength, m.Name)
	}
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Maximum number of runs to show")
	fs.Parse(args)

	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return fmt.Errorf("history is disabled (no history path configured)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := history.Open(ctx, cfg.History, logger)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	runs, err := store.Recent(ctx, *limit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	for _, r := range runs {
		status := "ok"
		detail := r.Result
		if r.Error != "" {
			status = "error"
			detail = r.Error
		}
		fmt.Printf("%s  %-22s %-5s %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Mode, status, snippet(detail, 60))
	}
	return nil
}

// runCheck probes the local environment the way the daemon's availability
// announcer does, without needing the daemon to be running. It fails when a
// component the loaded config depends on is missing.
func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(args)

	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	type check struct {
		name     string
		required bool
		probe    func() (bool, string)
	}

	kitten := tts.NewKittenEngine(cfg.TTS, logger)
	native := tts.NewNativeEngine(cfg.TTS, logger)
	player := playback.NewController(cfg.Playback, logger)

	checks := []check{
		{"tts.kitten", false, func() (bool, string) {
			if kitten.Available(ctx) {
				return true, ""
			}
			return false, "python bridge not verified"
		}},
		{"tts.native", false, func() (bool, string) {
			if native.Available(ctx) {
				return true, ""
			}
			return false, "no native speech backend"
		}},
		{"playback", true, player.Available},
	}
	if cfg.Recording.Mode == "exec" {
		checks = append(checks, check{"recorder", true, commandProbe(cfg.Recording.Command)})
	}
	if cfg.Transcribe.Mode == "exec" {
		checks = append(checks, check{"transcriber", true, commandProbe(cfg.Transcribe.Command)})
	}
	if cfg.Vision.Mode == "exec" {
		checks = append(checks, check{"vision", true, commandProbe(cfg.Vision.Command)})
	}

	ttsAvailable := false
	failures := 0
	for _, c := range checks {
		ok, detail := c.probe()
		state := "available"
		if !ok {
			state = "unavailable"
			if c.required {
				failures++
			}
		}
		if ok && strings.HasPrefix(c.name, "tts.") {
			ttsAvailable = true
		}
		line := fmt.Sprintf("%-14s %s", c.name, state)
		if detail != "" {
			line += "  (" + detail + ")"
		}
		fmt.Println(line)
	}

	if !ttsAvailable {
		failures++
		fmt.Println("tts            unavailable  (no engine in the fallback chain works)")
	}
	if failures > 0 {
		return fmt.Errorf("%d required component(s) unavailable", failures)
	}
	fmt.Println("environment ok")
	return nil
}

func commandProbe(command string) func() (bool, string) {
	return func() (bool, string) {
		parts, err := shellwords.Parse(command)
		if err != nil || len(parts) == 0 {
			return false, fmt.Sprintf("unparseable command %q", command)
		}
		if _, err := exec.LookPath(parts[0]); err != nil {
			return false, parts[0] + " not on PATH"
		}
		return true, ""
	}
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
