package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/clipboard"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/protocol"
)

// ErrSessionActive is returned by Start when a capture is already in flight.
var ErrSessionActive = errors.New("record: session already active")

// ErrNoSession is returned by Stop when nothing is recording.
var ErrNoSession = errors.New("record: no active session")

// ErrNoAudio marks captures that ended missing or below the minimum byte
// threshold.
var ErrNoAudio = errors.New("no audio detected")

// Manager owns the one live recording session. Start checks-and-sets under a
// mutex, so a second chord can never open a parallel capture.
type Manager struct {
	cfg      config.RecordingConfig
	capturer Capturer
	clip     clipboard.Clipboard
	log      *slog.Logger
	now      func() time.Time
	sleep    func(time.Duration)

	mu      sync.Mutex
	current *session
}

type session struct {
	id        string
	mode      protocol.Mode
	path      string
	clipboard string
	startedAt time.Time
}

func NewManager(cfg config.RecordingConfig, capturer Capturer, clip clipboard.Clipboard, log *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		capturer: capturer,
		clip:     clip,
		log:      log.With(slog.String("component", "record")),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Start begins a capture for mode and returns the session id. For the
// clipboard prompt mode the clipboard is snapshotted before any audio is
// written, so nothing the pipeline does later can race a user copy.
func (m *Manager) Start(ctx context.Context, mode protocol.Mode) (string, error) {
	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		return "", ErrSessionActive
	}
	s := &session{id: uuid.NewString(), mode: mode, startedAt: m.now()}
	m.current = s
	m.mu.Unlock()

	if mode == protocol.ModeClipboardPromptLLM {
		text, err := m.clip.ReadAll()
		if err != nil {
			m.log.Warn("clipboard snapshot failed", slog.String("error", err.Error()))
		}
		s.clipboard = text
	}

	s.path = filepath.Join(m.tempDir(), "cw-rec-"+s.id+".wav")
	if err := m.capturer.Start(ctx, s.path); err != nil {
		m.clear(s)
		os.Remove(s.path)
		return "", fmt.Errorf("record: start capture: %w", err)
	}
	m.log.Info("recording started",
		slog.String("session_id", s.id),
		slog.String("mode", string(mode)))
	return s.id, nil
}

// Stop ends the live capture and validates the result. The grace period lets
// the recorder flush its buffers before the size check runs.
func (m *Manager) Stop(ctx context.Context) (protocol.SessionCaptured, error) {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return protocol.SessionCaptured{}, ErrNoSession
	}

	stopErr := m.capturer.Stop()
	m.sleep(time.Duration(m.cfg.GraceMS) * time.Millisecond)
	m.clear(s)
	if stopErr != nil {
		os.Remove(s.path)
		return protocol.SessionCaptured{}, fmt.Errorf("record: stop capture: %w", stopErr)
	}

	info, err := os.Stat(s.path)
	if err != nil || info.Size() < m.cfg.MinBytes {
		os.Remove(s.path)
		return protocol.SessionCaptured{}, ErrNoAudio
	}

	m.log.Info("recording captured",
		slog.String("session_id", s.id),
		slog.Int64("bytes", info.Size()))
	return protocol.SessionCaptured{
		SessionID:         s.id,
		Mode:              s.mode,
		AudioPath:         s.path,
		AudioBytes:        info.Size(),
		ClipboardSnapshot: s.clipboard,
		StartedAt:         s.startedAt,
		StoppedAt:         m.now(),
	}, nil
}

// Cancel aborts the live capture, if any, and discards its audio.
func (m *Manager) Cancel() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()
	if s == nil {
		return
	}
	_ = m.capturer.Stop()
	os.Remove(s.path)
	m.log.Info("recording cancelled", slog.String("session_id", s.id))
}

// Active reports whether a capture is in flight.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

func (m *Manager) tempDir() string {
	if m.cfg.TempDir != "" {
		return m.cfg.TempDir
	}
	return os.TempDir()
}

func (m *Manager) clear(s *session) {
	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	m.mu.Unlock()
}
