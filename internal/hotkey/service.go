package hotkey

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/bus"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/notify"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/protocol"
)

// Service owns the global keyboard hook. Chord decisions happen inline on
// the hook thread; everything slower moves through a bounded queue to a
// publisher goroutine.
type Service struct {
	cfg      config.HotkeysConfig
	bus      *bus.Client
	machine  *Machine
	listener Listener
	notifier notify.Notifier
	events   chan queuedEvent
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
	healthy  atomic.Bool
}

type queuedEvent struct {
	subject string
	event   protocol.ModeEvent
}

func NewService(parent context.Context, cfg config.HotkeysConfig, busClient *bus.Client, listener Listener, notifier notify.Notifier, logger *slog.Logger) (*Service, error) {
	bindings, err := BindingsFromConfig(cfg.Bindings)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		machine:  NewMachine(bindings),
		listener: listener,
		notifier: notifier,
		events:   make(chan queuedEvent, 64),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With(slog.String("component", "hotkey-service")),
	}, nil
}

func (s *Service) Start() error {
	s.healthy.Store(true)
	s.wg.Add(2)
	go s.publishLoop()
	go s.runLoop()
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.healthy.Load() }

// Handle feeds one key transition through the chord machine. Exported for
// the platform hook and for synthetic event sources in tests.
func (s *Service) Handle(evt KeyEvent) Decision {
	d := s.machine.Handle(evt)
	switch d.Action {
	case ActionStartMode:
		s.enqueue(protocol.SubjectModeStart, d)
	case ActionEndMode:
		s.enqueue(protocol.SubjectModeEnd, d)
	}
	if d.Dropped {
		s.logger.Debug("overlapping chord dropped")
	}
	return d
}

// enqueue hands an event to the publisher goroutine. The queue drops rather
// than blocks: hook latency outranks delivery of a keypress burst.
func (s *Service) enqueue(subject string, d Decision) {
	evt := protocol.ModeEvent{Mode: d.Mode, Chord: d.Chord, Timestamp: time.Now()}
	select {
	case s.events <- queuedEvent{subject: subject, event: evt}:
	default:
		s.logger.Warn("hotkey event queue full, dropping event", slog.String("subject", subject))
	}
}

func (s *Service) publishLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case q := <-s.events:
			data, err := json.Marshal(q.event)
			if err != nil {
				s.logger.Warn("marshal mode event", slog.String("error", err.Error()))
				continue
			}
			if err := s.bus.Conn().Publish(q.subject, data); err != nil {
				s.logger.Warn("publish mode event",
					slog.String("subject", q.subject),
					slog.String("error", err.Error()))
			}
		}
	}
}

// runLoop keeps the OS hook alive. Failures restart it with exponential
// backoff up to the configured cap; a listener that stayed up for a while
// earns a fresh budget. Past the cap the user is told hotkeys are gone and
// the service reports unhealthy.
func (s *Service) runLoop() {
	defer s.wg.Done()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(s.cfg.RestartInitialMS) * time.Millisecond
	attempts := 0
	for {
		started := time.Now()
		err := s.listener.Run(s.ctx, s.Handle)
		if s.ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrUnsupported) {
			s.healthy.Store(false)
			s.logger.Info("global hotkeys not available on this platform")
			return
		}
		s.machine.Reset()
		if time.Since(started) > time.Minute {
			attempts = 0
			policy.Reset()
		}
		attempts++
		if attempts > s.cfg.RestartMaxAttempts {
			s.healthy.Store(false)
			s.logger.Error("hotkey listener failed permanently",
				slog.Int("attempts", attempts-1),
				slog.String("error", errString(err)))
			s.notifier.Error("Hotkeys unavailable",
				"The keyboard hook could not be restarted. Chords will not work until the daemon restarts.")
			return
		}
		wait := policy.NextBackOff()
		s.logger.Warn("hotkey listener stopped, restarting",
			slog.Int("attempt", attempts),
			slog.Duration("backoff", wait),
			slog.String("error", errString(err)))
		select {
		case <-time.After(wait):
		case <-s.ctx.Done():
			return
		}
	}
}

func errString(err error) string {
	if err == nil {
		return "listener returned"
	}
	return err.Error()
}
