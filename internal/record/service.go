package record

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/bus"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/notify"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/protocol"
)

// Service bridges hotkey mode events to the session manager. Mode ends are
// handled on background tasks so buffer flushing never stalls the event
// loop.
type Service struct {
	bus      *bus.Client
	manager  *Manager
	notifier notify.Notifier
	subStart *nats.Subscription
	subEnd   *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewService(parent context.Context, busClient *bus.Client, manager *Manager, notifier notify.Notifier, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:      busClient,
		manager:  manager,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With(slog.String("component", "record-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectModeStart, s.handleModeStart)
	if err != nil {
		return err
	}
	s.subStart = sub

	subEnd, err := s.bus.Conn().Subscribe(protocol.SubjectModeEnd, s.handleModeEnd)
	if err != nil {
		s.subStart.Drain()
		return err
	}
	s.subEnd = subEnd
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.subStart != nil {
		_ = s.subStart.Drain()
	}
	if s.subEnd != nil {
		_ = s.subEnd.Drain()
	}
	s.manager.Cancel()
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.subStart != nil && s.subEnd != nil }

func (s *Service) handleModeStart(msg *nats.Msg) {
	var evt protocol.ModeEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		s.logger.Warn("invalid mode event", slog.String("error", err.Error()))
		return
	}
	if _, err := s.manager.Start(s.ctx, evt.Mode); err != nil {
		if errors.Is(err, ErrSessionActive) {
			s.logger.Debug("capture already active", slog.String("mode", string(evt.Mode)))
			return
		}
		s.publishFailure(evt.Mode, err)
		return
	}
	s.notifier.CaptureStarted()
}

func (s *Service) handleModeEnd(msg *nats.Msg) {
	var evt protocol.ModeEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		s.logger.Warn("invalid mode event", slog.String("error", err.Error()))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		captured, err := s.manager.Stop(s.ctx)
		if errors.Is(err, ErrNoSession) {
			return
		}
		s.notifier.CaptureStopped()
		if err != nil {
			s.publishFailure(evt.Mode, err)
			return
		}
		s.publish(protocol.SubjectSessionCaptured, captured)
	}()
}

func (s *Service) publishFailure(mode protocol.Mode, cause error) {
	s.publish(protocol.SubjectSessionFailed, protocol.SessionFailed{
		Mode:      mode,
		Reason:    cause.Error(),
		Timestamp: time.Now(),
	})
}

func (s *Service) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("marshal event", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("publish failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}
