package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/bus"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/notify"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/protocol"
)

// Service consumes captured sessions from the bus and runs them through the
// dispatcher. Each session runs on its own task so a slow model call never
// blocks the subscription.
type Service struct {
	bus         *bus.Client
	dispatcher  *Dispatcher
	notifier    notify.Notifier
	logger      *slog.Logger
	subCaptured *nats.Subscription
	subFailed   *nats.Subscription
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewService(parent context.Context, busClient *bus.Client, dispatcher *Dispatcher, notifier notify.Notifier, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:        busClient,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "dispatch-service")),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSessionCaptured, s.handleSessionCaptured)
	if err != nil {
		return err
	}
	s.subCaptured = sub

	subFailed, err := s.bus.Conn().Subscribe(protocol.SubjectSessionFailed, s.handleSessionFailed)
	if err != nil {
		s.subCaptured.Drain()
		return err
	}
	s.subFailed = subFailed
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.subCaptured != nil {
		_ = s.subCaptured.Drain()
	}
	if s.subFailed != nil {
		_ = s.subFailed.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.subCaptured != nil && s.subFailed != nil
}

func (s *Service) handleSessionCaptured(msg *nats.Msg) {
	var session protocol.SessionCaptured
	if err := json.Unmarshal(msg.Data, &session); err != nil {
		s.logger.Warn("dispatch failed to decode session", slogError(err))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result := s.dispatcher.Run(s.ctx, session)
		if err := s.publishResult(result); err != nil {
			s.logger.Warn("dispatch failed to publish result", slogError(err))
		}
	}()
}

func (s *Service) handleSessionFailed(msg *nats.Msg) {
	var failure protocol.SessionFailed
	if err := json.Unmarshal(msg.Data, &failure); err != nil {
		s.logger.Warn("dispatch failed to decode capture failure", slogError(err))
		return
	}
	s.logger.Info("capture failed",
		slog.String("mode", string(failure.Mode)),
		slog.String("reason", failure.Reason))
	s.notifier.Error("Recording failed", failure.Reason)
}

func (s *Service) publishResult(result protocol.PipelineResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	subject := protocol.SubjectPipelineResult
	if result.Error != "" {
		subject = protocol.SubjectPipelineFailed
	}
	return s.bus.Conn().Publish(subject, data)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
