package hotkey

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/bus"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/config"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/natsserver"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/notify"
	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBusClient(t *testing.T) *bus.Client {
	t.Helper()
	log := newLogger()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, log)
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// scriptedListener replays key events once, then either blocks until the
// context ends or fails fast to exercise the restart path.
type scriptedListener struct {
	events   []KeyEvent
	failures int32
	runs     atomic.Int32
}

func (l *scriptedListener) Run(ctx context.Context, handle func(KeyEvent) Decision) error {
	if l.runs.Add(1) <= l.failures {
		return errors.New("hook install failed")
	}
	for _, evt := range l.events {
		handle(evt)
	}
	<-ctx.Done()
	return ctx.Err()
}

func testHotkeysConfig() config.HotkeysConfig {
	return config.HotkeysConfig{
		Bindings: map[string]string{
			"transcribe": "F1",
			"prompt_llm": "F2",
		},
		RestartMaxAttempts: 2,
		RestartInitialMS:   1,
	}
}

func TestServicePublishesModeEventsInOrder(t *testing.T) {
	client := newBusClient(t)
	sub, err := client.Conn().SubscribeSync("hotkey.mode.*")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	listener := &scriptedListener{events: []KeyEvent{
		{Key: keyF1, Down: true},
		{Key: keyF1, Down: false},
	}}
	svc, err := NewService(context.Background(), testHotkeysConfig(), client, listener, notify.NewMemory(), newLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Close()

	first, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("waiting for start event: %v", err)
	}
	if first.Subject != protocol.SubjectModeStart {
		t.Fatalf("expected %s first, got %s", protocol.SubjectModeStart, first.Subject)
	}
	var evt protocol.ModeEvent
	if err := json.Unmarshal(first.Data, &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Mode != protocol.ModeTranscribe || evt.Chord != "F1" {
		t.Fatalf("unexpected event %+v", evt)
	}

	second, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("waiting for end event: %v", err)
	}
	if second.Subject != protocol.SubjectModeEnd {
		t.Fatalf("expected %s second, got %s", protocol.SubjectModeEnd, second.Subject)
	}
}

func TestServiceGivesUpAfterRestartBudget(t *testing.T) {
	client := newBusClient(t)
	listener := &scriptedListener{failures: 1 << 20}
	notifier := notify.NewMemory()

	svc, err := NewService(context.Background(), testHotkeysConfig(), client, listener, notifier, newLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Close()

	deadline := time.After(5 * time.Second)
	for len(notifier.Messages()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for give-up notification")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if svc.Healthy() {
		t.Fatal("service must report unhealthy after giving up")
	}
	// Initial run plus the two allowed restarts.
	if got := listener.runs.Load(); got != 3 {
		t.Fatalf("expected 3 listener runs, got %d", got)
	}
}

func TestServiceRecoversWhenListenerComesBack(t *testing.T) {
	client := newBusClient(t)
	listener := &scriptedListener{failures: 1}

	svc, err := NewService(context.Background(), testHotkeysConfig(), client, listener, notify.NewMemory(), newLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Close()

	deadline := time.After(5 * time.Second)
	for listener.runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for restart")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if !svc.Healthy() {
		t.Fatal("service should stay healthy after a successful restart")
	}
}
