package tts

import (
	"context"
	"sync"
)

// Mock is a canned engine for tests and development wiring.
type Mock struct {
	EngineName  string
	Unavailable bool
	Audio       []byte
	Err         error

	mu       sync.Mutex
	probes   int
	requests []TtsRequest
}

func NewMock(name string, audio []byte) *Mock {
	return &Mock{EngineName: name, Audio: audio}
}

func (m *Mock) Name() string { return m.EngineName }

func (m *Mock) Available(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes++
	return !m.Unavailable
}

func (m *Mock) Synthesize(ctx context.Context, req TtsRequest) (TtsResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.Err != nil {
		return TtsResult{}, m.Err
	}
	return TtsResult{Success: true, AudioBytes: append([]byte(nil), m.Audio...)}, nil
}

// Probes reports how many times Available was consulted.
func (m *Mock) Probes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probes
}

// Requests returns every synthesis request seen so far.
func (m *Mock) Requests() []TtsRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TtsRequest(nil), m.requests...)
}
