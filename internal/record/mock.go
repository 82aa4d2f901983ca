package record

import (
	"context"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Mock writes a short silent clip on Start so session flow can run without a
// microphone. Samples controls the clip length; a negative value skips
// writing entirely to simulate a dead recorder.
type Mock struct {
	Samples int
	Err     error

	mu    sync.Mutex
	paths []string
	stops int
}

func NewMock(samples int) *Mock {
	return &Mock{Samples: samples}
}

func (m *Mock) Start(ctx context.Context, path string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	m.paths = append(m.paths, path)
	m.mu.Unlock()
	if m.Samples < 0 {
		return nil
	}
	return writeSilence(path, m.Samples)
}

func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

// Paths returns every output path the mock was started with.
func (m *Mock) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.paths...)
}

// Stops reports how many times Stop was called.
func (m *Mock) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// writeSilence encodes n samples of 16kHz mono silence as a WAV file.
func writeSilence(path string, n int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           make([]int, n),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
