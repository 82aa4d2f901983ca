package transcribe

import (
	"context"
	"sync"
)

// Mock returns a scripted transcript and records invocations.
type Mock struct {
	Result TranscriptionResult
	Err    error

	mu    sync.Mutex
	calls []string
}

func NewMock(text string) *Mock {
	return &Mock{Result: TranscriptionResult{FullText: text, Language: "en"}}
}

func (m *Mock) Transcribe(_ context.Context, audioPath string) (TranscriptionResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, audioPath)
	m.mu.Unlock()
	if m.Err != nil {
		return TranscriptionResult{}, m.Err
	}
	return m.Result, nil
}

// Calls returns the audio paths passed so far.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
