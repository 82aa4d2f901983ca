package llm

import (
	"context"
	"sync"
)

// PromptCall records one CompletePrompt or CompleteVisionPrompt invocation.
type PromptCall struct {
	Text       string
	System     string
	Model      string
	ImageBytes int
}

// Mock returns a scripted completion and records every call.
type Mock struct {
	Reply string
	Err   error

	mu    sync.Mutex
	calls []PromptCall
}

func NewMock(reply string) *Mock {
	return &Mock{Reply: reply}
}

func (m *Mock) CompletePrompt(_ context.Context, text, systemPrompt, model string) (string, error) {
	m.record(PromptCall{Text: text, System: systemPrompt, Model: model})
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

func (m *Mock) CompleteVisionPrompt(_ context.Context, text string, image []byte, systemPrompt, model string) (string, error) {
	m.record(PromptCall{Text: text, System: systemPrompt, Model: model, ImageBytes: len(image)})
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

// Calls returns the recorded invocations.
func (m *Mock) Calls() []PromptCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PromptCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Mock) record(call PromptCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}
