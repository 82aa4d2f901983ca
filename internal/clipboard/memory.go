package clipboard

import "sync"

// Memory is an in-process clipboard used by tests and headless runs.
type Memory struct {
	mu   sync.Mutex
	text string
}

func NewMemory(initial string) *Memory {
	return &Memory{text: initial}
}

func (m *Memory) ReadAll() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *Memory) WriteAll(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	return nil
}
