package notify

import "sync"

// Message is one recorded notification.
type Message struct {
	Level string
	Title string
	Body  string
}

// Memory records notifications for tests.
type Memory struct {
	mu       sync.Mutex
	messages []Message
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Info(title, message string) {
	m.append(Message{Level: "info", Title: title, Body: message})
}

func (m *Memory) Error(title, message string) {
	m.append(Message{Level: "error", Title: title, Body: message})
}

func (m *Memory) CaptureStarted() {
	m.append(Message{Level: "cue", Title: "capture-started"})
}

func (m *Memory) CaptureStopped() {
	m.append(Message{Level: "cue", Title: "capture-stopped"})
}

func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *Memory) append(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}
