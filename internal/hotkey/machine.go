package hotkey

import (
	"sync"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/protocol"
)

// KeyEvent is one key transition reported by the platform hook.
type KeyEvent struct {
	Key  Key
	Mods Modifiers
	Down bool
}

// Action is what a key transition means for the capture lifecycle.
type Action int

const (
	ActionNone Action = iota
	ActionStartMode
	ActionEndMode
)

// Decision tells the hook what to do with an event. Suppress keeps the
// keystroke away from the foreground application.
type Decision struct {
	Action   Action
	Mode     protocol.Mode
	Chord    string
	Suppress bool
	Dropped  bool
}

// Machine turns raw key transitions into mode starts and ends. A chord
// matches only on an exact modifier set, a mode ends when its primary key is
// released, and a second bound chord pressed mid-session is dropped without
// starting anything. Handle must stay cheap: the platform hook calls it
// synchronously and the OS watches hook latency.
type Machine struct {
	bindings []Binding

	mu        sync.Mutex
	active    *Binding
	swallowed map[Key]bool
}

func NewMachine(bindings []Binding) *Machine {
	return &Machine{
		bindings:  bindings,
		swallowed: make(map[Key]bool),
	}
}

func (m *Machine) Handle(evt KeyEvent) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if evt.Down {
		b := m.match(evt.Key, evt.Mods)
		if b == nil {
			// Key repeats of a held chord keep arriving with whatever
			// modifier drift the user introduced; keep suppressing them.
			if m.swallowed[evt.Key] {
				return Decision{Suppress: true}
			}
			return Decision{}
		}
		if m.active != nil {
			m.swallowed[evt.Key] = true
			return Decision{Suppress: true, Dropped: m.active.Key != evt.Key}
		}
		m.active = b
		m.swallowed[evt.Key] = true
		return Decision{Action: ActionStartMode, Mode: b.Mode, Chord: b.chord, Suppress: true}
	}

	if m.active != nil && evt.Key == m.active.Key {
		b := m.active
		m.active = nil
		delete(m.swallowed, evt.Key)
		return Decision{Action: ActionEndMode, Mode: b.Mode, Chord: b.chord, Suppress: true}
	}
	if m.swallowed[evt.Key] {
		delete(m.swallowed, evt.Key)
		return Decision{Suppress: true}
	}
	return Decision{}
}

// Active returns the mode currently held, if any.
func (m *Machine) Active() (protocol.Mode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", false
	}
	return m.active.Mode, true
}

// Reset clears chord state, used when the listener restarts and key-up
// events may have been lost.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = nil
	m.swallowed = make(map[Key]bool)
}

func (m *Machine) match(key Key, mods Modifiers) *Binding {
	for i := range m.bindings {
		if m.bindings[i].Key == key && m.bindings[i].Mods == mods {
			return &m.bindings[i]
		}
	}
	return nil
}
