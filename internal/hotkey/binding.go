package hotkey

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/MushroomFleet/Careless-Whisper-V3-sub000/internal/protocol"
)

// Modifiers is a bitmask of held modifier keys. The bit layout matches the
// Win32 hotkey modifier flags so the platform hook can build masks directly.
type Modifiers uint8

const (
	ModAlt Modifiers = 1 << iota
	ModCtrl
	ModShift
	ModWin
)

// Key is a Win32 virtual-key code. Letter and digit keys share their ASCII
// uppercase values on every platform we parse for.
type Key uint16

// Binding ties one chord to one capture mode.
type Binding struct {
	Mode  protocol.Mode
	Mods  Modifiers
	Key   Key
	chord string
}

// Chord returns the binding's original textual form.
func (b Binding) Chord() string { return b.chord }

// ParseChord accepts strings like "F2", "Shift+F3" or "Ctrl+Alt+V" and
// returns the modifier mask and primary key.
func ParseChord(text string) (Modifiers, Key, error) {
	parts := strings.Split(text, "+")
	if len(parts) == 0 || strings.TrimSpace(text) == "" {
		return 0, 0, fmt.Errorf("hotkey: empty chord")
	}
	var mods Modifiers
	for _, part := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "alt", "menu":
			mods |= ModAlt
		case "ctrl", "control":
			mods |= ModCtrl
		case "shift":
			mods |= ModShift
		case "win", "meta", "super":
			mods |= ModWin
		default:
			return 0, 0, fmt.Errorf("hotkey: unknown modifier %q in %q", part, text)
		}
	}
	key, err := parseKey(strings.ToLower(strings.TrimSpace(parts[len(parts)-1])))
	if err != nil {
		return 0, 0, fmt.Errorf("hotkey: chord %q: %w", text, err)
	}
	return mods, key, nil
}

func parseKey(token string) (Key, error) {
	if token == "" {
		return 0, fmt.Errorf("missing primary key")
	}
	if strings.HasPrefix(token, "f") && len(token) > 1 {
		if n, err := strconv.Atoi(token[1:]); err == nil && n >= 1 && n <= 24 {
			return Key(0x70 + n - 1), nil // VK_F1 = 0x70
		}
	}
	if len(token) == 1 {
		ch := token[0]
		switch {
		case ch >= 'a' && ch <= 'z':
			return Key(ch - 'a' + 'A'), nil
		case ch >= '0' && ch <= '9':
			return Key(ch), nil
		}
	}
	named := map[string]Key{
		"esc":        0x1B,
		"escape":     0x1B,
		"space":      0x20,
		"tab":        0x09,
		"insert":     0x2D,
		"delete":     0x2E,
		"home":       0x24,
		"end":        0x23,
		"pageup":     0x21,
		"pagedown":   0x22,
		"pause":      0x13,
		"scrolllock": 0x91,
	}
	if vk, ok := named[token]; ok {
		return vk, nil
	}
	return 0, fmt.Errorf("unsupported key token %q", token)
}

// BindingsFromConfig resolves the mode to chord table from configuration.
// Duplicate chords are rejected because the dispatcher could never tell the
// two modes apart.
func BindingsFromConfig(table map[string]string) ([]Binding, error) {
	out := make([]Binding, 0, len(table))
	for modeName, chord := range table {
		mode := protocol.Mode(modeName)
		if !mode.Valid() {
			return nil, fmt.Errorf("hotkey: unknown mode %q", modeName)
		}
		mods, key, err := ParseChord(chord)
		if err != nil {
			return nil, err
		}
		out = append(out, Binding{Mode: mode, Mods: mods, Key: key, chord: chord})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].chord < out[j].chord })
	for i := 1; i < len(out); i++ {
		for j := 0; j < i; j++ {
			if out[i].Key == out[j].Key && out[i].Mods == out[j].Mods {
				return nil, fmt.Errorf("hotkey: chord %q bound to both %s and %s",
					out[i].chord, out[j].Mode, out[i].Mode)
			}
		}
	}
	return out, nil
}
