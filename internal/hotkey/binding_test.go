package hotkey

import (
	"strings"
	"testing"
)

func TestParseChord(t *testing.T) {
	cases := []struct {
		chord string
		mods  Modifiers
		key   Key
	}{
		{"F1", 0, 0x70},
		{"f12", 0, 0x7B},
		{"Shift+F2", ModShift, 0x71},
		{"Ctrl+Alt+V", ModCtrl | ModAlt, 'V'},
		{"ctrl + space", ModCtrl, 0x20},
		{"Win+Insert", ModWin, 0x2D},
		{"shift+9", ModShift, '9'},
	}
	for _, tc := range cases {
		mods, key, err := ParseChord(tc.chord)
		if err != nil {
			t.Fatalf("ParseChord(%q): %v", tc.chord, err)
		}
		if mods != tc.mods || key != tc.key {
			t.Fatalf("ParseChord(%q) = (0x%X, 0x%X), want (0x%X, 0x%X)",
				tc.chord, mods, key, tc.mods, tc.key)
		}
	}
}

func TestParseChordRejectsBadInput(t *testing.T) {
	for _, chord := range []string{"", "Bogus+F1", "F25", "Shift+", "Ctrl+Fn"} {
		if _, _, err := ParseChord(chord); err == nil {
			t.Fatalf("expected error for %q", chord)
		}
	}
}

func TestBindingsFromConfig(t *testing.T) {
	bindings, err := BindingsFromConfig(map[string]string{
		"transcribe": "F1",
		"prompt_llm": "F2",
	})
	if err != nil {
		t.Fatalf("bindings: %v", err)
	}
	if len(bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(bindings))
	}
	for _, b := range bindings {
		if b.Chord() == "" {
			t.Fatal("binding lost its chord text")
		}
	}
}

func TestBindingsFromConfigRejectsUnknownMode(t *testing.T) {
	if _, err := BindingsFromConfig(map[string]string{"telepathy": "F9"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestBindingsFromConfigRejectsDuplicateChord(t *testing.T) {
	_, err := BindingsFromConfig(map[string]string{
		"transcribe": "F1",
		"prompt_llm": "f1",
	})
	if err == nil {
		t.Fatal("expected error for duplicate chord")
	}
	if !strings.Contains(err.Error(), "bound to both") {
		t.Fatalf("unexpected error %v", err)
	}
}
