package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Settings holds the mutable user preferences that survive restarts,
// as opposed to the static daemon configuration.
type Settings struct {
	Model     string  `json:"model"`
	Voice     string  `json:"voice"`
	Speed     float64 `json:"speed"`
	AutoPaste bool    `json:"auto_paste"`
}

// DefaultSettings returns the preferences used before the user saves any.
func DefaultSettings() Settings {
	return Settings{
		Model:     "openai/gpt-4o-mini",
		Voice:     "expr-voice-2-f",
		Speed:     1.0,
		AutoPaste: false,
	}
}

// SettingsStore defines persistence operations for user settings.
type SettingsStore interface {
	Load() (Settings, error)
	Save(Settings) error
}

// JSONSettingsStore persists settings in a single JSON file on disk.
type JSONSettingsStore struct {
	path string
}

// NewJSONSettingsStore creates a JSON-backed settings store.
func NewJSONSettingsStore(path string) *JSONSettingsStore {
	return &JSONSettingsStore{path: path}
}

// Load reads settings from disk or returns defaults when missing.
func (s *JSONSettingsStore) Load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Save writes settings as indented JSON and creates parent directories.
func (s *JSONSettingsStore) Save(settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
