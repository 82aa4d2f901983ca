package tts

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrInterpreterNotFound is returned when no Python runtime can be located.
var ErrInterpreterNotFound = errors.New("tts: python interpreter not found")

// Locator resolves the Python runtime and bridge script used by the kitten
// engine. Lookup order mirrors the packaged layout: a runtime bundled next
// to the executable wins over well-known installs, which win over PATH.
type Locator struct {
	goos       string
	executable func() (string, error)
	stat       func(string) (os.FileInfo, error)
	glob       func(string) ([]string, error)
	lookPath   func(string) (string, error)
	getenv     func(string) string
}

func NewLocator() *Locator {
	return &Locator{
		goos:       runtime.GOOS,
		executable: os.Executable,
		stat:       os.Stat,
		glob:       filepath.Glob,
		lookPath:   exec.LookPath,
		getenv:     os.Getenv,
	}
}

// Interpreter returns the path of the Python runtime to execute the bridge
// with. An explicit override must resolve; otherwise candidates are tried in
// bundled, well-known, PATH order.
func (l *Locator) Interpreter(override string) (string, error) {
	if override != "" {
		if l.exists(override) {
			return override, nil
		}
		if path, err := l.lookPath(override); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("%w: configured interpreter %q missing", ErrInterpreterNotFound, override)
	}
	for _, candidate := range l.bundled() {
		if l.exists(candidate) {
			return candidate, nil
		}
	}
	for _, pattern := range l.wellKnown() {
		matches, err := l.glob(pattern)
		if err != nil {
			continue
		}
		for _, match := range matches {
			if l.exists(match) {
				return match, nil
			}
		}
	}
	for _, name := range []string{"python3", "python"} {
		if path, err := l.lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrInterpreterNotFound
}

// Script resolves the bridge script path. An explicit override must resolve;
// otherwise the scripts directory next to the executable is used.
func (l *Locator) Script(override string) (string, error) {
	if override != "" {
		if l.exists(override) {
			return override, nil
		}
		return "", fmt.Errorf("tts: bridge script %q missing", override)
	}
	exe, err := l.executable()
	if err != nil {
		return "", fmt.Errorf("tts: resolve executable: %w", err)
	}
	candidate := filepath.Join(filepath.Dir(exe), "scripts", "kitten_tts_bridge.py")
	if l.exists(candidate) {
		return candidate, nil
	}
	return "", fmt.Errorf("tts: bridge script not found at %s", candidate)
}

func (l *Locator) bundled() []string {
	exe, err := l.executable()
	if err != nil {
		return nil
	}
	dir := filepath.Dir(exe)
	if l.goos == "windows" {
		return []string{
			filepath.Join(dir, "python", "python.exe"),
			filepath.Join(dir, "runtime", "python.exe"),
		}
	}
	return []string{
		filepath.Join(dir, "python", "bin", "python3"),
		filepath.Join(dir, "runtime", "bin", "python3"),
	}
}

func (l *Locator) wellKnown() []string {
	switch l.goos {
	case "windows":
		var patterns []string
		if local := l.getenv("LOCALAPPDATA"); local != "" {
			patterns = append(patterns, filepath.Join(local, "Programs", "Python", "Python3*", "python.exe"))
		}
		return append(patterns, `C:\Python3*\python.exe`)
	case "darwin":
		return []string{
			"/opt/homebrew/bin/python3",
			"/usr/local/bin/python3",
			"/usr/bin/python3",
		}
	default:
		return []string{
			"/usr/local/bin/python3",
			"/usr/bin/python3",
		}
	}
}

func (l *Locator) exists(path string) bool {
	info, err := l.stat(path)
	return err == nil && !info.IsDir()
}
