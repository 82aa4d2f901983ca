//go:build !windows

package hotkey

import "context"

type stubListener struct{}

// NewListener returns a listener that fails immediately. The daemon still
// runs so the control CLI and pipelines stay usable for development.
func NewListener() Listener { return stubListener{} }

func (stubListener) Run(ctx context.Context, handle func(KeyEvent) Decision) error {
	return ErrUnsupported
}
