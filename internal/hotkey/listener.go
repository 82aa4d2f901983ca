package hotkey

import (
	"context"
	"errors"
)

// ErrUnsupported is reported on platforms without a global keyboard hook.
var ErrUnsupported = errors.New("hotkey: global hooks are only implemented on windows")

// Listener captures global key transitions and feeds them to handle,
// applying the suppression each Decision asks for. Run blocks until the
// context is cancelled or the platform hook fails.
type Listener interface {
	Run(ctx context.Context, handle func(KeyEvent) Decision) error
}
