package clipboard

import (
	"runtime"
	"time"

	"github.com/micmonay/keybd_event"
)

// Paste sends the platform paste shortcut so a freshly written clipboard
// lands in the focused application. The clipboard write must have settled
// before calling; a short delay is applied for slow clipboard managers.
func Paste() error {
	time.Sleep(80 * time.Millisecond)

	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_V)
	return kb.Launching()
}
