//go:build windows

package hotkey

import (
	"context"
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	whKeyboardLL  = 13
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmQuit        = 0x0012
	llkhfInjected = 0x10

	vkShift   = 0x10
	vkControl = 0x11
	vkMenu    = 0x12
	vkLWin    = 0x5B
	vkRWin    = 0x5C
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procGetAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
)

type kbdllHookStruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type hookListener struct{}

// NewListener returns the WH_KEYBOARD_LL based listener.
func NewListener() Listener { return &hookListener{} }

// Run installs the low-level keyboard hook and pumps messages on a locked OS
// thread until ctx is done or the pump fails. Injected events pass straight
// through so the paste synthesizer cannot re-enter the hook.
func (h *hookListener) Run(ctx context.Context, handle func(KeyEvent) Decision) error {
	errCh := make(chan error, 1)
	threadCh := make(chan uint32, 1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		callback := windows.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
			if int32(nCode) < 0 {
				ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
				return ret
			}
			k := (*kbdllHookStruct)(unsafe.Pointer(lParam))
			if k.flags&llkhfInjected != 0 {
				ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
				return ret
			}
			var down bool
			switch wParam {
			case wmKeyDown, wmSysKeyDown:
				down = true
			case wmKeyUp, wmSysKeyUp:
				down = false
			default:
				ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
				return ret
			}
			evt := KeyEvent{Key: Key(k.vkCode), Mods: currentModifiers(), Down: down}
			if handle(evt).Suppress {
				return 1
			}
			ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
			return ret
		})

		hook, _, lastErr := procSetWindowsHookExW.Call(uintptr(whKeyboardLL), callback, 0, 0)
		if hook == 0 {
			errCh <- fmt.Errorf("hotkey: SetWindowsHookExW: %w", lastErr)
			return
		}
		defer procUnhookWindowsHookEx.Call(hook)

		threadCh <- windows.GetCurrentThreadId()

		var msg struct {
			Hwnd    uintptr
			Message uint32
			WParam  uintptr
			LParam  uintptr
			Time    uint32
			PtX     int32
			PtY     int32
		}
		for {
			ret, _, lastErr := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			switch int32(ret) {
			case -1:
				errCh <- fmt.Errorf("hotkey: GetMessageW: %w", lastErr)
				return
			case 0: // WM_QUIT
				errCh <- nil
				return
			}
		}
	}()

	select {
	case err := <-errCh:
		return err
	case tid := <-threadCh:
		select {
		case <-ctx.Done():
			procPostThreadMessageW.Call(uintptr(tid), uintptr(wmQuit), 0, 0)
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			return err
		}
	}
}

// currentModifiers reads the asynchronous key state for the four modifier
// groups. Left and right variants collapse into one flag.
func currentModifiers() Modifiers {
	var mods Modifiers
	if keyHeld(vkMenu) {
		mods |= ModAlt
	}
	if keyHeld(vkControl) {
		mods |= ModCtrl
	}
	if keyHeld(vkShift) {
		mods |= ModShift
	}
	if keyHeld(vkLWin) || keyHeld(vkRWin) {
		mods |= ModWin
	}
	return mods
}

func keyHeld(vk uintptr) bool {
	state, _, _ := procGetAsyncKeyState.Call(vk)
	return state&0x8000 != 0
}
