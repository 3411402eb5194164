//go:build windows

package input

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmMouseMove   = 0x0200
	wmMouseWheel  = 0x020A
)

type msllhookstruct struct {
	Pt          struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type kbdllhookstruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx  = user32.NewProc("CallNextHookEx")
	procGetMessage      = user32.NewProc("GetMessageW")
)

// WindowsCapture installs low-level keyboard and mouse hooks. Both hooks run
// on the thread that called Start, which must pump a message loop for the
// hook callbacks to fire at all — this mirrors how WH_*_LL hooks behave on
// every Win32 input-remapping tool.
type WindowsCapture struct {
	mu        sync.Mutex
	events    chan RawEvent
	kbHook    uintptr
	mouseHook uintptr
	lastX     int32
	lastY     int32
	haveLast  bool
	stopping  chan struct{}
}

var activeWindowsCapture *WindowsCapture

func NewWindowsCapture() (*WindowsCapture, error) {
	return &WindowsCapture{events: make(chan RawEvent, 256)}, nil
}

func (c *WindowsCapture) Start() error {
	activeWindowsCapture = c
	c.stopping = make(chan struct{})

	kbHook, _, err := procSetWindowsHookEx.Call(uintptr(whKeyboardLL),
		windows.NewCallback(lowLevelKeyboardProc), 0, 0)
	if kbHook == 0 {
		return &DeviceError{Op: "SetWindowsHookExW(keyboard)", Transient: false, Err: fmt.Errorf("%v", err)}
	}
	c.kbHook = kbHook

	mouseHook, _, err := procSetWindowsHookEx.Call(uintptr(whMouseLL),
		windows.NewCallback(lowLevelMouseProc), 0, 0)
	if mouseHook == 0 {
		procUnhookWindowsHookEx.Call(c.kbHook)
		return &DeviceError{Op: "SetWindowsHookExW(mouse)", Transient: false, Err: fmt.Errorf("%v", err)}
	}
	c.mouseHook = mouseHook

	go c.messageLoop()
	return nil
}

func (c *WindowsCapture) messageLoop() {
	var msg struct {
		Hwnd    uintptr
		Message uint32
		WParam  uintptr
		LParam  uintptr
		Time    uint32
		Pt      struct{ X, Y int32 }
	}
	for {
		select {
		case <-c.stopping:
			return
		default:
		}
		procGetMessage.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
	}
}

func lowLevelKeyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	c := activeWindowsCapture
	if c != nil && nCode >= 0 {
		ks := (*kbdllhookstruct)(unsafe.Pointer(lParam))
		pressed := wParam == wmKeyDown
		c.emit(RawEvent{Type: EventKey, KeyCode: ks.VkCode, Pressed: pressed, Timestamp: time.Now()})
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func lowLevelMouseProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	c := activeWindowsCapture
	if c != nil && nCode >= 0 {
		ms := (*msllhookstruct)(unsafe.Pointer(lParam))
		now := time.Now()
		switch wParam {
		case wmMouseMove:
			c.mu.Lock()
			if c.haveLast {
				c.emit(RawEvent{Type: EventMouseMove, DX: ms.Pt.X - c.lastX, DY: ms.Pt.Y - c.lastY, Timestamp: now})
			}
			c.lastX, c.lastY = ms.Pt.X, ms.Pt.Y
			c.haveLast = true
			c.mu.Unlock()
		case wmLButtonDown:
			c.emit(RawEvent{Type: EventMouseButton, Button: 1, Pressed: true, Timestamp: now})
		case wmLButtonUp:
			c.emit(RawEvent{Type: EventMouseButton, Button: 1, Pressed: false, Timestamp: now})
		case wmRButtonDown:
			c.emit(RawEvent{Type: EventMouseButton, Button: 2, Pressed: true, Timestamp: now})
		case wmRButtonUp:
			c.emit(RawEvent{Type: EventMouseButton, Button: 2, Pressed: false, Timestamp: now})
		case wmMButtonDown:
			c.emit(RawEvent{Type: EventMouseButton, Button: 3, Pressed: true, Timestamp: now})
		case wmMButtonUp:
			c.emit(RawEvent{Type: EventMouseButton, Button: 3, Pressed: false, Timestamp: now})
		case wmMouseWheel:
			delta := int32(int16(ms.MouseData >> 16))
			c.emit(RawEvent{Type: EventMouseScroll, DY: delta, Timestamp: now})
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func (c *WindowsCapture) emit(e RawEvent) {
	select {
	case c.events <- e:
	default:
	}
}

func (c *WindowsCapture) Events() <-chan RawEvent { return c.events }

func (c *WindowsCapture) Stop() error {
	if c.stopping != nil {
		close(c.stopping)
	}
	if c.mouseHook != 0 {
		procUnhookWindowsHookEx.Call(c.mouseHook)
	}
	if c.kbHook != 0 {
		procUnhookWindowsHookEx.Call(c.kbHook)
	}
	activeWindowsCapture = nil
	return nil
}

// Grab is a no-op: Windows low-level hooks always observe events alongside
// the desktop, with no exclusive-acquire primitive like EVIOCGRAB.
func (c *WindowsCapture) Grab() error { return nil }

// Ungrab is a no-op; see Grab.
func (c *WindowsCapture) Ungrab() error { return nil }
