//go:build windows

package input

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	inputMouse    = 0
	inputKeyboard = 1

	mouseEventMove       = 0x0001
	mouseEventAbsolute   = 0x8000
	mouseEventLeftDown   = 0x0002
	mouseEventLeftUp     = 0x0004
	mouseEventRightDown  = 0x0008
	mouseEventRightUp    = 0x0010
	mouseEventMiddleDown = 0x0020
	mouseEventMiddleUp   = 0x0040
	mouseEventWheel      = 0x0800
	mouseEventHWheel     = 0x1000

	keyEventKeyUp = 0x0002
)

type mouseInput struct {
	Dx, Dy      int32
	MouseData   uint32
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
}

type keybdInput struct {
	Vk          uint16
	Scan        uint16
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
}

// winInput mirrors the tagged INPUT union; the padding keeps every variant's
// layout aligned regardless of which member SendInput reads.
type winInput struct {
	Type uint32
	_    uint32
	Data [24]byte
}

var (
	user32Inj        = windows.NewLazySystemDLL("user32.dll")
	procSendInput    = user32Inj.NewProc("SendInput")
)

// WindowsInjector synthesizes events via the SendInput API.
type WindowsInjector struct {
	mu sync.Mutex
}

func NewWindowsInjector() (*WindowsInjector, error) {
	return &WindowsInjector{}, nil
}

func sendMouseInput(flags uint32, dx, dy int32, mouseData uint32) error {
	in := winInput{Type: inputMouse}
	mi := (*mouseInput)(unsafe.Pointer(&in.Data[0]))
	mi.Dx, mi.Dy = dx, dy
	mi.MouseData = mouseData
	mi.DwFlags = flags

	ret, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	if ret == 0 {
		return &DeviceError{Op: "SendInput(mouse)", Transient: true, Err: fmt.Errorf("%v", err)}
	}
	return nil
}

func sendKeyInput(vk uint16, flags uint32) error {
	in := winInput{Type: inputKeyboard}
	ki := (*keybdInput)(unsafe.Pointer(&in.Data[0]))
	ki.Vk = vk
	ki.DwFlags = flags

	ret, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	if ret == 0 {
		return &DeviceError{Op: "SendInput(keyboard)", Transient: true, Err: fmt.Errorf("%v", err)}
	}
	return nil
}

// InjectMouseMove sends relative pointer motion.
func (inj *WindowsInjector) InjectMouseMove(dx, dy int32) error {
	return sendMouseInput(mouseEventMove, dx, dy, 0)
}

// InjectMouseAbs sends an absolute pointer placement in normalized
// 0-65535 coordinates, per the SendInput contract for MOUSEEVENTF_ABSOLUTE.
func (inj *WindowsInjector) InjectMouseAbs(x, y int32) error {
	return sendMouseInput(mouseEventMove|mouseEventAbsolute, x, y, 0)
}

// InjectMouseButton sends a button press or release.
func (inj *WindowsInjector) InjectMouseButton(button uint8, pressed bool) error {
	var flag uint32
	switch {
	case button == 1 && pressed:
		flag = mouseEventLeftDown
	case button == 1 && !pressed:
		flag = mouseEventLeftUp
	case button == 2 && pressed:
		flag = mouseEventRightDown
	case button == 2 && !pressed:
		flag = mouseEventRightUp
	case button == 3 && pressed:
		flag = mouseEventMiddleDown
	case button == 3 && !pressed:
		flag = mouseEventMiddleUp
	default:
		return &DeviceError{Op: "inject button", Transient: false, Err: fmt.Errorf("unsupported button %d", button)}
	}
	return sendMouseInput(flag, 0, 0, 0)
}

// InjectMouseScroll sends vertical and/or horizontal wheel motion.
func (inj *WindowsInjector) InjectMouseScroll(dx, dy int16) error {
	if dy != 0 {
		if err := sendMouseInput(mouseEventWheel, 0, 0, uint32(int32(dy)*120)); err != nil {
			return err
		}
	}
	if dx != 0 {
		if err := sendMouseInput(mouseEventHWheel, 0, 0, uint32(int32(dx)*120)); err != nil {
			return err
		}
	}
	return nil
}

// InjectKey sends a keyboard press or release by virtual-key code.
func (inj *WindowsInjector) InjectKey(code uint32, pressed bool, modifiers uint8) error {
	var flags uint32
	if !pressed {
		flags = keyEventKeyUp
	}
	return sendKeyInput(uint16(code), flags)
}

// Close is a no-op: SendInput holds no persistent handle.
func (inj *WindowsInjector) Close() error { return nil }
