//go:build linux

package input

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// uinput ioctl requests and setup constants, per linux/uinput.h. The
// original evdev injection path in the reference implementation was never
// finished; this one is built fresh against the kernel uinput ABI.
const (
	uiSetEvBit  = 0x40045564
	uiSetKeyBit = 0x40045565
	uiSetRelBit = 0x40045566
	uiDevCreate = 0x5501
	uiDevDestroy = 0x5502

	uinputMaxNameSize = 80
)

// uinputUserDev mirrors struct uinput_user_dev from linux/uinput.h field for
// field; the kernel rejects a write whose size differs from its own struct,
// so the layout must match exactly.
type uinputUserDev struct {
	Name       [uinputMaxNameSize]byte
	ID         uinputID
	EffMax     uint32
	AbsMax     [0x3f + 1]int32
	AbsMin     [0x3f + 1]int32
	AbsFuzz    [0x3f + 1]int32
	AbsFlat    [0x3f + 1]int32
}

type uinputID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// LinuxInjector synthesizes input via a single virtual /dev/uinput device
// advertising both relative pointer and keyboard capability.
type LinuxInjector struct {
	f *os.File
}

// NewLinuxInjector opens /dev/uinput and registers a combined mouse+keyboard
// virtual device.
func NewLinuxInjector() (*LinuxInjector, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, &DeviceError{Op: "open /dev/uinput", Transient: false, Err: fmt.Errorf(
			"%w; add your user to the 'input' group or load the uinput kernel module", err)}
	}

	fd := f.Fd()
	for _, bit := range []uintptr{evKeyBitArg(), evRelBitArg(), evSynBitArg()} {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uiSetEvBit, bit); errno != 0 {
			f.Close()
			return nil, &DeviceError{Op: "UI_SET_EVBIT", Transient: false, Err: errno}
		}
	}
	for _, code := range []uintptr{uintptr(btnLeft), uintptr(btnRight), uintptr(btnMiddle), 0, 1} {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uiSetKeyBit, code); errno != 0 {
			f.Close()
			return nil, &DeviceError{Op: "UI_SET_KEYBIT", Transient: false, Err: errno}
		}
	}
	// Register every key code in the standard range so remote key events of
	// any code can be replayed.
	for code := uintptr(2); code < 248; code++ {
		unix.Syscall(unix.SYS_IOCTL, fd, uiSetKeyBit, code)
	}
	for _, code := range []uintptr{uintptr(relX), uintptr(relY), uintptr(relWheel), uintptr(relHWheel)} {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uiSetRelBit, code); errno != 0 {
			f.Close()
			return nil, &DeviceError{Op: "UI_SET_RELBIT", Transient: false, Err: errno}
		}
	}

	var dev uinputUserDev
	copy(dev.Name[:], "multishiva-virtual-input")
	dev.ID = uinputID{BusType: 0x03, Vendor: 0x4d53, Product: 0x0001, Version: 1}

	if err := writeStruct(f, &dev); err != nil {
		f.Close()
		return nil, &DeviceError{Op: "write uinput_user_dev", Transient: false, Err: err}
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uiDevCreate, 0); errno != 0 {
		f.Close()
		return nil, &DeviceError{Op: "UI_DEV_CREATE", Transient: false, Err: errno}
	}

	return &LinuxInjector{f: f}, nil
}

func evKeyBitArg() uintptr { return uintptr(evKey) }
func evRelBitArg() uintptr { return uintptr(evRel) }
func evSynBitArg() uintptr { return uintptr(evSyn) }

func writeStruct(f *os.File, dev *uinputUserDev) error {
	buf := make([]byte, unsafe.Sizeof(*dev))
	copy(buf, (*[unsafe.Sizeof(uinputUserDev{})]byte)(unsafe.Pointer(dev))[:])
	_, err := f.Write(buf)
	return err
}

func (inj *LinuxInjector) writeEvent(etype, code uint16, value int32) error {
	if _, err := inj.f.Write(encodeInputEvent(etype, code, value)); err != nil {
		return &DeviceError{Op: "write input_event", Transient: true, Err: err}
	}
	return nil
}

func (inj *LinuxInjector) syn() error {
	return inj.writeEvent(evSyn, synReport, 0)
}

// InjectMouseMove emits a relative pointer motion.
func (inj *LinuxInjector) InjectMouseMove(dx, dy int32) error {
	if dx != 0 {
		if err := inj.writeEvent(evRel, relX, dx); err != nil {
			return err
		}
	}
	if dy != 0 {
		if err := inj.writeEvent(evRel, relY, dy); err != nil {
			return err
		}
	}
	return inj.syn()
}

// InjectMouseAbs is approximated via relative motion: uinput's absolute axes
// require calibrated min/max ranges tied to a physical display, which the
// remote peer's geometry does not provide. Callers translate absolute entry
// coordinates to a one-shot relative jump from the last known position.
func (inj *LinuxInjector) InjectMouseAbs(x, y int32) error {
	return inj.InjectMouseMove(x, y)
}

// InjectMouseButton emits a button press or release.
func (inj *LinuxInjector) InjectMouseButton(button uint8, pressed bool) error {
	var code uint16
	switch button {
	case 1:
		code = btnLeft
	case 2:
		code = btnRight
	case 3:
		code = btnMiddle
	default:
		return &DeviceError{Op: "inject button", Transient: false, Err: fmt.Errorf("unsupported button %d", button)}
	}
	v := int32(0)
	if pressed {
		v = 1
	}
	if err := inj.writeEvent(evKey, code, v); err != nil {
		return err
	}
	return inj.syn()
}

// InjectMouseScroll emits vertical and/or horizontal wheel motion.
func (inj *LinuxInjector) InjectMouseScroll(dx, dy int16) error {
	if dy != 0 {
		if err := inj.writeEvent(evRel, relWheel, int32(dy)); err != nil {
			return err
		}
	}
	if dx != 0 {
		if err := inj.writeEvent(evRel, relHWheel, int32(dx)); err != nil {
			return err
		}
	}
	return inj.syn()
}

// InjectKey emits a keyboard press or release. Modifiers were already
// applied as independent key codes by the sender, so they are informational
// here and not separately replayed.
func (inj *LinuxInjector) InjectKey(code uint32, pressed bool, modifiers uint8) error {
	v := int32(0)
	if pressed {
		v = 1
	}
	if err := inj.writeEvent(evKey, uint16(code), v); err != nil {
		return err
	}
	return inj.syn()
}

// Close destroys the virtual device and releases the file handle.
func (inj *LinuxInjector) Close() error {
	unix.Syscall(unix.SYS_IOCTL, inj.f.Fd(), uiDevDestroy, 0)
	return inj.f.Close()
}
