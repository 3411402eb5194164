//go:build linux

package input

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux input event types and a small subset of codes, per
// /usr/include/linux/input-event-codes.h.
const (
	evSyn uint16 = 0x00
	evKey uint16 = 0x01
	evRel uint16 = 0x02
	evAbs uint16 = 0x03

	synReport uint16 = 0x00

	relX     uint16 = 0x00
	relY     uint16 = 0x01
	relWheel uint16 = 0x08
	relHWheel uint16 = 0x06

	btnLeft   uint16 = 0x110
	btnRight  uint16 = 0x111
	btnMiddle uint16 = 0x112
)

// ioctl request encoding, the Linux _IOC macro.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocDirBits  = 2

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uint32) uintptr {
	return uintptr((dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift))
}

// evioCGrab is EVIOCGRAB = _IOW('E', 0x90, int); a nonzero value grabs the
// device exclusively, zero releases it.
func evioCGrab() uintptr {
	return ioc(iocWrite, uint32('E'), 0x90, uint32(unsafe.Sizeof(int32(0))))
}

func ioctlGrab(fd int, grab bool) error {
	var v int32
	if grab {
		v = 1
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), evioCGrab(), uintptr(unsafe.Pointer(&v)))
	if errno != 0 {
		return errno
	}
	return nil
}

// evMax is EV_MAX from input-event-codes.h, the highest event type number.
const evMax = 0x1f

// evioCGBit is EVIOCGBIT(ev, len) = _IOR('E', 0x20+ev, char[len]); it fills
// buf with a bitmask of the codes the device supports for event type ev.
// Passing ev=0 asks for the set of event types (EV_KEY, EV_REL, ...) the
// device exposes at all.
func evioCGBit(ev, length uint32) uintptr {
	return ioc(iocRead, uint32('E'), 0x20+ev, length)
}

func ioctlBits(fd int, ev uint32, nbytes int) ([]byte, error) {
	buf := make([]byte, nbytes)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), evioCGBit(ev, uint32(nbytes)), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return nil, errno
	}
	return buf, nil
}

func bitSet(bits []byte, n uint16) bool {
	idx := n / 8
	if int(idx) >= len(bits) {
		return false
	}
	return bits[idx]&(1<<(n%8)) != 0
}

// hasUsableCapability reports whether the device backing fd exposes key
// events (keyboards, mouse buttons) or relative/absolute pointer axes (mice,
// touchpads, tablets). LED, sound, and force-feedback-only nodes expose
// neither and are skipped.
func hasUsableCapability(fd int) bool {
	evBits, err := ioctlBits(fd, 0, (evMax/8)+1)
	if err != nil {
		return false
	}
	return bitSet(evBits, evKey) || bitSet(evBits, evRel) || bitSet(evBits, evAbs)
}

// keyMax is KEY_MAX from input-event-codes.h.
const keyMax = 0x2ff
const keyStateBytes = (keyMax / 8) + 1

// evioCGKey is EVIOCGKEY(len) = _IOR('E', 0x18, char[len]); it reports which
// keys are currently held down.
func evioCGKey(length uint32) uintptr {
	return ioc(iocRead, uint32('E'), 0x18, length)
}

func ioctlKeyState(fd int, nbytes int) ([]byte, error) {
	buf := make([]byte, nbytes)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), evioCGKey(uint32(nbytes)), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return nil, errno
	}
	return buf, nil
}

func anyBitSet(bits []byte) bool {
	for _, b := range bits {
		if b != 0 {
			return true
		}
	}
	return false
}

// evdevEventParser parses a raw input_event byte stream in the 24-byte
// (64-bit timeval) layout. The 16-byte layout of 32-bit timeval kernels is
// not detected or parsed.
type evdevEventParser struct {
	buf []byte
	sz  int
}

func (p *evdevEventParser) feed(chunk []byte, cb func(etype, code uint16, value int32)) {
	p.buf = append(p.buf, chunk...)
	if p.sz == 0 {
		if len(p.buf) >= 24 {
			p.sz = 24
		} else {
			return
		}
	}
	for len(p.buf) >= p.sz {
		ev := p.buf[:p.sz]
		p.buf = p.buf[p.sz:]
		etype := binary.LittleEndian.Uint16(ev[16:18])
		code := binary.LittleEndian.Uint16(ev[18:20])
		value := int32(binary.LittleEndian.Uint32(ev[20:24]))
		cb(etype, code, value)
	}
}

// encodeInputEvent serializes a synthetic input_event in the 24-byte
// (64-bit timeval) layout that modern kernels use.
func encodeInputEvent(etype, code uint16, value int32) []byte {
	buf := make([]byte, 24)
	// offsets [0:16) are the timeval; the kernel fills in the real time on
	// write to /dev/uinput, so we leave it zeroed.
	binary.LittleEndian.PutUint16(buf[16:18], etype)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
	return buf
}
