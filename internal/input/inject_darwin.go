//go:build darwin

package input

/*
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation
#include <ApplicationServices/ApplicationServices.h>
*/
import "C"

import (
	"fmt"
	"sync"
)

// DarwinInjector synthesizes events via CGEventPost onto the combined
// session event tap.
type DarwinInjector struct {
	mu   sync.Mutex
	x, y float64
}

// NewDarwinInjector seeds the injector's tracked cursor position from the
// current pointer location so the first relative move is accurate.
func NewDarwinInjector() (*DarwinInjector, error) {
	ev := C.CGEventCreate(0)
	if ev == 0 {
		return nil, &DeviceError{Op: "CGEventCreate", Transient: true, Err: fmt.Errorf("failed to query pointer location")}
	}
	pt := C.CGEventGetLocation(ev)
	C.CFRelease(C.CFTypeRef(ev))
	return &DarwinInjector{x: float64(pt.x), y: float64(pt.y)}, nil
}

// InjectMouseMove posts a relative pointer motion.
func (inj *DarwinInjector) InjectMouseMove(dx, dy int32) error {
	inj.mu.Lock()
	inj.x += float64(dx)
	inj.y += float64(dy)
	pt := C.CGPointMake(C.CGFloat(inj.x), C.CGFloat(inj.y))
	inj.mu.Unlock()

	ev := C.CGEventCreateMouseEvent(0, C.kCGEventMouseMoved, pt, C.kCGMouseButtonLeft)
	if ev == 0 {
		return &DeviceError{Op: "CGEventCreateMouseEvent", Transient: true, Err: fmt.Errorf("failed to create move event")}
	}
	C.CGEventPost(C.kCGSessionEventTap, ev)
	C.CFRelease(C.CFTypeRef(ev))
	return nil
}

// InjectMouseAbs posts an absolute pointer placement, used on remote entry.
func (inj *DarwinInjector) InjectMouseAbs(x, y int32) error {
	inj.mu.Lock()
	inj.x, inj.y = float64(x), float64(y)
	pt := C.CGPointMake(C.CGFloat(inj.x), C.CGFloat(inj.y))
	inj.mu.Unlock()

	ev := C.CGEventCreateMouseEvent(0, C.kCGEventMouseMoved, pt, C.kCGMouseButtonLeft)
	if ev == 0 {
		return &DeviceError{Op: "CGEventCreateMouseEvent", Transient: true, Err: fmt.Errorf("failed to create move event")}
	}
	C.CGEventPost(C.kCGSessionEventTap, ev)
	C.CFRelease(C.CFTypeRef(ev))
	return nil
}

// InjectMouseButton posts a button press or release at the tracked position.
func (inj *DarwinInjector) InjectMouseButton(button uint8, pressed bool) error {
	inj.mu.Lock()
	pt := C.CGPointMake(C.CGFloat(inj.x), C.CGFloat(inj.y))
	inj.mu.Unlock()

	var eventType C.CGEventType
	var mouseButton C.CGMouseButton
	switch button {
	case 1:
		mouseButton = C.kCGMouseButtonLeft
		if pressed {
			eventType = C.kCGEventLeftMouseDown
		} else {
			eventType = C.kCGEventLeftMouseUp
		}
	case 2:
		mouseButton = C.kCGMouseButtonRight
		if pressed {
			eventType = C.kCGEventRightMouseDown
		} else {
			eventType = C.kCGEventRightMouseUp
		}
	default:
		return &DeviceError{Op: "inject button", Transient: false, Err: fmt.Errorf("unsupported button %d", button)}
	}

	ev := C.CGEventCreateMouseEvent(0, eventType, pt, mouseButton)
	if ev == 0 {
		return &DeviceError{Op: "CGEventCreateMouseEvent", Transient: true, Err: fmt.Errorf("failed to create button event")}
	}
	C.CGEventPost(C.kCGSessionEventTap, ev)
	C.CFRelease(C.CFTypeRef(ev))
	return nil
}

// InjectMouseScroll posts a scroll-wheel event.
func (inj *DarwinInjector) InjectMouseScroll(dx, dy int16) error {
	ev := C.CGEventCreateScrollWheelEvent(0, C.kCGScrollEventUnitPixel, 2, C.int32_t(dy), C.int32_t(dx))
	if ev == 0 {
		return &DeviceError{Op: "CGEventCreateScrollWheelEvent", Transient: true, Err: fmt.Errorf("failed to create scroll event")}
	}
	C.CGEventPost(C.kCGSessionEventTap, ev)
	C.CFRelease(C.CFTypeRef(ev))
	return nil
}

// InjectKey posts a keyboard press or release.
func (inj *DarwinInjector) InjectKey(code uint32, pressed bool, modifiers uint8) error {
	ev := C.CGEventCreateKeyboardEvent(0, C.CGKeyCode(code), C.bool(pressed))
	if ev == 0 {
		return &DeviceError{Op: "CGEventCreateKeyboardEvent", Transient: true, Err: fmt.Errorf("failed to create key event")}
	}
	C.CGEventPost(C.kCGSessionEventTap, ev)
	C.CFRelease(C.CFTypeRef(ev))
	return nil
}

// Close is a no-op: CGEventPost does not hold a persistent handle.
func (inj *DarwinInjector) Close() error { return nil }
