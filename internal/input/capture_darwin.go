//go:build darwin

package input

/*
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation
#include <ApplicationServices/ApplicationServices.h>

static CFMachPortRef tapRef;
static CFRunLoopSourceRef runLoopSource;

extern void goHandleTapEvent(CGEventType type, CGEventRef event);

static CGEventRef tapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon) {
	goHandleTapEvent(type, event);
	return event;
}

static int installTap() {
	CGEventMask mask = CGEventMaskBit(kCGEventMouseMoved) |
		CGEventMaskBit(kCGEventLeftMouseDown) | CGEventMaskBit(kCGEventLeftMouseUp) |
		CGEventMaskBit(kCGEventRightMouseDown) | CGEventMaskBit(kCGEventRightMouseUp) |
		CGEventMaskBit(kCGEventScrollWheel) |
		CGEventMaskBit(kCGEventKeyDown) | CGEventMaskBit(kCGEventKeyUp);

	tapRef = CGEventTapCreate(kCGSessionEventTap, kCGHeadInsertEventTap,
		kCGEventTapOptionListenOnly, mask, tapCallback, NULL);
	if (!tapRef) {
		return -1;
	}
	runLoopSource = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tapRef, 0);
	CFRunLoopAddSource(CFRunLoopGetCurrent(), runLoopSource, kCFRunLoopCommonModes);
	CGEventTapEnable(tapRef, true);
	return 0;
}

static void runLoop() {
	CFRunLoopRun();
}

static void removeTap() {
	if (runLoopSource) {
		CFRunLoopRemoveSource(CFRunLoopGetCurrent(), runLoopSource, kCFRunLoopCommonModes);
	}
	if (tapRef) {
		CGEventTapEnable(tapRef, false);
		CFMachPortInvalidate(tapRef);
	}
	CFRunLoopStop(CFRunLoopGetCurrent());
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
)

// DarwinCapture listens via a CGEventTap in listen-only mode, so the event
// still reaches the local compositor; macOS has no equivalent of evdev's
// exclusive grab, so Grab/Ungrab only toggle local re-injection suppression
// at the focus-manager level rather than the OS level.
type DarwinCapture struct {
	mu      sync.Mutex
	events  chan RawEvent
	lastX   float64
	lastY   float64
	started bool
}

var activeDarwinCapture *DarwinCapture

//export goHandleTapEvent
func goHandleTapEvent(t C.CGEventType, ev C.CGEventRef) {
	c := activeDarwinCapture
	if c == nil {
		return
	}
	c.handle(int(t), ev)
}

// NewDarwinCapture constructs a capture backend. The accessibility
// permission prompt (if not yet granted) surfaces the first time Start
// installs the tap.
func NewDarwinCapture() (*DarwinCapture, error) {
	return &DarwinCapture{events: make(chan RawEvent, 256)}, nil
}

// Start installs the event tap and runs its CFRunLoop on a dedicated
// goroutine pinned to an OS thread, as Core Foundation run loops are
// thread-affine.
func (c *DarwinCapture) Start() error {
	activeDarwinCapture = c
	if C.installTap() != 0 {
		return &DeviceError{Op: "CGEventTapCreate", Transient: false, Err: fmt.Errorf(
			"failed to create event tap; grant Accessibility permission in System Settings")}
	}
	c.started = true
	go func() {
		C.runLoop()
	}()
	return nil
}

func (c *DarwinCapture) handle(eventType int, ev C.CGEventRef) {
	now := time.Now()
	switch eventType {
	case int(C.kCGEventMouseMoved):
		pt := C.CGEventGetLocation(ev)
		c.mu.Lock()
		dx, dy := float64(pt.x)-c.lastX, float64(pt.y)-c.lastY
		c.lastX, c.lastY = float64(pt.x), float64(pt.y)
		c.mu.Unlock()
		c.emit(RawEvent{Type: EventMouseMove, DX: int32(dx), DY: int32(dy), Timestamp: now})
	case int(C.kCGEventLeftMouseDown):
		c.emit(RawEvent{Type: EventMouseButton, Button: 1, Pressed: true, Timestamp: now})
	case int(C.kCGEventLeftMouseUp):
		c.emit(RawEvent{Type: EventMouseButton, Button: 1, Pressed: false, Timestamp: now})
	case int(C.kCGEventRightMouseDown):
		c.emit(RawEvent{Type: EventMouseButton, Button: 2, Pressed: true, Timestamp: now})
	case int(C.kCGEventRightMouseUp):
		c.emit(RawEvent{Type: EventMouseButton, Button: 2, Pressed: false, Timestamp: now})
	case int(C.kCGEventScrollWheel):
		dy := int32(C.CGEventGetIntegerValueField(ev, C.kCGScrollWheelEventDeltaAxis1))
		c.emit(RawEvent{Type: EventMouseScroll, DY: dy, Timestamp: now})
	case int(C.kCGEventKeyDown):
		code := uint32(C.CGEventGetIntegerValueField(ev, C.kCGKeyboardEventKeycode))
		c.emit(RawEvent{Type: EventKey, KeyCode: code, Pressed: true, Timestamp: now})
	case int(C.kCGEventKeyUp):
		code := uint32(C.CGEventGetIntegerValueField(ev, C.kCGKeyboardEventKeycode))
		c.emit(RawEvent{Type: EventKey, KeyCode: code, Pressed: false, Timestamp: now})
	}
}

func (c *DarwinCapture) emit(e RawEvent) {
	select {
	case c.events <- e:
	default:
	}
}

// Events returns the capture channel.
func (c *DarwinCapture) Events() <-chan RawEvent { return c.events }

// Stop tears down the event tap and run loop.
func (c *DarwinCapture) Stop() error {
	if !c.started {
		return nil
	}
	C.removeTap()
	activeDarwinCapture = nil
	c.started = false
	return nil
}

// Grab is a local bookkeeping no-op on macOS; see the type comment.
func (c *DarwinCapture) Grab() error { return nil }

// Ungrab is a local bookkeeping no-op on macOS; see the type comment.
func (c *DarwinCapture) Ungrab() error { return nil }
