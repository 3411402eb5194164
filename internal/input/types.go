// Package input provides cross-platform capture of local keyboard/pointer
// events and injection of remote ones, plus Linux exclusive device grabbing
// so the local compositor does not double-process captured input.
package input

import "time"

// RawEvent is a platform-neutral input event tagged with a monotonic
// capture timestamp.
type RawEvent struct {
	Type      EventType
	DX, DY    int32 // relative motion, or scroll deltas
	Button    uint8
	Pressed   bool
	KeyCode   uint32
	Modifiers uint8
	Timestamp time.Time
}

// EventType discriminates a RawEvent.
type EventType int

const (
	EventMouseMove EventType = iota
	EventMouseButton
	EventMouseScroll
	EventKey
)

// DeviceError reports a capture or injection failure. Transient marks a
// failure that may succeed if attempted again; no caller in this repository
// retries automatically, and both kinds are returned to the caller as is.
type DeviceError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *DeviceError) Error() string {
	return "input: " + e.Op + ": " + e.Err.Error()
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Capture produces a non-restartable stream of raw events from local
// devices.
type Capture interface {
	Start() error
	Stop() error
	Events() <-chan RawEvent

	// Grab acquires exclusive access to the captured devices (Linux only;
	// a no-op elsewhere) so local injection of the same input stops.
	Grab() error
	// Ungrab releases a prior Grab. Safe to call when not grabbed.
	Ungrab() error
}

// Injector synthesizes events on the local OS, preserving the order it
// receives them in.
type Injector interface {
	InjectMouseMove(dx, dy int32) error
	InjectMouseAbs(x, y int32) error
	InjectMouseButton(button uint8, pressed bool) error
	InjectMouseScroll(dx, dy int16) error
	InjectKey(code uint32, pressed bool, modifiers uint8) error
	Close() error
}
