//go:build !linux && !darwin && !windows

package input

import "fmt"

// StubCapture reports a device error on Start; platforms without a capture
// backend can still run in --simulate mode.
type StubCapture struct{}

func NewStubCapture() (*StubCapture, error) { return &StubCapture{}, nil }

func (c *StubCapture) Start() error {
	return &DeviceError{Op: "capture", Transient: false, Err: fmt.Errorf("no input capture backend for this platform")}
}
func (c *StubCapture) Stop() error                 { return nil }
func (c *StubCapture) Events() <-chan RawEvent     { return nil }
func (c *StubCapture) Grab() error                 { return nil }
func (c *StubCapture) Ungrab() error               { return nil }
