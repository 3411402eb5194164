//go:build !linux && !darwin && !windows

package input

import "fmt"

// StubInjector reports a device error on first use.
type StubInjector struct{}

func NewStubInjector() (*StubInjector, error) { return &StubInjector{}, nil }

func (i *StubInjector) err() error {
	return &DeviceError{Op: "inject", Transient: false, Err: fmt.Errorf("no input injection backend for this platform")}
}

func (i *StubInjector) InjectMouseMove(dx, dy int32) error                 { return i.err() }
func (i *StubInjector) InjectMouseAbs(x, y int32) error                    { return i.err() }
func (i *StubInjector) InjectMouseButton(button uint8, pressed bool) error { return i.err() }
func (i *StubInjector) InjectMouseScroll(dx, dy int16) error               { return i.err() }
func (i *StubInjector) InjectKey(code uint32, pressed bool, modifiers uint8) error {
	return i.err()
}
func (i *StubInjector) Close() error { return nil }
