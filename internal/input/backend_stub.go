//go:build !linux && !darwin && !windows

package input

// NewCapture returns the platform capture backend.
func NewCapture() (Capture, error) { return NewStubCapture() }

// NewInjector returns the platform injector backend.
func NewInjector() (Injector, error) { return NewStubInjector() }
