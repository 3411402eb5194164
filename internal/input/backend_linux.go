//go:build linux

package input

// NewCapture returns the platform capture backend.
func NewCapture() (Capture, error) { return NewLinuxCapture() }

// NewInjector returns the platform injector backend.
func NewInjector() (Injector, error) { return NewLinuxInjector() }
