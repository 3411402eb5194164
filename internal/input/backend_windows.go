//go:build windows

package input

// NewCapture returns the platform capture backend.
func NewCapture() (Capture, error) { return NewWindowsCapture() }

// NewInjector returns the platform injector backend.
func NewInjector() (Injector, error) { return NewWindowsInjector() }
