//go:build darwin

package input

// NewCapture returns the platform capture backend.
func NewCapture() (Capture, error) { return NewDarwinCapture() }

// NewInjector returns the platform injector backend.
func NewInjector() (Injector, error) { return NewDarwinInjector() }
