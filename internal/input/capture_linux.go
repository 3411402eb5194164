//go:build linux

package input

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LinuxCapture reads directly from /dev/input/event* device nodes,
// auto-detected by capability (keyboard or pointer classes), and converts
// their raw events into RawEvent. This works under both X11 and Wayland
// compositors since it bypasses the display server entirely.
type LinuxCapture struct {
	mu       sync.Mutex
	devices  []*os.File
	events   chan RawEvent
	stopping chan struct{}
	wg       sync.WaitGroup

	grabRefs atomic.Int32
}

// NewLinuxCapture returns an idle capture; it opens no device. Start scans
// /dev/input for usable devices and, when none is found, reports the
// permission-remediation hint.
func NewLinuxCapture() (*LinuxCapture, error) {
	return &LinuxCapture{
		events: make(chan RawEvent, 256),
	}, nil
}

func detectInputDevices() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, fmt.Errorf("read /dev/input: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		path := filepath.Join("/dev/input", e.Name())
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			continue
		}
		if !hasUsableCapability(int(f.Fd())) {
			f.Close()
			continue
		}
		if keys, err := ioctlKeyState(int(f.Fd()), keyStateBytes); err == nil && anyBitSet(keys) {
			log.Printf("input: %s reports a key already held down at capture start", path)
		}
		f.Close()
		paths = append(paths, path)
	}
	return paths, nil
}

// Start opens every detected device and begins streaming events.
func (c *LinuxCapture) Start() error {
	paths, err := detectInputDevices()
	if err != nil {
		return &DeviceError{Op: "detect devices", Transient: true, Err: err}
	}
	if len(paths) == 0 {
		return &DeviceError{Op: "detect devices", Transient: false, Err: fmt.Errorf(
			"no input devices found; add your user to the 'input' group (sudo usermod -a -G input $USER), "+
				"log out and back in, or run with elevated privileges")}
	}

	c.mu.Lock()
	c.stopping = make(chan struct{})
	c.mu.Unlock()

	opened := 0
	for _, path := range paths {
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			log.Printf("input: skipping %s: %v", path, err)
			continue
		}
		c.mu.Lock()
		c.devices = append(c.devices, f)
		c.mu.Unlock()
		opened++

		c.wg.Add(1)
		go c.readLoop(f)
	}

	if opened == 0 {
		return &DeviceError{Op: "open devices", Transient: false, Err: fmt.Errorf("could not open any input device; check permissions")}
	}
	log.Printf("input: capturing from %d device(s)", opened)
	return nil
}

func (c *LinuxCapture) readLoop(f *os.File) {
	defer c.wg.Done()

	var parser evdevEventParser
	var accDX, accDY int32
	buf := make([]byte, 24*16)

	flush := func() {
		if accDX != 0 || accDY != 0 {
			c.emit(RawEvent{Type: EventMouseMove, DX: accDX, DY: accDY, Timestamp: time.Now()})
			accDX, accDY = 0, 0
		}
	}

	for {
		select {
		case <-c.stopping:
			return
		default:
		}

		n, err := f.Read(buf)
		if err != nil {
			return
		}
		parser.feed(buf[:n], func(etype, code uint16, value int32) {
			switch etype {
			case evRel:
				switch code {
				case relX:
					accDX += int32(value)
				case relY:
					accDY += int32(value)
				case relWheel:
					flush()
					c.emit(RawEvent{Type: EventMouseScroll, DY: int32(value), Timestamp: time.Now()})
				case relHWheel:
					flush()
					c.emit(RawEvent{Type: EventMouseScroll, DX: int32(value), Timestamp: time.Now()})
				}
			case evKey:
				flush()
				switch code {
				case btnLeft:
					c.emit(RawEvent{Type: EventMouseButton, Button: 1, Pressed: value != 0, Timestamp: time.Now()})
				case btnRight:
					c.emit(RawEvent{Type: EventMouseButton, Button: 2, Pressed: value != 0, Timestamp: time.Now()})
				case btnMiddle:
					c.emit(RawEvent{Type: EventMouseButton, Button: 3, Pressed: value != 0, Timestamp: time.Now()})
				default:
					c.emit(RawEvent{Type: EventKey, KeyCode: uint32(code), Pressed: value != 0, Timestamp: time.Now()})
				}
			case evSyn:
				if code == synReport {
					flush()
				}
			}
		})
	}
}

func (c *LinuxCapture) emit(e RawEvent) {
	select {
	case c.events <- e:
	default:
		// Backpressure: coalesce by dropping the oldest pending move,
		// matching the bounded-channel policy for pointer motion. Key
		// events are never dropped, so only attempt this for moves.
		if e.Type == EventMouseMove {
			select {
			case old := <-c.events:
				if old.Type == EventMouseMove {
					e.DX += old.DX
					e.DY += old.DY
				}
			default:
			}
			select {
			case c.events <- e:
			default:
			}
		}
	}
}

// Events returns the capture channel.
func (c *LinuxCapture) Events() <-chan RawEvent { return c.events }

// Stop halts capture and closes device handles.
func (c *LinuxCapture) Stop() error {
	c.mu.Lock()
	if c.stopping != nil {
		close(c.stopping)
	}
	devices := c.devices
	c.devices = nil
	c.mu.Unlock()

	for _, f := range devices {
		f.Close()
	}
	c.wg.Wait()
	return nil
}

// Grab exclusively acquires every open device via EVIOCGRAB. Reference
// counted: concurrent Grab/Ungrab pairs (e.g. a transition racing a
// shutdown) never release early.
func (c *LinuxCapture) Grab() error {
	if c.grabRefs.Add(1) > 1 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.devices {
		if err := ioctlGrab(int(f.Fd()), true); err != nil {
			log.Printf("input: grab failed on fd %d: %v", f.Fd(), err)
		}
	}
	return nil
}

// Ungrab releases a Grab reference; devices are only actually released once
// the reference count reaches zero.
func (c *LinuxCapture) Ungrab() error {
	if c.grabRefs.Add(-1) > 0 {
		return nil
	}
	c.grabRefs.Store(0)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.devices {
		if err := ioctlGrab(int(f.Fd()), false); err != nil {
			log.Printf("input: ungrab failed on fd %d: %v", f.Fd(), err)
		}
	}
	return nil
}
