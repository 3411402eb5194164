package input

import (
	"log"
	"sync"
	"time"
)

// SimulatedCapture generates a synthetic stream of mouse-move events without
// touching any real device, so --simulate can exercise topology, focus, and
// wire-protocol wiring in a headless environment (CI, containers, demos).
type SimulatedCapture struct {
	mu       sync.Mutex
	events   chan RawEvent
	stopping chan struct{}
	wg       sync.WaitGroup

	grabbed bool
}

// NewSimulatedCapture returns a capture backend that drifts a virtual
// cursor rightward by 4px every 50ms, so it eventually reaches the right
// edge. It never reverses direction, and it emits nothing while grabbed.
func NewSimulatedCapture() *SimulatedCapture {
	return &SimulatedCapture{events: make(chan RawEvent, 64)}
}

func (c *SimulatedCapture) Start() error {
	c.stopping = make(chan struct{})
	c.wg.Add(1)
	go c.loop()
	log.Print("input: simulated capture started, no real devices are touched")
	return nil
}

func (c *SimulatedCapture) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	dx := int32(4)
	for {
		select {
		case <-c.stopping:
			return
		case <-ticker.C:
			c.mu.Lock()
			grabbed := c.grabbed
			c.mu.Unlock()
			if grabbed {
				continue
			}
			select {
			case c.events <- RawEvent{Type: EventMouseMove, DX: dx, Timestamp: time.Now()}:
			default:
			}
		}
	}
}

func (c *SimulatedCapture) Events() <-chan RawEvent { return c.events }

func (c *SimulatedCapture) Stop() error {
	if c.stopping != nil {
		close(c.stopping)
	}
	c.wg.Wait()
	return nil
}

func (c *SimulatedCapture) Grab() error {
	c.mu.Lock()
	c.grabbed = true
	c.mu.Unlock()
	return nil
}

func (c *SimulatedCapture) Ungrab() error {
	c.mu.Lock()
	c.grabbed = false
	c.mu.Unlock()
	return nil
}

// SimulatedInjector logs every injected event instead of touching the OS.
type SimulatedInjector struct{}

func NewSimulatedInjector() *SimulatedInjector { return &SimulatedInjector{} }

func (i *SimulatedInjector) InjectMouseMove(dx, dy int32) error {
	log.Printf("input: [simulate] mouse move dx=%d dy=%d", dx, dy)
	return nil
}

func (i *SimulatedInjector) InjectMouseAbs(x, y int32) error {
	log.Printf("input: [simulate] mouse abs x=%d y=%d", x, y)
	return nil
}

func (i *SimulatedInjector) InjectMouseButton(button uint8, pressed bool) error {
	log.Printf("input: [simulate] mouse button=%d pressed=%v", button, pressed)
	return nil
}

func (i *SimulatedInjector) InjectMouseScroll(dx, dy int16) error {
	log.Printf("input: [simulate] scroll dx=%d dy=%d", dx, dy)
	return nil
}

func (i *SimulatedInjector) InjectKey(code uint32, pressed bool, modifiers uint8) error {
	log.Printf("input: [simulate] key code=%d pressed=%v modifiers=%x", code, pressed, modifiers)
	return nil
}

func (i *SimulatedInjector) Close() error { return nil }
