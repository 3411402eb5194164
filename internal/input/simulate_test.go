package input

import (
	"testing"
	"time"
)

func TestSimulatedCaptureEmitsMoves(t *testing.T) {
	c := NewSimulatedCapture()
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	select {
	case e := <-c.Events():
		if e.Type != EventMouseMove {
			t.Fatalf("expected mouse move, got %v", e.Type)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for simulated event")
	}
}

func TestSimulatedCapturePausesWhileGrabbed(t *testing.T) {
	c := NewSimulatedCapture()
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if err := c.Grab(); err != nil {
		t.Fatalf("Grab: %v", err)
	}
	// Drain anything already queued before the grab took effect.
	drain := time.After(120 * time.Millisecond)
	for {
		select {
		case <-c.Events():
		case <-drain:
			goto checkQuiet
		}
	}
checkQuiet:
	select {
	case e := <-c.Events():
		t.Fatalf("expected no events while grabbed, got %+v", e)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSimulatedInjectorNeverErrors(t *testing.T) {
	inj := NewSimulatedInjector()
	if err := inj.InjectMouseMove(1, 1); err != nil {
		t.Fatalf("InjectMouseMove: %v", err)
	}
	if err := inj.InjectMouseButton(1, true); err != nil {
		t.Fatalf("InjectMouseButton: %v", err)
	}
	if err := inj.InjectKey(30, true, 0); err != nil {
		t.Fatalf("InjectKey: %v", err)
	}
	if err := inj.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
