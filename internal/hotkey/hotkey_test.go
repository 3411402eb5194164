package hotkey

import (
	"testing"
	"time"
)

func TestRegisterAcceptsKnownTokens(t *testing.T) {
	m := NewManager()
	if _, err := m.Register("Ctrl+Alt+K", func() {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Register("Mouse4+Shift", func() {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Register("F11", func() {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegisterRejectsUnknownToken(t *testing.T) {
	m := NewManager()
	if _, err := m.Register("Ctrl+Alt+Kwyjibo", func() {}); err == nil {
		t.Fatal("expected an error for an unknown key token")
	}
}

func TestRegisterRejectsEmptySegment(t *testing.T) {
	m := NewManager()
	if _, err := m.Register("Ctrl++K", func() {}); err == nil {
		t.Fatal("expected an error for a stray '+' producing an empty token")
	}
}

func TestRegisterIgnoresEmptyString(t *testing.T) {
	m := NewManager()
	if _, err := m.Register("", func() {}); err != nil {
		t.Fatalf("unexpected error for empty hotkey string: %v", err)
	}
	if len(m.hotkeys) != 0 {
		t.Fatalf("expected no hotkey registered, got %d", len(m.hotkeys))
	}
}

func TestUpdateStateFiresCallbackOnFullMatch(t *testing.T) {
	m := NewManager()
	fired := make(chan struct{}, 1)
	if _, err := m.Register("Ctrl+K", func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.UpdateState("CTRL", true)
	m.UpdateState("K", true)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected callback to fire once all parts are held down")
	}
}
