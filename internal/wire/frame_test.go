package wire

import (
	"bytes"
	"testing"

	"github.com/yrbane/multishiva/internal/protocol"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte("hello frame")
	if err := WriteFrame(&buf, body); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("expected %q, got %q", body, got)
	}
}

func TestFrameMaxSizeAccepted(t *testing.T) {
	var buf bytes.Buffer
	body := make([]byte, protocol.MaxFrameBody)
	if err := WriteFrame(&buf, body); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != protocol.MaxFrameBody {
		t.Fatalf("expected %d bytes, got %d", protocol.MaxFrameBody, len(got))
	}
}

func TestFrameOverMaxSizeRejected(t *testing.T) {
	var buf bytes.Buffer
	body := make([]byte, protocol.MaxFrameBody+1)
	if err := WriteFrame(&buf, body); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge on write, got %v", err)
	}
}
