package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func roundTrip(t *testing.T, e Event) Event {
	t.Helper()
	data, err := Encode(e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return decoded
}

func TestRoundTripMouseMove(t *testing.T) {
	e := Event{Tag: TagMouseMove, MouseMove: MouseMove{DX: -42, DY: 17}}
	got := roundTrip(t, e)
	if got.MouseMove != e.MouseMove {
		t.Fatalf("round trip mismatch: got %+v want %+v", got.MouseMove, e.MouseMove)
	}
}

func TestRoundTripKeyEvent(t *testing.T) {
	e := Event{Tag: TagKeyEvent, KeyEvent: KeyEvent{Code: 30, Pressed: true, Modifiers: 0x03}}
	got := roundTrip(t, e)
	if got.KeyEvent != e.KeyEvent {
		t.Fatalf("round trip mismatch: got %+v want %+v", got.KeyEvent, e.KeyEvent)
	}
}

func TestRoundTripFocusGrant(t *testing.T) {
	e := Event{Tag: TagFocusGrant, FocusGrant: FocusGrant{
		From:        "h",
		EnteredEdge: EdgeLeft,
		EntryX:      0,
		EntryY:      540,
	}}
	got := roundTrip(t, e)
	if got.FocusGrant != e.FocusGrant {
		t.Fatalf("round trip mismatch: got %+v want %+v", got.FocusGrant, e.FocusGrant)
	}
}

func TestRoundTripFocusRelease(t *testing.T) {
	e := Event{Tag: TagFocusRelease, FocusRelease: FocusRelease{From: "a", ExitEdge: EdgeRight}}
	got := roundTrip(t, e)
	if got.FocusRelease != e.FocusRelease {
		t.Fatalf("round trip mismatch: got %+v want %+v", got.FocusRelease, e.FocusRelease)
	}
}

func TestRoundTripHeartbeat(t *testing.T) {
	e := Event{Tag: TagHeartbeat, Heartbeat: Heartbeat{Seq: 7, MonotonicMS: 123456}}
	got := roundTrip(t, e)
	if got.Heartbeat != e.Heartbeat {
		t.Fatalf("round trip mismatch: got %+v want %+v", got.Heartbeat, e.Heartbeat)
	}
}

func TestRoundTripHandshakeHello(t *testing.T) {
	e := Event{Tag: TagHandshakeHello, HandshakeHello: HandshakeHello{
		MachineName:     "h",
		ProtocolVersion: 1,
		AuthProof:       []byte{1, 2, 3, 4},
		Nonce:           [16]byte{1, 2, 3},
	}}
	got := roundTrip(t, e)
	if got.HandshakeHello.MachineName != e.HandshakeHello.MachineName ||
		got.HandshakeHello.ProtocolVersion != e.HandshakeHello.ProtocolVersion ||
		!bytes.Equal(got.HandshakeHello.AuthProof, e.HandshakeHello.AuthProof) ||
		got.HandshakeHello.Nonce != e.HandshakeHello.Nonce {
		t.Fatalf("round trip mismatch: got %+v want %+v", got.HandshakeHello, e.HandshakeHello)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := Decode([]byte{0xff})
	if err == nil {
		t.Fatal("expected error for unknown tag")
	}
	var unknown *UnknownTagError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownTagError, got %T: %v", err, err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{byte(TagMouseMove), 0, 0})
	if err == nil {
		t.Fatal("expected truncated frame error")
	}
}
