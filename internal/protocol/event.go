// Package protocol defines the wire event union exchanged between host and
// agent, and its pure encode/decode pair.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Tag identifies the variant encoded in an event body.
type Tag uint8

const (
	TagMouseMove Tag = 0x01
	TagMouseAbs  Tag = 0x02
	TagMouseButton Tag = 0x03
	TagMouseScroll Tag = 0x04
	TagKeyEvent    Tag = 0x05
	TagFocusGrant  Tag = 0x06
	TagFocusRelease Tag = 0x07
	TagHeartbeat    Tag = 0x08
	TagHandshakeHello  Tag = 0x09
	TagHandshakeAccept Tag = 0x0a
)

// Edge mirrors topology.Direction without importing it, keeping the wire
// encoding independent of the topology package's representation.
type Edge uint8

const (
	EdgeLeft   Edge = 0
	EdgeRight  Edge = 1
	EdgeTop    Edge = 2
	EdgeBottom Edge = 3
)

func (e Edge) String() string {
	switch e {
	case EdgeLeft:
		return "left"
	case EdgeRight:
		return "right"
	case EdgeTop:
		return "top"
	case EdgeBottom:
		return "bottom"
	default:
		return "unknown"
	}
}

// MaxFrameBody is the largest permitted encoded event body. Larger frames
// are a fatal protocol error.
const MaxFrameBody = 64 * 1024

// UnknownTagError is returned by Decode when the leading byte does not match
// any known Tag. It is recoverable: the caller closes the offending
// connection but the process continues.
type UnknownTagError struct {
	Tag byte
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("protocol: unknown event tag 0x%02x", e.Tag)
}

// TruncatedFrameError is returned when a body is shorter than its tag
// requires.
type TruncatedFrameError struct {
	Tag Tag
	Len int
}

func (e *TruncatedFrameError) Error() string {
	return fmt.Sprintf("protocol: truncated frame for tag 0x%02x (%d bytes)", e.Tag, e.Len)
}

// Event is the closed tagged union of everything that can cross the wire.
// Exactly one of the typed fields is meaningful, selected by Tag.
type Event struct {
	Tag Tag

	MouseMove   MouseMove
	MouseAbs    MouseAbs
	MouseButton MouseButton
	MouseScroll MouseScroll
	KeyEvent    KeyEvent
	FocusGrant  FocusGrant
	FocusRelease FocusRelease
	Heartbeat   Heartbeat
	HandshakeHello  HandshakeHello
	HandshakeAccept HandshakeAccept
}

type MouseMove struct {
	DX, DY int32
}

type MouseAbs struct {
	X, Y int32
}

type MouseButton struct {
	Button  uint8
	Pressed bool
}

type MouseScroll struct {
	DX, DY int16
}

type KeyEvent struct {
	Code      uint32
	Pressed   bool
	Modifiers uint8
}

type FocusGrant struct {
	From        string
	EnteredEdge Edge
	EntryX      int32
	EntryY      int32
}

type FocusRelease struct {
	From     string
	ExitEdge Edge
}

type Heartbeat struct {
	Seq         uint32
	MonotonicMS uint64
}

type HandshakeHello struct {
	MachineName     string
	ProtocolVersion uint16
	AuthProof       []byte
	Nonce           [16]byte
}

type HandshakeAccept struct {
	MachineName     string
	ProtocolVersion uint16
}

// Encode serializes e into its wire body (without the 4-byte length prefix,
// which the frame transport applies separately).
func Encode(e Event) ([]byte, error) {
	switch e.Tag {
	case TagMouseMove:
		buf := make([]byte, 1+8)
		buf[0] = byte(TagMouseMove)
		binary.BigEndian.PutUint32(buf[1:5], uint32(e.MouseMove.DX))
		binary.BigEndian.PutUint32(buf[5:9], uint32(e.MouseMove.DY))
		return buf, nil

	case TagMouseAbs:
		buf := make([]byte, 1+8)
		buf[0] = byte(TagMouseAbs)
		binary.BigEndian.PutUint32(buf[1:5], uint32(e.MouseAbs.X))
		binary.BigEndian.PutUint32(buf[5:9], uint32(e.MouseAbs.Y))
		return buf, nil

	case TagMouseButton:
		buf := make([]byte, 1+2)
		buf[0] = byte(TagMouseButton)
		buf[1] = e.MouseButton.Button
		buf[2] = boolByte(e.MouseButton.Pressed)
		return buf, nil

	case TagMouseScroll:
		buf := make([]byte, 1+4)
		buf[0] = byte(TagMouseScroll)
		binary.BigEndian.PutUint16(buf[1:3], uint16(e.MouseScroll.DX))
		binary.BigEndian.PutUint16(buf[3:5], uint16(e.MouseScroll.DY))
		return buf, nil

	case TagKeyEvent:
		buf := make([]byte, 1+6)
		buf[0] = byte(TagKeyEvent)
		binary.BigEndian.PutUint32(buf[1:5], e.KeyEvent.Code)
		buf[5] = boolByte(e.KeyEvent.Pressed)
		buf[6] = e.KeyEvent.Modifiers
		return buf, nil

	case TagFocusGrant:
		name := []byte(e.FocusGrant.From)
		buf := make([]byte, 1+2+len(name)+1+4+4)
		i := 0
		buf[i] = byte(TagFocusGrant)
		i++
		binary.BigEndian.PutUint16(buf[i:i+2], uint16(len(name)))
		i += 2
		copy(buf[i:], name)
		i += len(name)
		buf[i] = byte(e.FocusGrant.EnteredEdge)
		i++
		binary.BigEndian.PutUint32(buf[i:i+4], uint32(e.FocusGrant.EntryX))
		i += 4
		binary.BigEndian.PutUint32(buf[i:i+4], uint32(e.FocusGrant.EntryY))
		return buf, nil

	case TagFocusRelease:
		name := []byte(e.FocusRelease.From)
		buf := make([]byte, 1+2+len(name)+1)
		i := 0
		buf[i] = byte(TagFocusRelease)
		i++
		binary.BigEndian.PutUint16(buf[i:i+2], uint16(len(name)))
		i += 2
		copy(buf[i:], name)
		i += len(name)
		buf[i] = byte(e.FocusRelease.ExitEdge)
		return buf, nil

	case TagHeartbeat:
		buf := make([]byte, 1+4+8)
		buf[0] = byte(TagHeartbeat)
		binary.BigEndian.PutUint32(buf[1:5], e.Heartbeat.Seq)
		binary.BigEndian.PutUint64(buf[5:13], e.Heartbeat.MonotonicMS)
		return buf, nil

	case TagHandshakeHello:
		name := []byte(e.HandshakeHello.MachineName)
		proof := e.HandshakeHello.AuthProof
		buf := make([]byte, 1+2+len(name)+2+16+2+len(proof))
		i := 0
		buf[i] = byte(TagHandshakeHello)
		i++
		binary.BigEndian.PutUint16(buf[i:i+2], uint16(len(name)))
		i += 2
		copy(buf[i:], name)
		i += len(name)
		binary.BigEndian.PutUint16(buf[i:i+2], e.HandshakeHello.ProtocolVersion)
		i += 2
		copy(buf[i:i+16], e.HandshakeHello.Nonce[:])
		i += 16
		binary.BigEndian.PutUint16(buf[i:i+2], uint16(len(proof)))
		i += 2
		copy(buf[i:], proof)
		return buf, nil

	case TagHandshakeAccept:
		name := []byte(e.HandshakeAccept.MachineName)
		buf := make([]byte, 1+2+len(name)+2)
		i := 0
		buf[i] = byte(TagHandshakeAccept)
		i++
		binary.BigEndian.PutUint16(buf[i:i+2], uint16(len(name)))
		i += 2
		copy(buf[i:], name)
		i += len(name)
		binary.BigEndian.PutUint16(buf[i:i+2], e.HandshakeAccept.ProtocolVersion)
		return buf, nil

	default:
		return nil, &UnknownTagError{Tag: byte(e.Tag)}
	}
}

// Decode parses a wire body into an Event. Unknown tags return
// *UnknownTagError; short bodies return *TruncatedFrameError.
func Decode(data []byte) (Event, error) {
	if len(data) < 1 {
		return Event{}, errors.New("protocol: empty frame")
	}
	tag := Tag(data[0])
	body := data[1:]

	switch tag {
	case TagMouseMove:
		if len(body) < 8 {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		return Event{Tag: tag, MouseMove: MouseMove{
			DX: int32(binary.BigEndian.Uint32(body[0:4])),
			DY: int32(binary.BigEndian.Uint32(body[4:8])),
		}}, nil

	case TagMouseAbs:
		if len(body) < 8 {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		return Event{Tag: tag, MouseAbs: MouseAbs{
			X: int32(binary.BigEndian.Uint32(body[0:4])),
			Y: int32(binary.BigEndian.Uint32(body[4:8])),
		}}, nil

	case TagMouseButton:
		if len(body) < 2 {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		return Event{Tag: tag, MouseButton: MouseButton{
			Button:  body[0],
			Pressed: body[1] != 0,
		}}, nil

	case TagMouseScroll:
		if len(body) < 4 {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		return Event{Tag: tag, MouseScroll: MouseScroll{
			DX: int16(binary.BigEndian.Uint16(body[0:2])),
			DY: int16(binary.BigEndian.Uint16(body[2:4])),
		}}, nil

	case TagKeyEvent:
		if len(body) < 6 {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		return Event{Tag: tag, KeyEvent: KeyEvent{
			Code:      binary.BigEndian.Uint32(body[0:4]),
			Pressed:   body[4] != 0,
			Modifiers: body[5],
		}}, nil

	case TagFocusGrant:
		name, rest, err := readString(body)
		if err != nil {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		if len(rest) < 9 {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		return Event{Tag: tag, FocusGrant: FocusGrant{
			From:        name,
			EnteredEdge: Edge(rest[0]),
			EntryX:      int32(binary.BigEndian.Uint32(rest[1:5])),
			EntryY:      int32(binary.BigEndian.Uint32(rest[5:9])),
		}}, nil

	case TagFocusRelease:
		name, rest, err := readString(body)
		if err != nil {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		if len(rest) < 1 {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		return Event{Tag: tag, FocusRelease: FocusRelease{
			From:     name,
			ExitEdge: Edge(rest[0]),
		}}, nil

	case TagHeartbeat:
		if len(body) < 12 {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		return Event{Tag: tag, Heartbeat: Heartbeat{
			Seq:         binary.BigEndian.Uint32(body[0:4]),
			MonotonicMS: binary.BigEndian.Uint64(body[4:12]),
		}}, nil

	case TagHandshakeHello:
		name, rest, err := readString(body)
		if err != nil {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		if len(rest) < 2+16+2 {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		version := binary.BigEndian.Uint16(rest[0:2])
		var nonce [16]byte
		copy(nonce[:], rest[2:18])
		proofLen := int(binary.BigEndian.Uint16(rest[18:20]))
		if len(rest) < 20+proofLen {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		proof := append([]byte(nil), rest[20:20+proofLen]...)
		return Event{Tag: tag, HandshakeHello: HandshakeHello{
			MachineName:     name,
			ProtocolVersion: version,
			Nonce:           nonce,
			AuthProof:       proof,
		}}, nil

	case TagHandshakeAccept:
		name, rest, err := readString(body)
		if err != nil {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		if len(rest) < 2 {
			return Event{}, &TruncatedFrameError{tag, len(body)}
		}
		return Event{Tag: tag, HandshakeAccept: HandshakeAccept{
			MachineName:     name,
			ProtocolVersion: binary.BigEndian.Uint16(rest[0:2]),
		}}, nil

	default:
		return Event{}, &UnknownTagError{Tag: byte(tag)}
	}
}

func readString(body []byte) (string, []byte, error) {
	if len(body) < 2 {
		return "", nil, errors.New("protocol: truncated string length")
	}
	n := int(binary.BigEndian.Uint16(body[0:2]))
	if len(body) < 2+n {
		return "", nil, errors.New("protocol: truncated string body")
	}
	return string(body[2 : 2+n]), body[2+n:], nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
