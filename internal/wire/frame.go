// Package wire implements the length-prefixed binary connection lifecycle:
// framing, handshake, heartbeat/degraded/close thresholds, and reconnect
// backoff, all layered over a reliable ordered byte stream.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/yrbane/multishiva/internal/protocol"
)

// ErrFrameTooLarge is returned by ReadFrame when the declared length exceeds
// protocol.MaxFrameBody.
var ErrFrameTooLarge = fmt.Errorf("wire: frame exceeds %d bytes", protocol.MaxFrameBody)

// WriteFrame writes a 4-byte big-endian length prefix followed by body.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > protocol.MaxFrameBody {
		return ErrFrameTooLarge
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed frame. A declared length over
// protocol.MaxFrameBody is a fatal protocol error.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > protocol.MaxFrameBody {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
