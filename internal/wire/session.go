package wire

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/yrbane/multishiva/internal/fingerprint"
	"github.com/yrbane/multishiva/internal/protocol"
)

// DialAndHandshake connects to addr, performs the client side of the
// handshake, pins/verifies the server's fingerprint, and returns an
// Authenticated Connection ready for Run.
func DialAndHandshake(ctx context.Context, addr, selfName string, sharedSecret []byte, store *fingerprint.Store) (*Connection, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", addr, err)
	}

	conn.SetDeadline(time.Now().Add(HandshakeBudget))
	defer conn.SetDeadline(time.Time{})

	helloBody, _, err := ClientHello(selfName, sharedSecret)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := WriteFrame(conn, helloBody); err != nil {
		conn.Close()
		return nil, fmt.Errorf("wire: send hello: %w", err)
	}

	acceptBody, err := ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("wire: read accept: %w", err)
	}
	acceptEvent, err := protocol.Decode(acceptBody)
	if err != nil || acceptEvent.Tag != protocol.TagHandshakeAccept {
		conn.Close()
		return nil, fmt.Errorf("wire: expected HandshakeAccept, got %v (err=%v)", acceptEvent.Tag, err)
	}
	accept := acceptEvent.HandshakeAccept

	if _, negErr := NegotiateVersion(ProtocolVersion, accept.ProtocolVersion); negErr != nil {
		conn.Close()
		return nil, negErr
	}

	digest := fingerprint.Digest(accept.MachineName, sharedSecret)
	result, err := store.Verify(accept.MachineName, digest)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("wire: fingerprint store: %w", err)
	}
	if result == fingerprint.Mismatch {
		conn.Close()
		return nil, &AuthError{Kind: FingerprintMismatch}
	}

	return NewConnection(0, conn, accept.MachineName, digest), nil
}

// AcceptAndHandshake performs the server side of the handshake over an
// already-accepted socket and returns an Authenticated Connection.
func AcceptAndHandshake(conn net.Conn, selfName string, sharedSecret []byte, store *fingerprint.Store) (*Connection, error) {
	conn.SetDeadline(time.Now().Add(HandshakeBudget))
	defer conn.SetDeadline(time.Time{})

	helloBody, err := ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("wire: read hello: %w", err)
	}
	helloEvent, err := protocol.Decode(helloBody)
	if err != nil || helloEvent.Tag != protocol.TagHandshakeHello {
		conn.Close()
		return nil, fmt.Errorf("wire: expected HandshakeHello: %v", err)
	}
	hello := helloEvent.HandshakeHello

	if !VerifyHello(hello, sharedSecret) {
		conn.Close()
		return nil, &AuthError{Kind: BadSecret}
	}

	version, negErr := NegotiateVersion(ProtocolVersion, hello.ProtocolVersion)
	if negErr != nil {
		conn.Close()
		return nil, negErr
	}

	digest := fingerprint.Digest(hello.MachineName, sharedSecret)
	result, err := store.Verify(hello.MachineName, digest)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("wire: fingerprint store: %w", err)
	}
	if result == fingerprint.Mismatch {
		conn.Close()
		return nil, &AuthError{Kind: FingerprintMismatch}
	}

	acceptBody, err := ServerAccept(selfName, version)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := WriteFrame(conn, acceptBody); err != nil {
		conn.Close()
		return nil, fmt.Errorf("wire: send accept: %w", err)
	}

	return NewConnection(0, conn, hello.MachineName, digest), nil
}
