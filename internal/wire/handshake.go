package wire

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/yrbane/multishiva/internal/protocol"
)

// ProtocolVersion is the version this build offers during negotiation.
const ProtocolVersion uint16 = 1

// HandshakeBudget is the total time allowed for a handshake before the
// socket is closed.
const HandshakeBudget = 5 * time.Second

// AuthErrorKind enumerates the ways a handshake can fail authentication.
type AuthErrorKind int

const (
	BadSecret AuthErrorKind = iota
	FingerprintMismatch
	VersionIncompatible
)

// AuthError is a per-connection fatal error raised during handshake.
type AuthError struct {
	Kind AuthErrorKind
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case BadSecret:
		return "wire: handshake proof did not match shared secret"
	case FingerprintMismatch:
		return "wire: peer fingerprint does not match pinned value"
	case VersionIncompatible:
		return "wire: no compatible protocol version"
	default:
		return "wire: authentication failed"
	}
}

func proof(secret []byte, nonce [16]byte) []byte {
	h := sha256.New()
	h.Write(secret)
	h.Write(nonce[:])
	return h.Sum(nil)
}

func newNonce() ([16]byte, error) {
	var n [16]byte
	_, err := rand.Read(n[:])
	return n, err
}

// NegotiateVersion picks the lower of two offered versions; 0 means
// incompatible.
func NegotiateVersion(a, b uint16) (uint16, error) {
	v := a
	if b < v {
		v = b
	}
	if v == 0 {
		return 0, &AuthError{Kind: VersionIncompatible}
	}
	return v, nil
}

// ClientHello builds the initial HandshakeHello frame body for machineName
// authenticating with sharedSecret.
func ClientHello(machineName string, sharedSecret []byte) ([]byte, [16]byte, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, nonce, fmt.Errorf("wire: generate nonce: %w", err)
	}
	e := protocol.Event{
		Tag: protocol.TagHandshakeHello,
		HandshakeHello: protocol.HandshakeHello{
			MachineName:     machineName,
			ProtocolVersion: ProtocolVersion,
			AuthProof:       proof(sharedSecret, nonce),
			Nonce:           nonce,
		},
	}
	body, err := protocol.Encode(e)
	return body, nonce, err
}

// VerifyHello recomputes the expected proof for a received hello and
// reports whether it matches.
func VerifyHello(hello protocol.HandshakeHello, sharedSecret []byte) bool {
	want := proof(sharedSecret, hello.Nonce)
	return subtle.ConstantTimeCompare(want, hello.AuthProof) == 1
}

// ServerAccept builds the HandshakeAccept frame body.
func ServerAccept(machineName string, version uint16) ([]byte, error) {
	e := protocol.Event{
		Tag: protocol.TagHandshakeAccept,
		HandshakeAccept: protocol.HandshakeAccept{
			MachineName:     machineName,
			ProtocolVersion: version,
		},
	}
	return protocol.Encode(e)
}
