// Package fingerprint implements trust-on-first-use pinning of peer
// authentication material, persisted as a JSON file with single-writer
// serialization.
package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// VerifyResult is the outcome of checking a peer's digest against the store.
type VerifyResult int

const (
	// Match means the supplied digest equals the stored one.
	Match VerifyResult = iota
	// Mismatch means a different digest is already on file for this peer.
	Mismatch
	// FirstSeen means no record existed and one was created.
	FirstSeen
)

// PutResult is the outcome of PutIfAbsent.
type PutResult int

const (
	Inserted PutResult = iota
	Existed
)

// Record is one peer's pinned credential.
type Record struct {
	Digest    string    `json:"digest"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Digest computes the canonical fingerprint for a claimed peer name and the
// shared secret both sides hold, binding the name into the hash so that a
// name-substitution attack changes the digest.
func Digest(peerName string, sharedSecret []byte) string {
	h := sha256.New()
	h.Write([]byte(peerName))
	h.Write([]byte{0})
	h.Write(sharedSecret)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Store is a peer-name-keyed fingerprint table, write-through to disk.
type Store struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
}

// Open loads (or creates) the fingerprint store at path.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]Record),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fingerprint: read store: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("fingerprint: parse store: %w", err)
	}
	return s, nil
}

// Get returns the stored record for peer, if any.
func (s *Store) Get(peer string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[peer]
	return rec, ok
}

// PutIfAbsent inserts digest for peer if no record exists yet, else leaves
// the existing record untouched.
func (s *Store) PutIfAbsent(peer, digest string) (PutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[peer]; ok {
		return Existed, nil
	}
	now := time.Now()
	s.records[peer] = Record{Digest: digest, FirstSeen: now, LastSeen: now}
	return Inserted, s.save()
}

// Verify checks digest against the stored record for peer. FirstSeen
// persists the digest as trust-on-first-use and returns FirstSeen. A
// mismatch never overwrites the stored digest.
func (s *Store) Verify(peer, digest string) (VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[peer]
	if !ok {
		now := time.Now()
		s.records[peer] = Record{Digest: digest, FirstSeen: now, LastSeen: now}
		return FirstSeen, s.save()
	}

	if subtle.ConstantTimeCompare([]byte(rec.Digest), []byte(digest)) != 1 {
		return Mismatch, nil
	}

	rec.LastSeen = time.Now()
	s.records[peer] = rec
	return Match, s.save()
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("fingerprint: marshal store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("fingerprint: create store dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("fingerprint: write store: %w", err)
	}
	return os.Rename(tmp, s.path)
}
