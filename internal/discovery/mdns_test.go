package discovery

import (
	"context"
	"testing"
	"time"
)

func TestBuildAnnouncementRoundTripsThroughParse(t *testing.T) {
	packet, err := buildAnnouncement("host-a", 53421, "deadbeef")
	if err != nil {
		t.Fatalf("buildAnnouncement: %v", err)
	}

	peer, ok := parseAnnouncement(packet, nil)
	if !ok {
		t.Fatal("expected announcement to parse")
	}
	if peer.Name != "host-a" {
		t.Fatalf("expected name host-a, got %q", peer.Name)
	}
	if peer.Port != 53421 {
		t.Fatalf("expected port 53421, got %d", peer.Port)
	}
	if peer.Fingerprint != "deadbeef" {
		t.Fatalf("expected fingerprint deadbeef, got %q", peer.Fingerprint)
	}
}

func TestBrowserObserveTriggersOnPeerFoundOnce(t *testing.T) {
	br := NewBrowser()
	found := 0
	br.OnPeerFound = func(Peer) { found++ }

	br.observe(Peer{Name: "host-a", LastSeen: time.Now()})
	br.observe(Peer{Name: "host-a", LastSeen: time.Now()})

	if found != 1 {
		t.Fatalf("expected OnPeerFound exactly once for a repeated peer, got %d", found)
	}
	if len(br.Peers()) != 1 {
		t.Fatalf("expected 1 known peer, got %d", len(br.Peers()))
	}
}

func TestDiscoverReturnsAlreadyKnownPeerImmediately(t *testing.T) {
	br := NewBrowser()
	br.observe(Peer{Name: "host-a", Address: "10.0.0.5:53421", LastSeen: time.Now()})

	start := time.Now()
	peer, ok := br.Discover(context.Background(), "", 5*time.Second)
	elapsed := time.Since(start)

	if !ok {
		t.Fatal("expected Discover to find the already-known peer")
	}
	if peer.Name != "host-a" {
		t.Fatalf("expected host-a, got %q", peer.Name)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("expected Discover to return immediately for an already-known peer, took %s", elapsed)
	}
}

func TestDiscoverPrefersExpectedHostOverFirstSeen(t *testing.T) {
	br := NewBrowser()
	br.observe(Peer{Name: "host-b", Address: "10.0.0.6:53421", LastSeen: time.Now()})
	br.observe(Peer{Name: "host-a", Address: "10.0.0.5:53421", LastSeen: time.Now()})

	peer, ok := br.Discover(context.Background(), "host-a", 100*time.Millisecond)
	if !ok {
		t.Fatal("expected Discover to find host-a")
	}
	if peer.Name != "host-a" {
		t.Fatalf("expected the expected-host match host-a, got %q", peer.Name)
	}
}

func TestDiscoverSeesPeersAnnouncedAfterItStarts(t *testing.T) {
	br := NewBrowser()

	go func() {
		time.Sleep(10 * time.Millisecond)
		br.observe(Peer{Name: "host-a", Address: "10.0.0.5:53421", LastSeen: time.Now()})
	}()

	peer, ok := br.Discover(context.Background(), "", time.Second)
	if !ok {
		t.Fatal("expected Discover to see the peer announced mid-wait")
	}
	if peer.Name != "host-a" {
		t.Fatalf("expected host-a, got %q", peer.Name)
	}
}

func TestDiscoverTimesOutWithNoPeers(t *testing.T) {
	br := NewBrowser()
	_, ok := br.Discover(context.Background(), "", 20*time.Millisecond)
	if ok {
		t.Fatal("expected Discover to fail when no peer is ever seen")
	}
}

func TestBrowserEvictsStalePeers(t *testing.T) {
	br := NewBrowser()
	var expired Peer
	br.OnPeerExpired = func(p Peer) { expired = p }

	now := time.Now()
	br.observe(Peer{Name: "host-a", LastSeen: now.Add(-2 * peerTTL)})
	br.evictStale(now)

	if expired.Name != "host-a" {
		t.Fatalf("expected host-a to have expired, got %q", expired.Name)
	}
	if len(br.Peers()) != 0 {
		t.Fatal("expected no peers left after eviction")
	}
}
