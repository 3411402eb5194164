package statusapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/yrbane/multishiva/internal/focus"
)

func TestListenServesStatus(t *testing.T) {
	s := New("host-a", "host", "")
	addr, closeFn, err := s.Listen(0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer closeFn()

	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.SelfName != "host-a" || snap.Mode != "host" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestOnFocusChangedUpdatesSnapshot(t *testing.T) {
	s := New("host-a", "host", "")
	s.OnFocusChanged(focus.State{Kind: focus.Remote, Peer: "agent-1"})

	addr, closeFn, err := s.Listen(0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer closeFn()

	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	var snap Snapshot
	json.NewDecoder(resp.Body).Decode(&snap)
	if snap.Focus != "remote" || snap.Peer != "agent-1" {
		t.Fatalf("expected remote/agent-1, got %+v", snap)
	}
}

func TestListenRequiresBearerTokenWhenConfigured(t *testing.T) {
	s := New("host-a", "host", "secret")
	addr, closeFn, err := s.Listen(0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer closeFn()

	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("GET", "http://"+addr+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with token: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with correct token, got %d", resp2.StatusCode)
	}

	healthResp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer healthResp.Body.Close()
	if healthResp.StatusCode != http.StatusOK {
		t.Fatalf("expected /health to bypass auth, got %d", healthResp.StatusCode)
	}
}
