package hostd

import (
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/yrbane/multishiva/internal/config"
	"github.com/yrbane/multishiva/internal/fingerprint"
	"github.com/yrbane/multishiva/internal/input"
	"github.com/yrbane/multishiva/internal/protocol"
	"github.com/yrbane/multishiva/internal/topology"
	"github.com/yrbane/multishiva/internal/wire"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.SelfName = "host-a"
	cfg.TLS.PSK = "secret"
	cfg.Edges.Right = "agent-a"
	cfg.Screen.Width = 1920
	cfg.Screen.Height = 1080
	return cfg
}

func testTopology() *topology.Topology {
	topo := topology.New()
	topo.SetEdge("host-a", topology.Right, "agent-a")
	return topo
}

func pairedConnection(t *testing.T, id uint64, peerName string) (*wire.Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	c := wire.NewConnection(id, server, peerName, "fingerprint")
	return c, client
}

func TestTranslateRawMapsEventTypes(t *testing.T) {
	cases := []struct {
		in   input.RawEvent
		want protocol.Tag
	}{
		{input.RawEvent{Type: input.EventMouseMove, DX: 5, DY: -3}, protocol.TagMouseMove},
		{input.RawEvent{Type: input.EventMouseButton, Button: 1, Pressed: true}, protocol.TagMouseButton},
		{input.RawEvent{Type: input.EventMouseScroll, DX: 0, DY: 1}, protocol.TagMouseScroll},
		{input.RawEvent{Type: input.EventKey, KeyCode: 30, Pressed: true}, protocol.TagKeyEvent},
	}
	for _, tc := range cases {
		got := translateRaw(tc.in)
		if got.Tag != tc.want {
			t.Fatalf("translateRaw(%+v): expected tag %v, got %v", tc.in, tc.want, got.Tag)
		}
	}
}

func TestTranslateRawPreservesMouseMoveDeltas(t *testing.T) {
	e := translateRaw(input.RawEvent{Type: input.EventMouseMove, DX: 7, DY: -2})
	if e.MouseMove.DX != 7 || e.MouseMove.DY != -2 {
		t.Fatalf("expected deltas preserved, got %+v", e.MouseMove)
	}
}

func TestPerpendicularRatioLeftRightUsesY(t *testing.T) {
	bounds := topology.Bounds{Width: 1920, Height: 1080}
	ratio := perpendicularRatio(topology.Right, 1919, 1079, bounds)
	if ratio < 0.99 || ratio > 1.0 {
		t.Fatalf("expected ratio near 1.0 at bottom of screen, got %v", ratio)
	}
	ratio = perpendicularRatio(topology.Left, 0, 0, bounds)
	if ratio != 0 {
		t.Fatalf("expected ratio 0 at top of screen, got %v", ratio)
	}
}

func TestPerpendicularRatioTopBottomUsesX(t *testing.T) {
	bounds := topology.Bounds{Width: 1920, Height: 1080}
	ratio := perpendicularRatio(topology.Top, 960, 0, bounds)
	if ratio < 0.49 || ratio > 0.51 {
		t.Fatalf("expected ratio near 0.5 at horizontal midpoint, got %v", ratio)
	}
}

func TestClamp(t *testing.T) {
	if clamp(-5, 0, 100) != 0 {
		t.Fatal("expected clamp to floor at lo")
	}
	if clamp(500, 0, 100) != 100 {
		t.Fatal("expected clamp to ceiling at hi")
	}
	if clamp(50, 0, 100) != 50 {
		t.Fatal("expected clamp to pass through in-range values")
	}
}

func TestHandleRawEdgeHitTransitionsToRemoteAndSendsGrant(t *testing.T) {
	cfg := testConfig()
	cfg.Behavior.FrictionMS = 0
	dir := t.TempDir() + "/fingerprints.json"
	store, err := fingerprint.Open(dir)
	if err != nil {
		t.Fatalf("open fingerprint store: %v", err)
	}

	h, err := New(cfg, testTopology(), store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.SetCapture(input.NewSimulatedCapture())

	conn, client := pairedConnection(t, 1, "agent-a")
	received := make(chan protocol.Event, 8)
	go func() {
		for {
			body, err := wire.ReadFrame(client)
			if err != nil {
				return
			}
			e, err := protocol.Decode(body)
			if err != nil {
				continue
			}
			received <- e
		}
	}()
	h.AddConnection(conn)

	// Cursor starts centered; drive it to the right edge to trigger a
	// friction-free commit to Remote.
	h.handleRaw(input.RawEvent{Type: input.EventMouseMove, DX: int32(cfg.Screen.Width), DY: 0})

	select {
	case e := <-received:
		if e.Tag != protocol.TagFocusGrant {
			t.Fatalf("expected FocusGrant sent to agent-a, got %v", e.Tag)
		}
		if e.FocusGrant.From != "host-a" {
			t.Fatalf("expected FocusGrant.From host-a, got %q", e.FocusGrant.From)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for FocusGrant to be sent")
	}

	if h.Focus.Snapshot().Kind.String() != "remote" {
		t.Fatalf("expected Remote after edge hit, got %v", h.Focus.Snapshot().Kind)
	}
}

func TestAddConnectionReleasesFocusOnClose(t *testing.T) {
	cfg := testConfig()
	cfg.Behavior.FrictionMS = 0
	store, err := fingerprint.Open(t.TempDir() + "/fingerprints.json")
	if err != nil {
		t.Fatalf("open fingerprint store: %v", err)
	}

	h, err := New(cfg, testTopology(), store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	conn, _ := pairedConnection(t, 1, "agent-a")
	h.AddConnection(conn)
	h.Focus.EdgeHit(topology.Right, "agent-a", 3)
	if h.Focus.Snapshot().Kind.String() != "remote" {
		t.Fatalf("expected Remote after edge hit, got %v", h.Focus.Snapshot().Kind)
	}

	conn.Close()
	time.Sleep(20 * time.Millisecond)
	if h.Focus.Snapshot().Kind.String() != "local" {
		t.Fatal("expected connection loss to return focus to Local")
	}
}

func TestHandleRawTapsKeyEventsIntoOnKeyEvent(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("keyName only maps evdev codes on linux; it is a no-op elsewhere")
	}

	cfg := testConfig()
	store, err := fingerprint.Open(t.TempDir() + "/fingerprints.json")
	if err != nil {
		t.Fatalf("open fingerprint store: %v", err)
	}
	h, err := New(cfg, testTopology(), store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	type call struct {
		name    string
		pressed bool
	}
	calls := make(chan call, 4)
	h.OnKeyEvent = func(name string, pressed bool) {
		calls <- call{name, pressed}
	}

	h.handleRaw(input.RawEvent{Type: input.EventKey, KeyCode: 30, Pressed: true}) // KEY_A
	h.handleRaw(input.RawEvent{Type: input.EventKey, KeyCode: 30, Pressed: false})
	h.handleRaw(input.RawEvent{Type: input.EventKey, KeyCode: 9999, Pressed: true}) // unmapped

	select {
	case c := <-calls:
		if c.name != "A" || !c.pressed {
			t.Fatalf("expected A-down first, got %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for key-down tap")
	}
	select {
	case c := <-calls:
		if c.name != "A" || c.pressed {
			t.Fatalf("expected A-up second, got %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for key-up tap")
	}
	select {
	case c := <-calls:
		t.Fatalf("expected no tap for an unmapped key code, got %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}
