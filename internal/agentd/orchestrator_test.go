package agentd

import (
	"testing"

	"github.com/yrbane/multishiva/internal/config"
	"github.com/yrbane/multishiva/internal/fingerprint"
	"github.com/yrbane/multishiva/internal/input"
	"github.com/yrbane/multishiva/internal/protocol"
	"github.com/yrbane/multishiva/internal/topology"
)

func testAgent(t *testing.T) *Agent {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SelfName = "agent-a"
	cfg.Mode = "agent"
	cfg.TLS.PSK = "secret"
	cfg.HostAddress = "host-a:53421"
	cfg.Screen.Width = 1920
	cfg.Screen.Height = 1080

	store, err := fingerprint.Open(t.TempDir() + "/fingerprints.json")
	if err != nil {
		t.Fatalf("open fingerprint store: %v", err)
	}
	a, err := New(cfg, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.SetInjector(input.NewSimulatedInjector())
	return a
}

func TestFromWireEdgeToWireEdgeRoundTrip(t *testing.T) {
	for _, d := range []topology.Direction{topology.Left, topology.Right, topology.Top, topology.Bottom} {
		if got := fromWireEdge(toWireEdge(d)); got != d {
			t.Fatalf("round trip through wire edge changed direction: %v -> %v", d, got)
		}
	}
}

func TestClamp(t *testing.T) {
	if clamp(-10, 0, 1919) != 0 {
		t.Fatal("expected clamp to floor at lo")
	}
	if clamp(5000, 0, 1919) != 1919 {
		t.Fatal("expected clamp to ceiling at hi")
	}
}

func TestBeginFocusSeedsCursorAtEntryPoint(t *testing.T) {
	a := testAgent(t)
	var gotFocused bool
	var gotHost string
	a.OnFocusChanged = func(focused bool, hostName string) { gotFocused, gotHost = focused, hostName }

	a.beginFocus(protocol.FocusGrant{From: "host-a", EnteredEdge: protocol.EdgeLeft, EntryX: 0, EntryY: 500})

	a.mu.Lock()
	x, y, focused, entered := a.cursorX, a.cursorY, a.focused, a.enteredEdge
	a.mu.Unlock()

	if !focused {
		t.Fatal("expected focused after beginFocus")
	}
	if x != 0 || y != 500 {
		t.Fatalf("expected cursor seeded at (0,500), got (%d,%d)", x, y)
	}
	if entered != topology.Left {
		t.Fatalf("expected enteredEdge Left, got %v", entered)
	}
	if !gotFocused || gotHost != "host-a" {
		t.Fatalf("expected OnFocusChanged(true, host-a), got (%v, %q)", gotFocused, gotHost)
	}
}

func TestTrackReturnEdgeDoesNotReleaseWhileStillOnEntryEdge(t *testing.T) {
	a := testAgent(t)
	a.beginFocus(protocol.FocusGrant{From: "host-a", EnteredEdge: protocol.EdgeLeft, EntryX: 0, EntryY: 500})

	// The cursor is seeded exactly on its entry edge; without gating this
	// would immediately look like a return crossing.
	a.trackReturnEdge(0, 500)

	a.mu.Lock()
	focused := a.focused
	away := a.awayFromEdge
	a.mu.Unlock()

	if !focused {
		t.Fatal("must not release focus merely for sitting on the entry edge")
	}
	if away {
		t.Fatal("must not consider the cursor away from the edge while still on it")
	}
}

func TestTrackReturnEdgeReleasesOnlyAfterMovingAwayThenBack(t *testing.T) {
	a := testAgent(t)
	var released bool
	a.OnFocusChanged = func(focused bool, hostName string) {
		if !focused {
			released = true
		}
	}
	a.beginFocus(protocol.FocusGrant{From: "host-a", EnteredEdge: protocol.EdgeLeft, EntryX: 0, EntryY: 500})

	// Move away from the entry edge into the interior of the screen.
	a.trackReturnEdge(960, 500)
	a.mu.Lock()
	away := a.awayFromEdge
	focused := a.focused
	a.mu.Unlock()
	if !away || !focused {
		t.Fatalf("expected awayFromEdge=true, focused=true after moving inward, got away=%v focused=%v", away, focused)
	}
	if released {
		t.Fatal("must not release focus while moving through the interior")
	}

	// Now cross back out through the left edge.
	a.trackReturnEdge(0, 500)
	a.mu.Lock()
	focused = a.focused
	a.mu.Unlock()
	if focused {
		t.Fatal("expected focus released after crossing back out through the entry edge")
	}
	if !released {
		t.Fatal("expected OnFocusChanged(false, ...) to fire on release")
	}
}

func TestTrackReturnEdgeIgnoresHitsOnEdgesOtherThanTheHostEdge(t *testing.T) {
	a := testAgent(t)
	var released bool
	a.OnFocusChanged = func(focused bool, hostName string) {
		if !focused {
			released = true
		}
	}
	// Entered via the left edge (the one bordering the host); the right
	// edge is the agent's own far boundary and must never release focus.
	a.beginFocus(protocol.FocusGrant{From: "host-a", EnteredEdge: protocol.EdgeLeft, EntryX: 0, EntryY: 500})

	a.trackReturnEdge(960, 500)
	a.trackReturnEdge(1919, 500)

	a.mu.Lock()
	focused := a.focused
	a.mu.Unlock()
	if !focused {
		t.Fatal("must not release focus for a hit on an edge other than the one bordering the host")
	}
	if released {
		t.Fatal("OnFocusChanged must not fire for a non-host edge hit")
	}
}

func TestSetHostAddressOverridesDialTarget(t *testing.T) {
	a := testAgent(t)
	a.SetHostAddress("192.168.1.50:53421")
	if got := a.hostDialAddress(); got != "192.168.1.50:53421" {
		t.Fatalf("expected overridden host address, got %q", got)
	}
}

func TestTrackReturnEdgeIgnoredWhenNotFocused(t *testing.T) {
	a := testAgent(t)
	// Never granted focus; any hit-test result must be a no-op.
	a.trackReturnEdge(0, 500)
	a.mu.Lock()
	focused := a.focused
	a.mu.Unlock()
	if focused {
		t.Fatal("trackReturnEdge must not grant focus on its own")
	}
}

func TestApplyMouseMoveIgnoredWhenNotFocused(t *testing.T) {
	a := testAgent(t)
	a.applyMouseMove(protocol.MouseMove{DX: 100, DY: 100})
	a.mu.Lock()
	x, y := a.cursorX, a.cursorY
	a.mu.Unlock()
	if x != 0 || y != 0 {
		t.Fatalf("expected cursor untouched while not focused, got (%d,%d)", x, y)
	}
}

func TestApplyMouseAbsIgnoredWhenNotFocused(t *testing.T) {
	a := testAgent(t)
	a.applyMouseAbs(protocol.MouseAbs{X: 500, Y: 500})
	a.mu.Lock()
	x, y := a.cursorX, a.cursorY
	a.mu.Unlock()
	if x != 0 || y != 0 {
		t.Fatalf("expected cursor untouched while not focused, got (%d,%d)", x, y)
	}
}

func TestApplyMouseAbsClampsToScreenBounds(t *testing.T) {
	a := testAgent(t)
	a.beginFocus(protocol.FocusGrant{From: "host-a", EnteredEdge: protocol.EdgeTop, EntryX: 960, EntryY: 0})
	a.applyMouseAbs(protocol.MouseAbs{X: 99999, Y: -50})

	a.mu.Lock()
	x, y := a.cursorX, a.cursorY
	a.mu.Unlock()
	if x != a.bounds.Width-1 {
		t.Fatalf("expected X clamped to %d, got %d", a.bounds.Width-1, x)
	}
	if y != 0 {
		t.Fatalf("expected Y clamped to 0, got %d", y)
	}
}
