package focus

import (
	"testing"
	"time"

	"github.com/yrbane/multishiva/internal/protocol"
	"github.com/yrbane/multishiva/internal/topology"
)

func TestEdgeHitWithoutFrictionCommitsImmediately(t *testing.T) {
	m := New(0)
	grabbed := false
	m.Grab = func() { grabbed = true }

	m.EdgeHit(topology.Right, "agent-a", 3)

	st := m.Snapshot()
	if st.Kind != Remote || st.Peer != "agent-a" {
		t.Fatalf("expected immediate Remote, got %+v", st)
	}
	if !grabbed {
		t.Fatal("expected devices grabbed on entering Remote")
	}
}

func TestEdgeHitWithFrictionGoesPendingThenRemote(t *testing.T) {
	m := New(20 * time.Millisecond)

	m.EdgeHit(topology.Right, "agent-a", 3)
	st := m.Snapshot()
	if st.Kind != Pending {
		t.Fatalf("expected Pending immediately after edge hit, got %v", st.Kind)
	}

	time.Sleep(60 * time.Millisecond)
	st = m.Snapshot()
	if st.Kind != Remote {
		t.Fatalf("expected Remote after friction elapses, got %v", st.Kind)
	}
}

func TestAbortPendingReturnsToLocal(t *testing.T) {
	m := New(50 * time.Millisecond)
	m.EdgeHit(topology.Right, "agent-a", 3)
	m.AbortPending()

	st := m.Snapshot()
	if st.Kind != Local {
		t.Fatalf("expected Local after abort, got %v", st.Kind)
	}

	time.Sleep(80 * time.Millisecond)
	st = m.Snapshot()
	if st.Kind != Local {
		t.Fatal("aborted pending transition must not still commit late")
	}
}

func TestReleaseReceivedOnlyFromHeldPeer(t *testing.T) {
	m := New(0)
	var ungrabbed bool
	m.Ungrab = func() { ungrabbed = true }
	m.EdgeHit(topology.Right, "agent-a", 0)

	m.ReleaseReceived("agent-b")
	if m.Snapshot().Kind != Remote {
		t.Fatal("release from a different peer must not change focus")
	}

	m.ReleaseReceived("agent-a")
	if m.Snapshot().Kind != Local {
		t.Fatal("release from held peer should return to Local")
	}
	if !ungrabbed {
		t.Fatal("expected devices ungrabbed on return to Local")
	}
}

func TestKillSwitchSendsReleaseAndReturnsLocal(t *testing.T) {
	m := New(0)
	var sentTo string
	var sentTag protocol.Tag
	m.Send = func(peer string, e protocol.Event) {
		sentTo = peer
		sentTag = e.Tag
	}
	m.EdgeHit(topology.Right, "agent-a", 0)

	m.KillSwitch()

	if m.Snapshot().Kind != Local {
		t.Fatal("expected Local after kill switch")
	}
	if sentTo != "agent-a" || sentTag != protocol.TagFocusRelease {
		t.Fatalf("expected FocusRelease sent to agent-a, got tag=%v to=%q", sentTag, sentTo)
	}
}

func TestConnectionLostFromRemoteReturnsLocal(t *testing.T) {
	m := New(0)
	m.EdgeHit(topology.Right, "agent-a", 0)
	m.ConnectionLost("agent-a")
	if m.Snapshot().Kind != Local {
		t.Fatal("expected Local after connection loss")
	}
}

func TestBufferDrainDiscardsStaleEvents(t *testing.T) {
	m := New(0)
	m.BufferCapture(protocol.Event{Tag: protocol.TagMouseMove})
	time.Sleep(150 * time.Millisecond)
	m.BufferCapture(protocol.Event{Tag: protocol.TagMouseMove})

	drained := m.DrainBuffered()
	if len(drained) != 1 {
		t.Fatalf("expected only the fresh event to survive drain, got %d", len(drained))
	}
}
