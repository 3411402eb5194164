// Package focus implements the owner-of-input state machine: which machine
// currently consumes the physical keyboard and pointer, with friction
// hysteresis at edges and an emergency kill-switch.
package focus

import (
	"log"
	"sync"
	"time"

	"github.com/yrbane/multishiva/internal/protocol"
	"github.com/yrbane/multishiva/internal/topology"
)

// Kind is the discriminant of a State value.
type Kind int

const (
	Local Kind = iota
	Pending
	Remote
)

func (k Kind) String() string {
	switch k {
	case Local:
		return "local"
	case Pending:
		return "pending"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// State is a snapshot of focus ownership.
type State struct {
	Kind        Kind
	Peer        string
	EnteredAt   time.Time
	EnteredEdge topology.Direction
}

// bufferedEvent is a capture-side event queued while a transition to Remote
// is settling, so nothing is lost between state entry and the first
// outbound send.
type bufferedEvent struct {
	event protocol.Event
	at    time.Time
}

const ringCapacity = 64
const ringStaleness = 100 * time.Millisecond

// Manager owns FocusState and is the only component permitted to mutate it.
// Other components observe it via Snapshot or the OnStateChanged hook.
type Manager struct {
	mu    sync.Mutex
	state State

	frictionMS       time.Duration
	pendingTimer     *time.Timer
	pendingEdge      topology.Direction
	pendingOvershoot int

	ring []bufferedEvent

	// SelfName is stamped into outbound FocusGrant/FocusRelease so the
	// receiving peer knows who to address its own release back to.
	SelfName string

	// EntryPoint computes where the remote cursor should appear given the
	// edge it entered through and how far it overshot; wired by the
	// orchestrator to a closure around topology.EntryPoint.
	EntryPoint func(edge topology.Direction, overshootPx int) (x, y int32)

	// Send delivers an outbound event to the named peer's connection. Grab
	// and Ungrab drive the Linux exclusive-grab discipline (no-ops on
	// platforms without it). OnStateChanged notifies observers (tray,
	// orchestrator logging) of every transition.
	Send           func(peer string, e protocol.Event)
	Grab           func()
	Ungrab         func()
	OnStateChanged func(State)
}

// New returns a Manager starting in Local focus.
func New(frictionMS time.Duration) *Manager {
	return &Manager{
		state:      State{Kind: Local},
		frictionMS: frictionMS,
	}
}

// Snapshot returns the current focus state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EdgeHit is called by the orchestrator when the local cursor crosses into
// threshold of an edge that maps to neighbor, carrying the overshoot used
// later to compute the remote entry point.
func (m *Manager) EdgeHit(edge topology.Direction, neighbor string, overshootPx int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Kind != Local {
		return
	}

	if m.frictionMS <= 0 {
		m.commitToRemote(edge, neighbor, overshootPx)
		m.notifyLocked()
		return
	}

	m.state = State{Kind: Pending, Peer: neighbor, EnteredAt: time.Now(), EnteredEdge: edge}
	m.pendingEdge = edge
	m.pendingOvershoot = overshootPx
	m.resetPendingTimerLocked(edge, neighbor, overshootPx)
	m.notifyLocked()
}

// PerpendicularMotion resets the friction timer when movement is roughly
// parallel to the edge rather than continuing to press into it, per the
// friction-resets-on-perpendicular-motion rule.
func (m *Manager) PerpendicularMotion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != Pending {
		return
	}
	m.resetPendingTimerLocked(m.pendingEdge, m.state.Peer, m.pendingOvershoot)
}

// AbortPending cancels a pending transition (cursor moved away from the
// edge before friction elapsed) and returns to Local.
func (m *Manager) AbortPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != Pending {
		return
	}
	m.stopPendingTimerLocked()
	m.state = State{Kind: Local}
	m.notifyLocked()
}

func (m *Manager) resetPendingTimerLocked(edge topology.Direction, neighbor string, overshootPx int) {
	m.stopPendingTimerLocked()
	m.pendingTimer = time.AfterFunc(m.frictionMS, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state.Kind != Pending {
			return
		}
		m.commitToRemote(edge, neighbor, overshootPx)
		m.notifyLocked()
	})
}

func (m *Manager) stopPendingTimerLocked() {
	if m.pendingTimer != nil {
		m.pendingTimer.Stop()
		m.pendingTimer = nil
	}
}

// commitToRemote must be called with mu held.
func (m *Manager) commitToRemote(edge topology.Direction, neighbor string, overshootPx int) {
	m.state = State{Kind: Remote, Peer: neighbor, EnteredAt: time.Now(), EnteredEdge: edge}
	if m.Grab != nil {
		m.Grab()
	}
	m.startRing()

	if m.Send != nil {
		var entryX, entryY int32
		if m.EntryPoint != nil {
			entryX, entryY = m.EntryPoint(edge, overshootPx)
		}
		// EnteredEdge names the edge on the *receiving* screen the cursor
		// lands on, i.e. the edge opposite the one crossed here, since that
		// is what the agent needs to seed its cursor and later recognize as
		// its own return-to-host edge.
		m.Send(neighbor, protocol.Event{
			Tag: protocol.TagFocusGrant,
			FocusGrant: protocol.FocusGrant{
				From:        m.SelfName,
				EnteredEdge: toWireEdge(topology.Opposite(edge)),
				EntryX:      entryX,
				EntryY:      entryY,
			},
		})
	}
	log.Printf("focus: now Remote{%s} via %s edge", neighbor, edge)
}

// BufferCapture records an event captured locally while focus is settling
// into Remote, so nothing is lost before the first real send drains it.
// Returns false once the ring is full (caller should drop, per spec — the
// ring itself never grows unbounded).
func (m *Manager) BufferCapture(e protocol.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ring) >= ringCapacity {
		return false
	}
	m.ring = append(m.ring, bufferedEvent{event: e, at: time.Now()})
	return true
}

// DrainBuffered returns buffered events newer than the staleness window and
// clears the ring.
func (m *Manager) DrainBuffered() []protocol.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := make([]protocol.Event, 0, len(m.ring))
	for _, b := range m.ring {
		if now.Sub(b.at) <= ringStaleness {
			out = append(out, b.event)
		}
	}
	m.ring = nil
	return out
}

func (m *Manager) startRing() {
	m.ring = make([]bufferedEvent, 0, ringCapacity)
}

// ReleaseReceived handles an inbound FocusRelease from the currently
// remote-held peer (host side) or signals agent-side release of local
// injection; either way focus reverts to Local.
func (m *Manager) ReleaseReceived(from string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != Remote || m.state.Peer != from {
		return
	}
	m.toLocalLocked()
}

// ConnectionLost reverts focus to Local when the connection to the
// currently focused peer drops.
func (m *Manager) ConnectionLost(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind == Pending && m.state.Peer == peer {
		m.stopPendingTimerLocked()
		m.state = State{Kind: Local}
		m.notifyLocked()
		return
	}
	if m.state.Kind != Remote || m.state.Peer != peer {
		return
	}
	m.toLocalLocked()
}

// KillSwitch forces an immediate return to Local, emitting FocusRelease to
// the currently held peer if any.
func (m *Manager) KillSwitch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind == Remote {
		peer := m.state.Peer
		edge := m.state.EnteredEdge
		if m.Send != nil {
			m.Send(peer, protocol.Event{
				Tag:          protocol.TagFocusRelease,
				FocusRelease: protocol.FocusRelease{From: m.SelfName, ExitEdge: toWireEdge(edge)},
			})
		}
	}
	m.toLocalLocked()
}

// FocusReturnHotkey implements the "Any -> Local" transition triggered by
// the configured focus-return hotkey.
func (m *Manager) FocusReturnHotkey() {
	m.KillSwitch()
}

func (m *Manager) toLocalLocked() {
	m.stopPendingTimerLocked()
	m.state = State{Kind: Local}
	m.ring = nil
	if m.Ungrab != nil {
		m.Ungrab()
	}
	m.notifyLocked()
}

func (m *Manager) notifyLocked() {
	if m.OnStateChanged != nil {
		m.OnStateChanged(m.state)
	}
}

func toWireEdge(d topology.Direction) protocol.Edge {
	switch d {
	case topology.Left:
		return protocol.EdgeLeft
	case topology.Right:
		return protocol.EdgeRight
	case topology.Top:
		return protocol.EdgeTop
	case topology.Bottom:
		return protocol.EdgeBottom
	default:
		return protocol.EdgeLeft
	}
}
