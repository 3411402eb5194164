// Package hostd is the Host Orchestrator: it owns local input capture, the
// focus state machine, the topology hit-test that drives it, and the set of
// authenticated wire connections to neighboring agents.
package hostd

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/yrbane/multishiva/internal/config"
	"github.com/yrbane/multishiva/internal/fingerprint"
	"github.com/yrbane/multishiva/internal/focus"
	"github.com/yrbane/multishiva/internal/input"
	"github.com/yrbane/multishiva/internal/protocol"
	"github.com/yrbane/multishiva/internal/topology"
	"github.com/yrbane/multishiva/internal/wire"
)

// Host coordinates capture, topology, focus and the connections to every
// configured neighbor.
type Host struct {
	mu sync.Mutex

	selfName     string
	sharedSecret []byte
	bounds       topology.Bounds
	thresholdPx  int

	capture  input.Capture
	topo     *topology.Topology
	Focus    *focus.Manager
	registry *wire.Registry
	store    *fingerprint.Store

	cursorX, cursorY int

	observersMu sync.Mutex
	observers   []func(focus.State)

	// OnPeerConnected and OnPeerDisconnected notify observers (status API,
	// tray) of connection lifecycle, independent of focus transitions.
	OnPeerConnected    func(peer string)
	OnPeerDisconnected func(peer string)

	// OnKeyEvent taps every captured key press/release regardless of focus
	// state, so hotkey.Manager can match against it. On platforms with
	// their own global hook (Windows, macOS) this stays unused; on Linux
	// it is the only source of key events, since capture already opens
	// every input device.
	OnKeyEvent func(name string, pressed bool)
}

// New builds a Host wired to cfg's identity, screen bounds and edges.
func New(cfg *config.Config, topo *topology.Topology, store *fingerprint.Store) (*Host, error) {
	cap, err := input.NewCapture()
	if err != nil {
		return nil, fmt.Errorf("hostd: build capture backend: %w", err)
	}

	h := &Host{
		selfName:     cfg.SelfName,
		sharedSecret: []byte(cfg.TLS.PSK),
		bounds:       topology.Bounds{Width: cfg.Screen.Width, Height: cfg.Screen.Height},
		thresholdPx:  int(cfg.Behavior.EdgeThresholdPx),
		capture:      cap,
		topo:         topo,
		registry:     wire.NewRegistry(),
		store:        store,
		cursorX:      cfg.Screen.Width / 2,
		cursorY:      cfg.Screen.Height / 2,
	}
	h.Focus = focus.New(time.Duration(cfg.Behavior.FrictionMS) * time.Millisecond)
	h.Focus.SelfName = cfg.SelfName
	h.Focus.Send = h.sendToPeer
	h.Focus.Grab = func() {
		if err := h.capture.Grab(); err != nil {
			log.Printf("hostd: grab failed: %v", err)
		}
	}
	h.Focus.Ungrab = func() {
		if err := h.capture.Ungrab(); err != nil {
			log.Printf("hostd: ungrab failed: %v", err)
		}
	}
	h.Focus.EntryPoint = func(edge topology.Direction, overshootPx int) (int32, int32) {
		h.mu.Lock()
		x, y := h.cursorX, h.cursorY
		h.mu.Unlock()
		ratio := perpendicularRatio(edge, x, y, h.bounds)
		ex, ey := topology.EntryPoint(topology.Opposite(edge), ratio, h.bounds)
		return int32(ex), int32(ey)
	}
	h.Focus.OnStateChanged = func(st focus.State) {
		go h.onFocusChanged(st)
		h.observersMu.Lock()
		observers := append([]func(focus.State){}, h.observers...)
		h.observersMu.Unlock()
		for _, o := range observers {
			o(st)
		}
	}
	return h, nil
}

// AddStateObserver registers fn to be called on every focus transition.
// Observers run synchronously from focus.Manager's OnStateChanged hook,
// while the manager's internal lock is held, so a call from fn back into
// h.Focus deadlocks. Used by cmd/multishiva to wire the status API and tray
// without either needing to know about the other.
func (h *Host) AddStateObserver(fn func(focus.State)) {
	h.observersMu.Lock()
	defer h.observersMu.Unlock()
	h.observers = append(h.observers, fn)
}

// SetCapture overrides the capture backend, used by cmd/multishiva to plug
// in the simulated backend under --simulate.
func (h *Host) SetCapture(c input.Capture) {
	h.capture = c
}

// Registry exposes the live connection arena.
func (h *Host) Registry() *wire.Registry { return h.registry }

// Run starts capture and processes raw events until ctx is cancelled.
func (h *Host) Run(ctx context.Context) error {
	if err := h.capture.Start(); err != nil {
		return fmt.Errorf("hostd: start capture: %w", err)
	}
	defer h.capture.Stop()

	events := h.capture.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			h.handleRaw(e)
		}
	}
}

// Serve accepts and authenticates inbound agent connections on port until
// ctx is cancelled.
func (h *Host) Serve(ctx context.Context, port int) error {
	ln, err := wire.Listen(port)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Printf("hostd: accept error: %v", err)
				continue
			}
		}
		go h.handleAccept(conn)
	}
}

func (h *Host) handleAccept(conn net.Conn) {
	authed, err := wire.AcceptAndHandshake(conn, h.selfName, h.sharedSecret, h.store)
	if err != nil {
		log.Printf("hostd: handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	h.AddConnection(authed)
}

// AddConnection registers an authenticated connection and starts its pumps
// and inbound event dispatch.
func (h *Host) AddConnection(c *wire.Connection) {
	h.registry.Add(c)
	c.OnClosed = func() {
		h.registry.Remove(c.ID)
		h.Focus.ConnectionLost(c.PeerName)
		if h.OnPeerDisconnected != nil {
			h.OnPeerDisconnected(c.PeerName)
		}
	}
	c.OnDegraded = func() {
		log.Printf("hostd: connection to %s degraded", c.PeerName)
	}
	go c.Run()
	go h.readInbound(c)
	if h.OnPeerConnected != nil {
		h.OnPeerConnected(c.PeerName)
	}
	log.Printf("hostd: connected to %s (%s)", c.PeerName, c.RemoteAddr)
}

func (h *Host) readInbound(c *wire.Connection) {
	for e := range c.Inbound() {
		if e.Tag == protocol.TagFocusRelease {
			h.Focus.ReleaseReceived(e.FocusRelease.From)
		}
	}
}

func (h *Host) sendToPeer(peer string, e protocol.Event) {
	c, ok := h.registry.ByPeer(peer)
	if !ok {
		log.Printf("hostd: no connection to peer %s, dropping event", peer)
		return
	}
	c.Send(e)
}

func (h *Host) handleRaw(e input.RawEvent) {
	h.mu.Lock()
	if e.Type == input.EventMouseMove {
		h.cursorX = clamp(h.cursorX+int(e.DX), 0, h.bounds.Width-1)
		h.cursorY = clamp(h.cursorY+int(e.DY), 0, h.bounds.Height-1)
	}
	x, y := h.cursorX, h.cursorY
	h.mu.Unlock()

	if e.Type == input.EventKey && h.OnKeyEvent != nil {
		if name := keyName(e.KeyCode); name != "" {
			h.OnKeyEvent(name, e.Pressed)
		}
	}

	st := h.Focus.Snapshot()
	switch st.Kind {
	case focus.Local:
		h.evaluateEdge(x, y)
	case focus.Pending:
		h.evaluatePending(x, y)
		h.Focus.BufferCapture(translateRaw(e))
	case focus.Remote:
		h.sendToPeer(st.Peer, translateRaw(e))
	}
}

func (h *Host) evaluateEdge(x, y int) {
	dir, overshoot, ok := topology.HitTest(x, y, h.bounds, h.thresholdPx)
	if !ok {
		return
	}
	neighbor, ok := h.topo.Neighbor(h.selfName, dir)
	if !ok || neighbor == "" {
		return
	}
	h.Focus.EdgeHit(dir, neighbor, overshoot)
}

func (h *Host) evaluatePending(x, y int) {
	_, _, ok := topology.HitTest(x, y, h.bounds, h.thresholdPx)
	if !ok {
		h.Focus.AbortPending()
	}
}

func (h *Host) onFocusChanged(st focus.State) {
	if st.Kind != focus.Remote {
		return
	}
	for _, e := range h.Focus.DrainBuffered() {
		h.sendToPeer(st.Peer, e)
	}
}

func translateRaw(e input.RawEvent) protocol.Event {
	switch e.Type {
	case input.EventMouseMove:
		return protocol.Event{Tag: protocol.TagMouseMove, MouseMove: protocol.MouseMove{DX: e.DX, DY: e.DY}}
	case input.EventMouseButton:
		return protocol.Event{Tag: protocol.TagMouseButton, MouseButton: protocol.MouseButton{Button: e.Button, Pressed: e.Pressed}}
	case input.EventMouseScroll:
		return protocol.Event{Tag: protocol.TagMouseScroll, MouseScroll: protocol.MouseScroll{DX: int16(e.DX), DY: int16(e.DY)}}
	case input.EventKey:
		return protocol.Event{Tag: protocol.TagKeyEvent, KeyEvent: protocol.KeyEvent{Code: e.KeyCode, Pressed: e.Pressed, Modifiers: e.Modifiers}}
	default:
		return protocol.Event{Tag: protocol.TagHeartbeat}
	}
}

// perpendicularRatio maps the coordinate along the axis parallel to edge into
// a 0..1 ratio for topology.EntryPoint's proportional mapping.
func perpendicularRatio(edge topology.Direction, x, y int, bounds topology.Bounds) float64 {
	switch edge {
	case topology.Left, topology.Right:
		if bounds.Height <= 1 {
			return 0
		}
		return float64(y) / float64(bounds.Height-1)
	default:
		if bounds.Width <= 1 {
			return 0
		}
		return float64(x) / float64(bounds.Width-1)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
