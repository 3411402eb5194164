// Package agentd is the Agent Orchestrator: it dials the host, injects
// inbound events locally, and tracks its own virtual cursor so it can detect
// the crossing back to Local without the host's help.
package agentd

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yrbane/multishiva/internal/config"
	"github.com/yrbane/multishiva/internal/fingerprint"
	"github.com/yrbane/multishiva/internal/input"
	"github.com/yrbane/multishiva/internal/protocol"
	"github.com/yrbane/multishiva/internal/topology"
	"github.com/yrbane/multishiva/internal/wire"
)

// Agent owns the injector and the connection to the host, and self-detects
// the return-to-local edge crossing by tracking the position the host's
// FocusGrant seeded it at.
type Agent struct {
	mu sync.Mutex

	selfName     string
	hostAddress  string
	sharedSecret []byte
	bounds       topology.Bounds
	thresholdPx  int

	injector input.Injector
	store    *fingerprint.Store

	conn         *wire.Connection
	focused      bool
	cursorX      int
	cursorY      int
	enteredEdge  topology.Direction
	awayFromEdge bool

	// OnFocusChanged notifies observers (status API, tray) of local
	// Injecting/Idle transitions.
	OnFocusChanged func(focused bool, hostName string)
}

// New builds an Agent wired to cfg's identity and the host it dials.
func New(cfg *config.Config, store *fingerprint.Store) (*Agent, error) {
	inj, err := input.NewInjector()
	if err != nil {
		return nil, fmt.Errorf("agentd: build injector backend: %w", err)
	}
	return &Agent{
		selfName:     cfg.SelfName,
		hostAddress:  cfg.HostAddress,
		sharedSecret: []byte(cfg.TLS.PSK),
		bounds:       topology.Bounds{Width: cfg.Screen.Width, Height: cfg.Screen.Height},
		thresholdPx:  int(cfg.Behavior.EdgeThresholdPx),
		injector:     inj,
		store:        store,
	}, nil
}

// SetInjector overrides the injection backend, used by cmd/multishiva to
// plug in the simulated backend under --simulate.
func (a *Agent) SetInjector(i input.Injector) {
	a.injector = i
}

// SetHostAddress overrides the dial target. Used when the agent was
// configured with no host_address and the address was instead resolved via
// LAN discovery.
func (a *Agent) SetHostAddress(addr string) {
	a.mu.Lock()
	a.hostAddress = addr
	a.mu.Unlock()
}

func (a *Agent) hostDialAddress() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hostAddress
}

// Run dials the host with reconnect backoff and processes inbound events
// until ctx is cancelled.
func (a *Agent) Run(ctx context.Context, reconnectDelay time.Duration) error {
	backoff := wire.NewBackoff(reconnectDelay)
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := wire.Retry(ctx, backoff, func() error {
			addr := a.hostDialAddress()
			c, err := wire.DialAndHandshake(ctx, addr, a.selfName, a.sharedSecret, a.store)
			if err != nil {
				log.Printf("agentd: dial %s failed: %v", addr, err)
				return err
			}
			a.attach(c)
			return nil
		})
		if err != nil {
			return err
		}
		a.serveConnection(ctx)
	}
}

func (a *Agent) attach(c *wire.Connection) {
	a.mu.Lock()
	a.conn = c
	a.mu.Unlock()
	log.Printf("agentd: connected to host %s (%s)", c.PeerName, c.RemoteAddr)
}

func (a *Agent) serveConnection(ctx context.Context) {
	a.mu.Lock()
	c := a.conn
	a.mu.Unlock()
	if c == nil {
		return
	}

	done := make(chan struct{})
	c.OnClosed = func() { close(done) }
	go c.Run()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-done:
			a.mu.Lock()
			a.conn = nil
			a.focused = false
			a.mu.Unlock()
			return
		case e, ok := <-c.Inbound():
			if !ok {
				continue
			}
			a.handleInbound(e)
		}
	}
}

func (a *Agent) handleInbound(e protocol.Event) {
	switch e.Tag {
	case protocol.TagFocusGrant:
		a.beginFocus(e.FocusGrant)
	case protocol.TagMouseMove:
		a.applyMouseMove(e.MouseMove)
	case protocol.TagMouseAbs:
		a.applyMouseAbs(e.MouseAbs)
	case protocol.TagMouseButton:
		if err := a.injector.InjectMouseButton(e.MouseButton.Button, e.MouseButton.Pressed); err != nil {
			log.Printf("agentd: inject mouse button: %v", err)
		}
	case protocol.TagMouseScroll:
		if err := a.injector.InjectMouseScroll(e.MouseScroll.DX, e.MouseScroll.DY); err != nil {
			log.Printf("agentd: inject scroll: %v", err)
		}
	case protocol.TagKeyEvent:
		if err := a.injector.InjectKey(e.KeyEvent.Code, e.KeyEvent.Pressed, e.KeyEvent.Modifiers); err != nil {
			log.Printf("agentd: inject key: %v", err)
		}
	}
}

func (a *Agent) beginFocus(grant protocol.FocusGrant) {
	a.mu.Lock()
	a.focused = true
	a.cursorX = clamp(int(grant.EntryX), 0, a.bounds.Width-1)
	a.cursorY = clamp(int(grant.EntryY), 0, a.bounds.Height-1)
	a.enteredEdge = fromWireEdge(grant.EnteredEdge)
	a.awayFromEdge = false
	hostName := grant.From
	a.mu.Unlock()

	if err := a.injector.InjectMouseAbs(int32(a.cursorX), int32(a.cursorY)); err != nil {
		log.Printf("agentd: seed cursor position: %v", err)
	}
	log.Printf("agentd: focus granted by %s, entering at (%d,%d) via %s", hostName, a.cursorX, a.cursorY, grant.EnteredEdge)
	if a.OnFocusChanged != nil {
		a.OnFocusChanged(true, hostName)
	}
}

func (a *Agent) applyMouseMove(m protocol.MouseMove) {
	a.mu.Lock()
	if !a.focused {
		a.mu.Unlock()
		return
	}
	a.cursorX = clamp(a.cursorX+int(m.DX), 0, a.bounds.Width-1)
	a.cursorY = clamp(a.cursorY+int(m.DY), 0, a.bounds.Height-1)
	x, y := a.cursorX, a.cursorY
	a.mu.Unlock()

	if err := a.injector.InjectMouseMove(m.DX, m.DY); err != nil {
		log.Printf("agentd: inject move: %v", err)
	}
	a.trackReturnEdge(x, y)
}

func (a *Agent) applyMouseAbs(m protocol.MouseAbs) {
	a.mu.Lock()
	if !a.focused {
		a.mu.Unlock()
		return
	}
	a.cursorX = clamp(int(m.X), 0, a.bounds.Width-1)
	a.cursorY = clamp(int(m.Y), 0, a.bounds.Height-1)
	x, y := a.cursorX, a.cursorY
	a.mu.Unlock()

	if err := a.injector.InjectMouseAbs(m.X, m.Y); err != nil {
		log.Printf("agentd: inject abs: %v", err)
	}
	a.trackReturnEdge(x, y)
}

// trackReturnEdge is the agent-side half of the return-to-Local transition.
// The cursor is seeded exactly on its entry edge, so the first hit-test
// would otherwise fire immediately; awayFromEdge gates detection until the
// cursor has actually moved off that edge at least once, so only a genuine
// crossing back out releases focus. Only enteredEdge maps back toward the
// host: it is the edge the FocusGrant carried the cursor in through, so a
// hit against any other edge is the agent's own screen boundary, not a
// crossing worth releasing over.
func (a *Agent) trackReturnEdge(x, y int) {
	dir, _, hit := topology.HitTest(x, y, a.bounds, a.thresholdPx)

	a.mu.Lock()
	if !a.focused {
		a.mu.Unlock()
		return
	}
	if !a.awayFromEdge {
		if !hit || dir != a.enteredEdge {
			a.awayFromEdge = true
		}
		a.mu.Unlock()
		return
	}
	if !hit || dir != a.enteredEdge {
		a.mu.Unlock()
		return
	}
	a.focused = false
	c := a.conn
	a.mu.Unlock()

	if c == nil {
		return
	}
	c.Send(protocol.Event{
		Tag:          protocol.TagFocusRelease,
		FocusRelease: protocol.FocusRelease{From: a.selfName, ExitEdge: toWireEdge(dir)},
	})
	log.Printf("agentd: cursor exited via %s edge, releasing focus back to host", dir)
	if a.OnFocusChanged != nil {
		a.OnFocusChanged(false, "")
	}
}

func fromWireEdge(e protocol.Edge) topology.Direction {
	switch e {
	case protocol.EdgeLeft:
		return topology.Left
	case protocol.EdgeRight:
		return topology.Right
	case protocol.EdgeTop:
		return topology.Top
	case protocol.EdgeBottom:
		return topology.Bottom
	default:
		return topology.Left
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

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
