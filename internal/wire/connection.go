package wire

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yrbane/multishiva/internal/protocol"
)

// State is a Connection's position in its lifecycle.
type State int32

const (
	Dialing State = iota
	Handshaking
	Authenticated
	Degraded
	Closed
)

func (s State) String() string {
	switch s {
	case Dialing:
		return "dialing"
	case Handshaking:
		return "handshaking"
	case Authenticated:
		return "authenticated"
	case Degraded:
		return "degraded"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

const heartbeatInterval = 1 * time.Second
const degradedAfter = 3 * heartbeatInterval
const closeAfter = 5 * heartbeatInterval

// Connection is an authenticated transport session to one peer. It owns the
// read/write pumps and heartbeat monitor for the lifetime of the socket.
type Connection struct {
	ID          uint64
	PeerName    string
	RemoteAddr  string
	Fingerprint string

	conn net.Conn

	state atomic.Int32

	send chan protocol.Event
	recv chan protocol.Event
	done chan struct{}

	mu            sync.Mutex
	lastHeartbeat time.Time
	closeOnce     sync.Once

	heartbeatSeq atomic.Uint32

	// OnDegraded and OnClosed notify the orchestrator of lifecycle
	// transitions it needs to react to (e.g. revert focus to Local).
	OnDegraded func()
	OnClosed   func()
}

// NewConnection wraps an already-authenticated socket.
func NewConnection(id uint64, conn net.Conn, peerName, fingerprint string) *Connection {
	c := &Connection{
		ID:          id,
		PeerName:    peerName,
		RemoteAddr:  conn.RemoteAddr().String(),
		Fingerprint: fingerprint,
		conn:        conn,
		send:        make(chan protocol.Event, 256),
		recv:        make(chan protocol.Event, 256),
		done:        make(chan struct{}),
	}
	c.state.Store(int32(Authenticated))
	c.lastHeartbeat = time.Now()
	return c
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Inbound exposes decoded events received from the peer.
func (c *Connection) Inbound() <-chan protocol.Event {
	return c.recv
}

// Send enqueues an event for delivery, preserving program order. Sends on a
// closed connection are dropped.
func (c *Connection) Send(e protocol.Event) {
	select {
	case c.send <- e:
	case <-c.done:
	}
}

// Run starts the read pump, write pump, heartbeat emitter, and idle monitor.
// It blocks until the connection closes.
func (c *Connection) Run() {
	go c.writePump()
	go c.heartbeatLoop()
	c.readPump()
}

func (c *Connection) readPump() {
	defer c.Close()
	for {
		body, err := ReadFrame(c.conn)
		if err != nil {
			return
		}
		e, err := protocol.Decode(body)
		if err != nil {
			log.Printf("wire: connection %d (%s): closing on malformed frame: %v", c.ID, c.PeerName, err)
			return
		}
		c.touchHeartbeat()
		if e.Tag == protocol.TagHeartbeat {
			continue
		}
		select {
		case c.recv <- e:
		case <-c.done:
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-c.send:
			body, err := protocol.Encode(e)
			if err != nil {
				log.Printf("wire: connection %d (%s): encode error: %v", c.ID, c.PeerName, err)
				continue
			}
			if err := WriteFrame(c.conn, body); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			seq := c.heartbeatSeq.Add(1)
			body, _ := protocol.Encode(protocol.Event{
				Tag: protocol.TagHeartbeat,
				Heartbeat: protocol.Heartbeat{
					Seq:         seq,
					MonotonicMS: uint64(time.Now().UnixMilli()),
				},
			})
			if err := WriteFrame(c.conn, body); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Connection) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			idle := time.Since(c.lastHeartbeatSnapshot())
			switch {
			case idle >= closeAfter:
				c.Close()
				return
			case idle >= degradedAfter:
				if c.state.CompareAndSwap(int32(Authenticated), int32(Degraded)) {
					log.Printf("wire: connection %d (%s): degraded after %v idle", c.ID, c.PeerName, idle)
					if c.OnDegraded != nil {
						c.OnDegraded()
					}
				}
			}
		case <-c.done:
			return
		}
	}
}

func (c *Connection) touchHeartbeat() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
	if c.state.CompareAndSwap(int32(Degraded), int32(Authenticated)) {
		log.Printf("wire: connection %d (%s): recovered from degraded", c.ID, c.PeerName)
	}
}

func (c *Connection) lastHeartbeatSnapshot() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// Close terminates the connection and releases its goroutines. Safe to call
// more than once or from multiple goroutines.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(Closed))
		close(c.done)
		c.conn.Close()
		if c.OnClosed != nil {
			c.OnClosed()
		}
	})
}
