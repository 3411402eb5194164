// Package statusapi exposes a loopback-only HTTP and WebSocket surface for
// observing this instance's focus state and known peers — a
// read-only dashboard, never a control channel for input or focus, since
// those are governed exclusively by the wire protocol's authenticated
// connections.
package statusapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yrbane/multishiva/internal/focus"
)

// Snapshot is the JSON status document served at /api/status and pushed to
// every websocket subscriber on change.
type Snapshot struct {
	SelfName  string       `json:"self_name"`
	Mode      string       `json:"mode"`
	Focus     string       `json:"focus"`
	Peer      string       `json:"peer,omitempty"`
	Peers     []PeerStatus `json:"peers"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// PeerStatus reports one connection's health as observed by the wire layer.
type PeerStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server serves the status surface. It only ever binds to loopback
// addresses: the dashboard is a local diagnostic tool, not a network API.
type Server struct {
	selfName string
	mode     string
	token    string

	mu       sync.RWMutex
	snapshot Snapshot

	clientsMu sync.Mutex
	clients   map[*client]bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New constructs a Server for the given identity. token, when non-empty, is
// required as "Authorization: Bearer <token>" on every request but /health.
func New(selfName, mode, token string) *Server {
	return &Server{
		selfName: selfName,
		mode:     mode,
		token:    token,
		snapshot: Snapshot{SelfName: selfName, Mode: mode, Focus: focus.Local.String()},
		clients:  make(map[*client]bool),
	}
}

// OnFocusChanged updates the served snapshot and pushes it to every
// connected websocket client; wire this directly to focus.Manager's
// OnStateChanged callback.
func (s *Server) OnFocusChanged(st focus.State) {
	s.mu.Lock()
	s.snapshot.Focus = st.Kind.String()
	s.snapshot.Peer = st.Peer
	s.snapshot.UpdatedAt = time.Now()
	snap := s.snapshot
	s.mu.Unlock()
	s.broadcast(snap)
}

// SetPeers replaces the reported peer connection list.
func (s *Server) SetPeers(peers []PeerStatus) {
	s.mu.Lock()
	s.snapshot.Peers = peers
	s.snapshot.UpdatedAt = time.Now()
	snap := s.snapshot
	s.mu.Unlock()
	s.broadcast(snap)
}

func (s *Server) broadcast(snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			close(c.send)
			delete(s.clients, c)
		}
	}
}

// Listen binds a loopback listener on the given port (0 picks any free
// port) and serves in the background until the returned closer is called.
func (s *Server) Listen(port int) (addr string, closeFn func() error, err error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return "", nil, fmt.Errorf("statusapi: listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)

	srv := &http.Server{Handler: s.authMiddleware(mux)}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("statusapi: server stopped: %v", err)
		}
	}()

	return ln.Addr().String(), func() error { return srv.Close() }, nil
}

// authMiddleware requires a matching bearer token on every route but
// /health, when a token is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("statusapi: upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 8)}
	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	s.mu.RLock()
	initial, _ := json.Marshal(s.snapshot)
	s.mu.RUnlock()
	c.send <- initial

	go c.writePump()
	go c.readPump(s)
}

func (c *client) readPump(s *Server) {
	defer func() {
		s.clientsMu.Lock()
		if _, ok := s.clients[c]; ok {
			delete(s.clients, c)
			close(c.send)
		}
		s.clientsMu.Unlock()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
