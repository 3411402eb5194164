package wire

import "sync"

// Registry is an arena of live connections keyed by id and indexed by peer
// name. The host orchestrator and the focus manager refer to peers by name
// and resolve them here (ByPeer) rather than storing *Connection pointers,
// breaking the Host Orchestrator <-> Connection <-> Focus Manager reference
// cycle.
type Registry struct {
	mu   sync.RWMutex
	next uint64
	conns map[uint64]*Connection
	byPeer map[string]uint64
}

// NewRegistry returns an empty connection arena.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[uint64]*Connection),
		byPeer: make(map[string]uint64),
	}
}

// Add assigns a fresh id to conn and stores it, indexed by peer name.
func (r *Registry) Add(conn *Connection) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	conn.ID = id
	r.conns[id] = conn
	r.byPeer[conn.PeerName] = id
	return id
}

// Get resolves an id to its connection.
func (r *Registry) Get(id uint64) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// ByPeer resolves a peer name to its current connection, if any.
func (r *Registry) ByPeer(peer string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPeer[peer]
	if !ok {
		return nil, false
	}
	c, ok := r.conns[id]
	return c, ok
}

// Remove drops a connection from the arena.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		if r.byPeer[c.PeerName] == id {
			delete(r.byPeer, c.PeerName)
		}
		delete(r.conns, id)
	}
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
