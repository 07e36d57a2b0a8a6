package registry

import (
	"sync"

	"github.com/google/uuid"
	"github.com/parley-chat/parley/internal/event"
)

// Connection is one live, authenticated stream for a user. The hub's
// websocket connection satisfies this; tests use channel-backed fakes.
type Connection interface {
	SessionID() string
	UserID() uuid.UUID
	// Deliver queues an outbound frame without blocking the caller.
	Deliver(event.Frame) error
}

// Registry is the source of truth for presence: a user is online iff they
// hold at least one live connection. All operations are total; registering a
// handle twice or unregistering an unknown one is a no-op.
type Registry struct {
	mu        sync.RWMutex
	byUser    map[uuid.UUID]map[string]Connection
	bySession map[string]Connection
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{
		byUser:    make(map[uuid.UUID]map[string]Connection),
		bySession: make(map[string]Connection),
	}
}

// Register adds the connection under its user. It reports whether this was
// the user's first live connection, i.e. an offline→online transition.
func (r *Registry) Register(conn Connection) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.bySession[conn.SessionID()]; dup {
		return false
	}
	set, ok := r.byUser[conn.UserID()]
	if !ok {
		set = make(map[string]Connection)
		r.byUser[conn.UserID()] = set
	}
	set[conn.SessionID()] = conn
	r.bySession[conn.SessionID()] = conn
	return len(set) == 1
}

// Unregister removes the connection. It reports whether the user just lost
// their last connection, i.e. an online→offline transition.
func (r *Registry) Unregister(conn Connection) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bySession[conn.SessionID()]; !ok {
		return false
	}
	delete(r.bySession, conn.SessionID())
	set := r.byUser[conn.UserID()]
	delete(set, conn.SessionID())
	if len(set) == 0 {
		delete(r.byUser, conn.UserID())
		return true
	}
	return false
}

// Lookup returns every live connection for a user; empty means offline.
func (r *Registry) Lookup(user uuid.UUID) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[user]
	out := make([]Connection, 0, len(set))
	for _, conn := range set {
		out = append(out, conn)
	}
	return out
}

// FindByIdentity returns one available connection for single-target delivery.
func (r *Registry) FindByIdentity(user uuid.UUID) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.byUser[user] {
		return conn, true
	}
	return nil, false
}

// Online reports whether the user holds any live connection.
func (r *Registry) Online(user uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[user]) > 0
}

// Count returns the number of live connections across all users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}

// Broadcast delivers a frame to every registered connection, best-effort.
func (r *Registry) Broadcast(f event.Frame) {
	r.mu.RLock()
	conns := make([]Connection, 0, len(r.bySession))
	for _, conn := range r.bySession {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Deliver(f)
	}
}
