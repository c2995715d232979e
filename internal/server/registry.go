package server

import (
	"log"
	"sync"

	"parley/pkg/types"
)

// Registry maps authenticated users to their live connections. It is the
// authoritative presence source: a user is online exactly while a connection
// is registered for their ID. The registry rejects all operations until
// Start is called, which happens when the server enters its accept loop.
type Registry struct {
	mu      sync.RWMutex
	started bool
	conns   map[string]*Conn // userID -> connection
}

// NewRegistry creates an empty, not-yet-started registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

// Start makes the registry operational.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
}

// Register installs the connection for the user and marks the user ONLINE.
// Any prior registration for the same user ID is evicted and closed, so at
// most one live connection exists per user.
func (r *Registry) Register(u *types.User, c *Conn) error {
	if u == nil {
		return ErrNilUser
	}
	if c == nil {
		return ErrNilConnection
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return ErrNotStarted
	}

	if old, exists := r.conns[u.ID]; exists && old != c {
		// Close asynchronously so a slow socket cannot stall registration.
		go func() {
			if err := old.Close(); err != nil {
				log.Printf("registry: closing evicted connection for %s: %v", u.ID, err)
			}
		}()
	}
	r.conns[u.ID] = c
	u.Status = types.StatusOnline
	return nil
}

// Unregister closes and removes the user's connection and marks the user
// OFFLINE. Safe to call when no registration exists. The caller passes its
// own connection: when a different connection is registered for the ID, a
// newer login owns it and this call leaves it untouched. A nil connection
// removes whatever is registered.
func (r *Registry) Unregister(u *types.User, c *Conn) error {
	if u == nil {
		return ErrNilUser
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return ErrNotStarted
	}

	cur, exists := r.conns[u.ID]
	if exists && c != nil && cur != c {
		return nil
	}
	if exists {
		delete(r.conns, u.ID)
		if err := cur.Close(); err != nil {
			log.Printf("registry: closing connection for %s: %v", u.ID, err)
		}
	}
	u.Status = types.StatusOffline
	return nil
}

// Writable returns the live connection for targeted delivery.
func (r *Registry) Writable(userID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.started {
		return nil, false
	}
	c, exists := r.conns[userID]
	return c, exists
}

// IsOnline reports whether a connection is registered for the user ID. This
// satisfies chat.Presence.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.conns[userID]
	return exists
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
