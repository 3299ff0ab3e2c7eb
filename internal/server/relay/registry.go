package relay

import (
	"sync"

	"github.com/dmitrijs2005/keyrelay/internal/server/models"
)

// Peer is a live, authenticated connection as seen by the router.
type Peer interface {
	ID() string
	// Deliver queues env for writing and reports whether the connection
	// accepted it. A closed connection never accepts.
	Deliver(env models.Envelope) bool
}

// Registry maps each user to their current connection. It holds at most one
// peer per user: registering a second one replaces the first without
// closing it.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]Peer)}
}

// Register makes p the user's current connection and returns the peer it
// replaced, if any.
func (r *Registry) Register(userID string, p Peer) Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.peers[userID]
	r.peers[userID] = p
	return old
}

// Get returns the user's current connection.
func (r *Registry) Get(userID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[userID]
	return p, ok
}

// Unregister removes the entry only if it still points at p, so a replaced
// connection closing late cannot evict its successor.
func (r *Registry) Unregister(userID string, p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.peers[userID]; !ok || cur != p {
		return false
	}
	delete(r.peers, userID)
	return true
}

// Len returns the number of users with a registered connection.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
