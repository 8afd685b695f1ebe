// Package registry maps registered peer identities to their live transport
// endpoints. It is the relay's only routing table.
package registry

import (
	"errors"
	"sync"

	"github.com/vidwire/vidwire/internal/signaling"
)

// ErrIDInUse is returned when a registration names an identity that already
// has a live endpoint. The existing registration is never replaced.
var ErrIDInUse = errors.New("id already in use")

// Endpoint is the send side of one client's transport connection.
type Endpoint interface {
	Send(msg signaling.Message) error
}

// Registry is safe for concurrent use. It is constructed per server
// instance rather than held in package state, so tests get isolated
// registries.
type Registry struct {
	mu    sync.Mutex
	peers map[string]Endpoint
}

func New() *Registry {
	return &Registry{
		peers: make(map[string]Endpoint),
	}
}

// Register associates id with ep. At most one endpoint is ever live for a
// given id: a duplicate registration fails with ErrIDInUse and does not
// disturb the existing entry.
func (r *Registry) Register(id string, ep Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[id]; exists {
		return ErrIDInUse
	}
	r.peers[id] = ep
	return nil
}

func (r *Registry) Lookup(id string) (Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.peers[id]
	return ep, ok
}

// Remove drops id's registration. Removing an unknown id is a no-op, so the
// disconnect path can call it unconditionally.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.peers, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
