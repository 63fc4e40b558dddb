package social

import (
	"sort"
	"sync"
)

// Network is the set of peers an agent knows directly. Edges are
// directed: containing a name says nothing about the reverse link.
type Network struct {
	mu    sync.RWMutex
	peers map[string]struct{}
}

// NewNetwork builds a network seeded with the given peers.
func NewNetwork(peers ...string) *Network {
	n := &Network{peers: make(map[string]struct{}, len(peers))}
	for _, p := range peers {
		n.peers[p] = struct{}{}
	}
	return n
}

// Add records a direct acquaintance. Adding twice is a no-op.
func (n *Network) Add(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[name] = struct{}{}
}

// Remove forgets a direct acquaintance.
func (n *Network) Remove(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, name)
}

// Contains reports whether name is a direct acquaintance.
func (n *Network) Contains(name string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.peers[name]
	return ok
}

// Names returns the acquaintances in sorted order.
func (n *Network) Names() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]string, 0, len(n.peers))
	for p := range n.peers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of direct acquaintances.
func (n *Network) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}
