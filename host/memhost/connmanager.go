package memhost

import (
	"sync"

	"github.com/aminokad/kaddht/host"
)

// ConnManager is an in-memory host.ConnManager. It only records which tags
// protect which peers; memhost never actually prunes connections, so
// protection has no enforcement effect beyond what tests assert directly.
type ConnManager struct {
	mu   sync.Mutex
	tags map[host.PeerID]map[string]bool
}

// NewConnManager creates an empty connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{tags: make(map[host.PeerID]map[string]bool)}
}

func (c *ConnManager) Protect(peer host.PeerID, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tags[peer] == nil {
		c.tags[peer] = make(map[string]bool)
	}
	c.tags[peer][tag] = true
}

func (c *ConnManager) Unprotect(peer host.PeerID, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tags[peer], tag)
}

// IsProtected reports whether peer is currently protected under tag.
// Test-only accessor; not part of host.ConnManager.
func (c *ConnManager) IsProtected(peer host.PeerID, tag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tags[peer][tag]
}
