package kbucket

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aminokad/kaddht/host"
)

// EWMATracker is a reference host.PeerLatencyMetrics implementation: an
// exponentially-weighted moving average of observed round-trip times per
// peer, bounded to capacity entries so a churning swarm can't grow the
// tracker without bound. A real deployment may have its own latency tracker
// wired into the host; this one is what dht.Node falls back to when none is
// supplied.
type EWMATracker struct {
	alpha float64
	cache *lru.Cache[host.PeerID, time.Duration]
	mu    sync.Mutex
}

// NewEWMATracker builds a tracker with the given smoothing factor (0,1] and
// bounded to capacity distinct peers.
func NewEWMATracker(alpha float64, capacity int) *EWMATracker {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	if capacity <= 0 {
		capacity = 4096
	}
	c, _ := lru.New[host.PeerID, time.Duration](capacity)
	return &EWMATracker{alpha: alpha, cache: c}
}

// Observe records a fresh round-trip sample for peer.
func (t *EWMATracker) Observe(peer host.PeerID, sample time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.cache.Get(peer)
	if !ok {
		t.cache.Add(peer, sample)
		return
	}
	next := time.Duration(t.alpha*float64(sample) + (1-t.alpha)*float64(prev))
	t.cache.Add(peer, next)
}

// LatencyEWMA implements host.PeerLatencyMetrics.
func (t *EWMATracker) LatencyEWMA(peer host.PeerID) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.cache.Get(peer)
	if !ok {
		return 0
	}
	return v
}
